package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
)

// handleLive upgrades to a WebSocket and corrects sentences as they arrive.
// Each text frame carries a [CorrectRequest]; the server answers with a
// [spelling.Report] or an [ErrorResponse] and keeps the session open. A cache
// persistence failure ends the session with StatusInternalError.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		observe.Logger(r.Context()).Warn("server: websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()
	conn.SetReadLimit(int64(s.maxSentenceLen) + 4096)

	ctx := r.Context()
	ctx = observe.WithLogger(ctx, observe.Logger(ctx).With("live_session", uuid.NewString()))
	log := observe.Logger(ctx)
	s.metrics.ActiveLiveSessions.Add(ctx, 1)
	defer s.metrics.ActiveLiveSessions.Add(context.WithoutCancel(ctx), -1)
	log.Info("server: live session opened")

	for {
		var req CorrectRequest
		if err := wsjson.Read(ctx, conn, &req); err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				log.Info("server: live session closed")
			case ctx.Err() != nil:
				conn.Close(websocket.StatusGoingAway, "server shutting down")
			default:
				log.Warn("server: live session read failed", "err", err)
				conn.Close(websocket.StatusUnsupportedData, "invalid frame")
			}
			return
		}

		if err := s.validateSentence(req.Sentence); err != nil {
			if err := wsjson.Write(ctx, conn, ErrorResponse{Error: err.Error()}); err != nil {
				return
			}
			continue
		}

		res, err := s.corrector.Correct(ctx, req.Sentence)
		if err != nil {
			if errors.Is(err, cache.ErrPersist) {
				log.Error("server: live correction not persisted", "err", err)
				_ = wsjson.Write(ctx, conn, ErrorResponse{Error: err.Error()})
				conn.Close(websocket.StatusInternalError, "cache persistence failed")
				return
			}
			// Caller cancellation: the connection is going away.
			return
		}
		if err := wsjson.Write(ctx, conn, res.Report()); err != nil {
			log.Warn("server: live session write failed", "err", err)
			return
		}
	}
}
