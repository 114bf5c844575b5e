package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/MrWong99/phonospell/internal/observe"
	"github.com/MrWong99/phonospell/internal/spelling"
	"github.com/MrWong99/phonospell/internal/spelling/cache"
)

// CorrectRequest is the body of POST /v1/correct and of every live-session
// frame sent by the client.
type CorrectRequest struct {
	Sentence string `json:"sentence"`
}

// BatchRequest is the body of POST /v1/correct/batch.
type BatchRequest struct {
	Sentences []string `json:"sentences"`
}

// BatchResponse is the reply to POST /v1/correct/batch.
type BatchResponse struct {
	Results []spelling.Report `json:"results"`
}

// CacheResponse is the reply to GET /v1/cache.
type CacheResponse struct {
	Count   int           `json:"count"`
	Entries []cache.Entry `json:"entries"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// errBadInput marks request validation failures.
var errBadInput = errors.New("bad input")

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	var req CorrectRequest
	if err := s.decode(w, r, &req, s.maxSentenceLen); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.validateSentence(req.Sentence); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	res, err := s.corrector.Correct(r.Context(), req.Sentence)
	if err != nil {
		s.writeCorrectError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Report())
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := s.decode(w, r, &req, s.maxSentenceLen*s.maxBatchSize); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Sentences) == 0 {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: sentences is required", errBadInput))
		return
	}
	if len(req.Sentences) > s.maxBatchSize {
		writeError(w, http.StatusBadRequest,
			fmt.Errorf("%w: %d sentences exceed the limit of %d", errBadInput, len(req.Sentences), s.maxBatchSize))
		return
	}
	for i, sentence := range req.Sentences {
		if err := s.validateSentence(sentence); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("sentences[%d]: %w", i, err))
			return
		}
	}

	results, err := s.corrector.CorrectAll(r.Context(), req.Sentences, s.parallelism)
	if err != nil {
		s.writeCorrectError(w, r, err)
		return
	}
	resp := BatchResponse{Results: make([]spelling.Report, len(results))}
	for i, res := range results {
		resp.Results[i] = res.Report()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCacheList(w http.ResponseWriter, _ *http.Request) {
	entries := s.corrector.Cache().Entries()
	writeJSON(w, http.StatusOK, CacheResponse{Count: len(entries), Entries: entries})
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	if err := s.corrector.Cache().Clear(r.Context()); err != nil {
		observe.Logger(r.Context()).Error("server: cache clear failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	observe.Logger(r.Context()).Info("server: cache cleared")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheDelete(w http.ResponseWriter, r *http.Request) {
	word := r.PathValue("word")
	if strings.TrimSpace(word) == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: word is required", errBadInput))
		return
	}
	if _, ok := s.corrector.Cache().Get(word); !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no cached correction for %q", word))
		return
	}
	if err := s.corrector.Cache().Delete(r.Context(), word); err != nil {
		observe.Logger(r.Context()).Error("server: cache delete failed", "word", word, "err", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// validateSentence rejects blank and oversized input.
func (s *Server) validateSentence(sentence string) error {
	if strings.TrimSpace(sentence) == "" {
		return fmt.Errorf("%w: sentence is required", errBadInput)
	}
	if len(sentence) > s.maxSentenceLen {
		return fmt.Errorf("%w: sentence is %d bytes, limit is %d", errBadInput, len(sentence), s.maxSentenceLen)
	}
	return nil
}

// decode reads a JSON body of at most limit payload bytes (plus framing
// slack) into v, rejecting unknown fields.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any, limit int) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(limit)+4096)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return fmt.Errorf("%w: request body exceeds %d bytes", errBadInput, mbe.Limit)
		}
		return fmt.Errorf("%w: decode body: %v", errBadInput, err)
	}
	return nil
}

// writeCorrectError maps a pipeline error to a response. Only cache
// persistence failures reach this point.
func (s *Server) writeCorrectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, cache.ErrPersist):
		observe.Logger(r.Context()).Error("server: correction not persisted", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	case r.Context().Err() != nil:
		// The client is gone; nobody reads this.
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		observe.Logger(r.Context()).Error("server: correct failed", "err", err)
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, ErrorResponse{Error: err.Error()})
}
