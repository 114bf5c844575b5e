package spelling

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
)

// CorrectAll corrects sentences with at most parallelism calls in flight
// (GOMAXPROCS when parallelism is zero or less). results[i] belongs to
// sentences[i].
//
// The first persist failure cancels the remaining work and is returned.
// Model failures do not stop the batch; they are reported per result.
func (c *Corrector) CorrectAll(ctx context.Context, sentences []string, parallelism int) ([]*Result, error) {
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}

	results := make([]*Result, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallelism)

	for i, s := range sentences {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := c.Correct(gctx, s)
			if err != nil {
				return fmt.Errorf("sentence %d: %w", i, err)
			}
			results[i] = r
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("spelling: batch: %w", err)
	}
	return results, nil
}
