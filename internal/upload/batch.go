package upload

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/tjfontaine/callscope/internal/core/domain"
)

// UploadAll ships recordings concurrently with at most limit in flight. The
// first failure cancels the remaining uploads and is returned.
func (c *Client) UploadAll(ctx context.Context, recs []*domain.Recording, limit int) error {
	if limit < 1 {
		limit = 4
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for _, rec := range recs {
		g.Go(func() error {
			if _, err := c.Upload(gctx, rec); err != nil {
				c.logger.Error("upload failed",
					"recording_id", rec.ID,
					"error", err,
				)
				return fmt.Errorf("recording %s: %w", rec.ID, err)
			}
			return nil
		})
	}

	return g.Wait()
}
