package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const defaultSweepPageSize = 100

// userPager pages through user ids in ascending order.
type userPager interface {
	ListIDsPage(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

// forEachUser calls fn for every user id, one page at a time, with at most
// workers calls in flight. The next page is read only after the current one
// drains. fn errors do not stop the walk; page read errors do.
func forEachUser(ctx context.Context, users userPager, pageSize, workers int, fn func(ctx context.Context, id uuid.UUID)) error {
	if pageSize <= 0 {
		pageSize = defaultSweepPageSize
	}
	if workers <= 0 {
		workers = 1
	}
	after := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		ids, err := users.ListIDsPage(ctx, after, pageSize)
		if err != nil {
			return fmt.Errorf("list user ids after %s: %w", after, err)
		}

		var g errgroup.Group
		g.SetLimit(workers)
		for _, id := range ids {
			g.Go(func() error {
				fn(ctx, id)
				return nil
			})
		}
		_ = g.Wait()

		if len(ids) < pageSize {
			return nil
		}
		after = ids[len(ids)-1]
	}
}
