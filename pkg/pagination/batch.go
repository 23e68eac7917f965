package pagination

import (
	"context"
	"fmt"
	"time"

	"github.com/nordgaard/github-rest-client/pkg/logging"
)

// FetchAllOptions bounds a FetchAll run.
type FetchAllOptions struct {
	// MaxPages caps how many pages are fetched, including the first.
	// Zero means no cap.
	MaxPages int
}

// FetchAll eagerly assembles a whole collection: it follows next links
// from first, page by page, and returns every item in order. On a fetch
// error the items gathered so far are returned alongside it.
func FetchAll[T any](ctx context.Context, first *Page[T], fetch FetchFunc[T], opts FetchAllOptions) ([]T, error) {
	logger := logging.NewLogger("pagination")
	start := time.Now()

	var items []T
	pages := 0
	page := first
	for page != nil {
		items = append(items, page.Items...)
		pages++

		if page.Next == nil {
			break
		}
		if opts.MaxPages > 0 && pages >= opts.MaxPages {
			logger.Debug().Int("pages", pages).Msg("page cap reached")
			break
		}
		if err := ctx.Err(); err != nil {
			return items, err
		}

		next, err := fetch(ctx, page.Next)
		if err != nil {
			return items, fmt.Errorf("fetch page %d: %w", pages+1, err)
		}
		if next == nil || len(next.Items) == 0 {
			break
		}
		page = next
	}

	logger.Debug().
		Int("pages", pages).
		Int("items", len(items)).
		Dur("duration", time.Since(start)).
		Msg("collection fetched")

	return items, nil
}
