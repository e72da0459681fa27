// internal/store/query.go
package store

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// Sort keys understood by every store.
const (
	SortDisplayID = "display_id"
	SortCreatedAt = "created_at"
	SortUpdatedAt = "updated_at"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 500
)

// Query filters, sorts and paginates a collection. Zero values mean "no
// filter". Filters that do not apply to a collection are ignored.
type Query struct {
	Search     string
	Status     string
	CustomerID uuid.UUID
	ItemID     uuid.UUID
	// OpenOnly keeps rentals without a return date and reservations not done.
	OpenOnly bool
	Sort     string
	Desc     bool
	Page     int
	PerPage  int
}

// Normalize fills defaults and clamps pagination.
func (q Query) Normalize() Query {
	q.Search = strings.TrimSpace(q.Search)
	switch q.Sort {
	case SortCreatedAt, SortUpdatedAt:
	default:
		q.Sort = SortDisplayID
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PerPage <= 0 {
		q.PerPage = DefaultPerPage
	}
	if q.PerPage > MaxPerPage {
		q.PerPage = MaxPerPage
	}
	return q
}

// Offset is the number of records before the requested page.
func (q Query) Offset() int {
	return (q.Page - 1) * q.PerPage
}

// All returns a query that fetches up to MaxPerPage records in one page.
func All() Query {
	return Query{PerPage: MaxPerPage}
}

// Collect pages through list until every match of q is read.
func Collect[T any](ctx context.Context, list func(context.Context, Query) (Page[T], error), q Query) ([]T, error) {
	q.PerPage = MaxPerPage
	q.Page = 1
	var out []T
	for {
		page, err := list(ctx, q)
		if err != nil {
			return nil, err
		}
		out = append(out, page.Records...)
		if len(page.Records) == 0 || len(out) >= page.Total {
			return out, nil
		}
		q.Page++
	}
}
