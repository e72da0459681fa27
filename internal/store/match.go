// internal/store/match.go
package store

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
)

// Match reports whether r passes the filters of q. The memory store and
// in-process views use it; the postgres store expresses the same rules in SQL.
func Match(r domain.Record, q Query) bool {
	switch rec := r.(type) {
	case *domain.Customer:
		return matchSearch(q.Search, rec.DisplayID, rec.Firstname, rec.Lastname, rec.Email, rec.Phone)
	case *domain.Item:
		if q.Status != "" {
			if string(rec.Status) != q.Status {
				return false
			}
		} else if rec.Status == domain.StatusDeleted {
			return false
		}
		return matchSearch(q.Search, rec.DisplayID, rec.Name, rec.Brand, rec.Model, rec.Category)
	case *domain.Rental:
		if q.CustomerID != uuid.Nil && rec.CustomerID != q.CustomerID {
			return false
		}
		if q.ItemID != uuid.Nil && !rec.Holds(q.ItemID) {
			return false
		}
		if q.OpenOnly && rec.Closed() {
			return false
		}
		return matchSearch(q.Search, rec.DisplayID, rec.Remark)
	case *domain.Reservation:
		if q.CustomerID != uuid.Nil && (rec.CustomerID == nil || *rec.CustomerID != q.CustomerID) {
			return false
		}
		if q.ItemID != uuid.Nil && !containsID(rec.Items, q.ItemID) {
			return false
		}
		if q.OpenOnly && rec.Done {
			return false
		}
		return matchSearch(q.Search, rec.DisplayID, rec.CustomerName, rec.Comments)
	}
	return false
}

func matchSearch(search string, displayID int64, fields ...string) bool {
	if search == "" {
		return true
	}
	if n, err := strconv.ParseInt(search, 10, 64); err == nil && n == displayID {
		return true
	}
	needle := strings.ToLower(search)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), needle) {
			return true
		}
	}
	return false
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

// Less orders two records by the sort key of q, breaking ties by display id.
func Less(a, b domain.Record, q Query) bool {
	if q.Desc {
		a, b = b, a
	}
	ha, hb := a.Head(), b.Head()
	switch q.Sort {
	case SortCreatedAt:
		if !ha.CreatedAt.Equal(hb.CreatedAt) {
			return ha.CreatedAt.Before(hb.CreatedAt)
		}
	case SortUpdatedAt:
		if !ha.UpdatedAt.Equal(hb.UpdatedAt) {
			return ha.UpdatedAt.Before(hb.UpdatedAt)
		}
	}
	return ha.DisplayID < hb.DisplayID
}
