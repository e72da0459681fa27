// internal/store/postgres/query.go
package postgres

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
)

var searchFields = map[domain.Kind][]string{
	domain.KindCustomer:    {"firstname", "lastname", "email", "phone"},
	domain.KindItem:        {"name", "brand", "model", "category"},
	domain.KindRental:      {"remark"},
	domain.KindReservation: {"customer_name", "comments"},
}

type clause struct {
	parts []string
	args  []any
}

// arg binds v and returns its placeholder.
func (c *clause) arg(v any) string {
	c.args = append(c.args, v)
	return "$" + strconv.Itoa(len(c.args))
}

func (c *clause) add(expr string) {
	c.parts = append(c.parts, expr)
}

// filter renders the rules of store.Match as a WHERE clause.
func filter(kind domain.Kind, q store.Query) (string, []any) {
	c := &clause{}
	c.add("kind = " + c.arg(string(kind)))

	switch kind {
	case domain.KindItem:
		if q.Status != "" {
			c.add("data->>'status' = " + c.arg(q.Status))
		} else {
			c.add("data->>'status' <> " + c.arg(string(domain.StatusDeleted)))
		}
	case domain.KindRental:
		if q.CustomerID != uuid.Nil {
			c.add("data->>'customer_id' = " + c.arg(q.CustomerID.String()))
		}
		if q.ItemID != uuid.Nil {
			c.add("data->'requested_copies' ? " + c.arg(q.ItemID.String()))
		}
		if q.OpenOnly {
			c.add("data->>'returned_on' IS NULL")
		}
	case domain.KindReservation:
		if q.CustomerID != uuid.Nil {
			c.add("data->>'customer_id' = " + c.arg(q.CustomerID.String()))
		}
		if q.ItemID != uuid.Nil {
			c.add("data->'items' ? " + c.arg(q.ItemID.String()))
		}
		if q.OpenOnly {
			c.add("NOT (data->>'done')::boolean")
		}
	}

	if q.Search != "" {
		var ors []string
		like := c.arg("%" + escapeLike(q.Search) + "%")
		for _, f := range searchFields[kind] {
			ors = append(ors, fmt.Sprintf("data->>'%s' ILIKE %s", f, like))
		}
		if n, err := strconv.ParseInt(q.Search, 10, 64); err == nil {
			ors = append(ors, "display_id = "+c.arg(n))
		}
		c.parts = append(c.parts, "("+strings.Join(ors, " OR ")+")")
	}

	return strings.Join(c.parts, " AND "), c.args
}

func orderBy(q store.Query) string {
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	if q.Sort == store.SortDisplayID {
		return "display_id " + dir
	}
	return fmt.Sprintf("%s %s, display_id %s", q.Sort, dir, dir)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
