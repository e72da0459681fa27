package highlight

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"

	"lendnexus/internal/domain"
	"lendnexus/internal/temporal"
)

func TestResolve_FirstNonEmptyWins(t *testing.T) {
	got := Resolve(
		Source{FromItem, ""},
		Source{FromCustomer, "blue"},
		Source{FromRental, "red"},
	)

	assert.Equal(t, Resolved{Color: "blue", Origin: FromCustomer}, got)
}

func TestResolve_None(t *testing.T) {
	assert.Equal(t, Resolved{}, Resolve())
	assert.Equal(t, Resolved{}, Resolve(Source{FromItem, "  "}, Source{FromRental, ""}))
}

func TestRentalColor(t *testing.T) {
	tests := []struct {
		c    temporal.Classification
		want string
	}{
		{temporal.Classification{Status: domain.RentalOverdue, Severity: temporal.SeverityHigh}, ColorOverdueHigh},
		{temporal.Classification{Status: domain.RentalOverdue, Severity: temporal.SeverityMedium}, ColorOverdueMedium},
		{temporal.Classification{Status: domain.RentalOverdue, Severity: temporal.SeverityLow}, ColorOverdueLow},
		{temporal.Classification{Status: domain.RentalDueToday}, ColorDueToday},
		{temporal.Classification{Status: domain.RentalReturnedToday}, ColorReturnedToday},
		{temporal.Classification{Status: domain.RentalActive}, ""},
		{temporal.Classification{Status: domain.RentalReturned}, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, RentalColor(tt.c), string(tt.c.Status))
	}
}

func TestRentalRow_ItemColorBeatsRentalColor(t *testing.T) {
	overdue := temporal.Classification{Status: domain.RentalOverdue, Severity: temporal.SeverityHigh}
	plain := &domain.Item{}
	flagged := &domain.Item{HighlightColor: "purple"}

	assert.Equal(t, "purple", RentalRow([]*domain.Item{plain, flagged}, overdue).Color)
	assert.Equal(t, Resolved{Color: ColorOverdueHigh, Origin: FromRental}, RentalRow([]*domain.Item{plain}, overdue))
}

func TestReservationRow_CustomerFirst(t *testing.T) {
	customer := &domain.Customer{HighlightColor: "teal"}
	item := &domain.Item{HighlightColor: "purple"}

	assert.Equal(t, "teal", ReservationRow(customer, []*domain.Item{item}).Color)
	assert.Equal(t, "purple", ReservationRow(nil, []*domain.Item{item}).Color)
	assert.Equal(t, "", ItemRow(nil).Color)
	assert.Equal(t, "teal", CustomerRow(customer).Color)
}

func TestResolve_Properties(t *testing.T) {
	colors := rapid.SampledFrom([]string{"", "red", "blue", "green", " "})
	rapid.Check(t, func(t *rapid.T) {
		n := rapid.IntRange(0, 6).Draw(t, "n")
		sources := make([]Source, n)
		for i := range sources {
			sources[i] = Source{Origin: Origin(rapid.SampledFrom([]string{"item", "customer", "rental"}).Draw(t, "origin")), Color: colors.Draw(t, "color")}
		}

		got := Resolve(sources...)
		if got != Resolve(sources...) {
			t.Fatalf("resolution is not deterministic")
		}
		for _, s := range sources {
			if s.Color == "" || s.Color == " " {
				continue
			}
			if got.Color != s.Color || got.Origin != s.Origin {
				t.Fatalf("expected first non-empty %+v, got %+v", s, got)
			}
			return
		}
		if got != (Resolved{}) {
			t.Fatalf("expected none, got %+v", got)
		}
	})
}
