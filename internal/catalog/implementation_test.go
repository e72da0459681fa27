package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendnexus/internal/circulation"
	"lendnexus/internal/domain"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
	"lendnexus/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	rentals  circulation.Service
	svc      Service
	customer *domain.Customer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memory.New()}
	f.rentals = circulation.NewService(f.store,
		circulation.WithClock(fixedClock{time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}))
	f.svc = NewService(f.store, f.rentals)
	f.customer = &domain.Customer{Header: domain.NewHeader(), Firstname: "Grace", Lastname: "Hopper"}
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Create(f.customer)))
	return f
}

func (f *fixture) add(name string, copies int) *domain.Item {
	f.t.Helper()
	item, err := f.svc.AddItem(f.ctx, AddItemRequest{Name: name, Copies: copies, Deposit: decimal.NewFromInt(10)})
	require.NoError(f.t, err)
	return item
}

func (f *fixture) rent(item *domain.Item, copies int) *domain.Rental {
	f.t.Helper()
	r, err := f.rentals.CreateRental(f.ctx, circulation.CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []circulation.Line{{ItemID: item.ID, Copies: copies}},
		ExpectedOn: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(f.t, err)
	return r
}

func ptr[T any](v T) *T { return &v }

func TestAddItem(t *testing.T) {
	f := newFixture(t)

	item := f.add("  Projector ", 0)
	assert.Equal(t, "Projector", item.Name)
	assert.Equal(t, 1, item.Copies)
	assert.Equal(t, domain.StatusInStock, item.Status)
	assert.Equal(t, int64(1), item.DisplayID)
	assert.Equal(t, 1, item.Version)

	second := f.add("Screen", 2)
	assert.Equal(t, int64(2), second.DisplayID)
}

func TestAddItem_Validation(t *testing.T) {
	f := newFixture(t)
	tests := []struct {
		name string
		req  AddItemRequest
	}{
		{"missing name", AddItemRequest{Name: " "}},
		{"negative copies", AddItemRequest{Name: "Drill", Copies: -1}},
		{"negative deposit", AddItemRequest{Name: "Drill", Deposit: decimal.NewFromInt(-5)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddItem(f.ctx, tt.req)
			assert.ErrorIs(t, err, domain.ErrInvalidArgument)
		})
	}

	page, err := f.store.ListItems(f.ctx, store.All())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestEditItem_Fields(t *testing.T) {
	f := newFixture(t)
	item := f.add("Ladder", 1)

	got, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{
		Brand:          ptr("Hailo"),
		HighlightColor: ptr("purple"),
		Deposit:        ptr(decimal.NewFromInt(40)),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ladder", got.Name)
	assert.Equal(t, "Hailo", got.Brand)
	assert.True(t, got.Deposit.Equal(decimal.NewFromInt(40)))
	assert.Equal(t, 2, got.Version)

	view, err := f.svc.GetItem(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, "purple", view.Highlight.Color)

	_, err = f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Name: ptr("")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEditItem_CopiesNeverBelowOutstanding(t *testing.T) {
	f := newFixture(t)
	item := f.add("Camping chair", 3)
	f.rent(item, 2)

	_, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Copies: ptr(1)})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	got, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Copies: ptr(2)})
	require.NoError(t, err)
	assert.Equal(t, 2, got.Copies)
	assert.Equal(t, domain.StatusOutOfStock, got.Status, "no free copy left")

	got, err = f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Copies: ptr(4)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInStock, got.Status)

	avail, err := f.svc.Availability(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, inventory.Availability{Copies: 4, Outstanding: 2, Free: 2}, avail)
}

func TestEditItem_CopiesAtLeastOne(t *testing.T) {
	f := newFixture(t)
	item := f.add("Kayak", 2)

	_, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Copies: ptr(0)})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestEditItem_KeepsStaffStatus(t *testing.T) {
	f := newFixture(t)
	item := f.add("Sander", 1)
	_, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkRepairing)
	require.NoError(t, err)

	got, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Copies: ptr(3)})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRepairing, got.Status)
}

func TestEditItem_RetriesAfterConcurrentRental(t *testing.T) {
	f := newFixture(t)
	item := f.add("Tile cutter", 2)
	st := &racingStore{Store: f.store, before: func() { f.rent(item, 1) }}
	svc := NewService(st, f.rentals)

	got, err := svc.EditItem(f.ctx, item.ID, EditItemRequest{Description: ptr("wet saw")})
	require.NoError(t, err)
	assert.Equal(t, "wet saw", got.Description)
	assert.Equal(t, 1, st.conflicts)
}

// racingStore runs before ahead of the first commit, simulating a rental that
// touched the item after it was read.
type racingStore struct {
	store.Store
	before    func()
	conflicts int
}

func (s *racingStore) Commit(ctx context.Context, b *store.Batch) error {
	if s.before != nil {
		before := s.before
		s.before = nil
		before()
	}
	err := s.Store.Commit(ctx, b)
	if errors.Is(err, store.ErrConflict) {
		s.conflicts++
	}
	return err
}

func TestApplyAction(t *testing.T) {
	f := newFixture(t)
	item := f.add("Bike", 1)

	got, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkLost)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLost, got.Status)

	_, err = f.rentals.CreateRental(f.ctx, circulation.CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []circulation.Line{{ItemID: item.ID, Copies: 1}},
		ExpectedOn: time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC),
	})
	assert.ErrorIs(t, err, domain.ErrItemUnavailable)

	_, err = f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionRestore)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "restore only applies to deleted items")

	got, err = f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkInStock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInStock, got.Status)
}

func TestApplyAction_MarkInStockSettlesOnFreeCopies(t *testing.T) {
	f := newFixture(t)
	item := f.add("Router", 1)
	f.rent(item, 1)
	_, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkRepairing)
	require.NoError(t, err)

	got, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkInStock)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, got.Status)
}

func TestApplyAction_DeleteAndRestore(t *testing.T) {
	f := newFixture(t)
	item := f.add("Mixer", 1)
	f.add("Whisk", 1)

	_, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionDelete)
	require.NoError(t, err)

	page, err := f.svc.ListItems(f.ctx, store.Query{})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Whisk", page.Records[0].Name)

	page, err = f.svc.ListItems(f.ctx, store.Query{Status: string(domain.StatusDeleted)})
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, item.ID, page.Records[0].ID)

	_, err = f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionMarkLost)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	got, err := f.svc.ApplyAction(f.ctx, item.ID, inventory.ActionRestore)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInStock, got.Status)
}

func TestApplyAction_RejectsLifecycleActions(t *testing.T) {
	f := newFixture(t)
	item := f.add("Drone", 1)

	for _, a := range []inventory.Action{inventory.ActionRent, inventory.ActionReserve, "explode"} {
		_, err := f.svc.ApplyAction(f.ctx, item.ID, a)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, string(a))
	}
	got, err := f.store.GetItem(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
}

func TestListItems(t *testing.T) {
	f := newFixture(t)
	tent := f.add("Tent", 2)
	f.add("Stove", 1)
	f.rent(tent, 1)

	page, err := f.svc.ListItems(f.ctx, store.Query{Search: "ten"})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, inventory.Availability{Copies: 2, Outstanding: 1, Free: 1}, page.Records[0].Availability)

	_, err = f.svc.ListItems(f.ctx, store.Query{Status: "gone"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestGetItemAndHistory(t *testing.T) {
	f := newFixture(t)
	item := f.add("Saw", 1)
	_, err := f.svc.EditItem(f.ctx, item.ID, EditItemRequest{Model: ptr("X1")})
	require.NoError(t, err)

	changes, err := f.svc.History(f.ctx, item.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, store.Created, changes[0].Action)
	assert.Equal(t, store.Updated, changes[1].Action)

	_, err = f.svc.GetItem(f.ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = f.svc.History(f.ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}
