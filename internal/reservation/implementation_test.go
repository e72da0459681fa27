package reservation

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendnexus/internal/circulation"
	"lendnexus/internal/domain"
	"lendnexus/internal/httpx"
	"lendnexus/internal/store"
	"lendnexus/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

var pickup = time.Date(2024, 5, 4, 10, 0, 0, 0, time.UTC)

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	rentals  circulation.Service
	svc      Service
	customer *domain.Customer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memory.New()}
	f.rentals = circulation.NewService(f.store, circulation.WithClock(fixedClock{pickup}))
	f.svc = NewService(f.store, f.rentals, opts...)
	f.customer = &domain.Customer{Header: domain.NewHeader(), Firstname: "Katherine", Lastname: "Johnson", HighlightColor: "teal"}
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Create(f.customer)))
	return f
}

func (f *fixture) item(name string, copies int, status domain.ItemStatus) *domain.Item {
	f.t.Helper()
	item := &domain.Item{Header: domain.NewHeader(), Name: name, Copies: copies, Status: status, Deposit: decimal.NewFromInt(5)}
	require.NoError(f.t, f.store.Commit(f.ctx, store.NewBatch().Create(item)))
	return item
}

func (f *fixture) status(item *domain.Item) domain.ItemStatus {
	f.t.Helper()
	got, err := f.store.GetItem(f.ctx, item.ID)
	require.NoError(f.t, err)
	return got.Status
}

func (f *fixture) reserve(items ...*domain.Item) *Created {
	f.t.Helper()
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	created, err := f.svc.CreateReservation(f.ctx, CreateRequest{CustomerID: &f.customer.ID, Items: ids, Pickup: pickup})
	require.NoError(f.t, err)
	return created
}

func TestCreateReservation(t *testing.T) {
	f := newFixture(t)
	tent := f.item("Tent", 2, domain.StatusInStock)
	stove := f.item("Stove", 1, domain.StatusOutOfStock)

	created := f.reserve(tent, tent, stove)
	assert.Len(t, created.Code, 6)
	assert.Regexp(t, `^[0-9]{6}$`, created.Code)
	assert.Empty(t, created.CodeHash)
	assert.Empty(t, created.CodeSalt)
	assert.Equal(t, "teal", created.Highlight.Color, "customer color leads reservation rows")
	assert.Equal(t, int64(1), created.DisplayID)

	assert.Equal(t, domain.StatusReserved, f.status(tent))
	assert.Equal(t, domain.StatusReserved, f.status(stove))

	stored, err := f.store.GetReservation(f.ctx, created.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.CodeHash)
	assert.NotEmpty(t, stored.CodeSalt)
	assert.Len(t, stored.Items, 3)
}

func TestCreateReservation_FreeTextCustomer(t *testing.T) {
	f := newFixture(t)
	item := f.item("Lantern", 1, domain.StatusInStock)

	created, err := f.svc.CreateReservation(f.ctx, CreateRequest{
		CustomerName: " Walk-in ",
		CustomerInfo: "phone 555-0100",
		Items:        []uuid.UUID{item.ID},
		Pickup:       pickup,
		OnPremises:   true,
	})
	require.NoError(t, err)
	assert.Nil(t, created.CustomerID)
	assert.Equal(t, "Walk-in", created.CustomerName)
	assert.True(t, created.OnPremises)
}

func TestCreateReservation_Validation(t *testing.T) {
	f := newFixture(t)
	item := f.item("Lantern", 1, domain.StatusInStock)
	unknown := uuid.New()

	tests := []struct {
		name string
		req  CreateRequest
		want error
	}{
		{"no customer", CreateRequest{Items: []uuid.UUID{item.ID}, Pickup: pickup}, domain.ErrInvalidArgument},
		{"no items", CreateRequest{CustomerName: "Al", Pickup: pickup}, domain.ErrInvalidArgument},
		{"nil item", CreateRequest{CustomerName: "Al", Items: []uuid.UUID{uuid.Nil}, Pickup: pickup}, domain.ErrInvalidArgument},
		{"no pickup", CreateRequest{CustomerName: "Al", Items: []uuid.UUID{item.ID}}, domain.ErrInvalidArgument},
		{"unknown customer", CreateRequest{CustomerID: &unknown, Items: []uuid.UUID{item.ID}, Pickup: pickup}, store.ErrNotFound},
		{"unknown item", CreateRequest{CustomerName: "Al", Items: []uuid.UUID{uuid.New()}, Pickup: pickup}, store.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateReservation(f.ctx, tt.req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Equal(t, domain.StatusInStock, f.status(item))
}

func TestCreateReservation_UnavailableItemsWriteNothing(t *testing.T) {
	f := newFixture(t)
	ok := f.item("Bike", 1, domain.StatusInStock)
	lost := f.item("Helmet", 1, domain.StatusLost)
	single := f.item("Pump", 1, domain.StatusInStock)

	_, err := f.svc.CreateReservation(f.ctx, CreateRequest{
		CustomerID: &f.customer.ID,
		Items:      []uuid.UUID{ok.ID, lost.ID, single.ID, single.ID},
		Pickup:     pickup,
	})
	var unavailable *domain.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Items, 2)
	assert.Equal(t, lost.ID, unavailable.Items[0].ItemID)
	assert.Equal(t, domain.StatusLost, unavailable.Items[0].Status)
	assert.Equal(t, single.ID, unavailable.Items[1].ItemID)
	assert.Equal(t, 2, unavailable.Items[1].Requested)

	assert.Equal(t, domain.StatusInStock, f.status(ok))
	page, err := f.store.ListReservations(f.ctx, store.All())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestVerifyCode(t *testing.T) {
	f := newFixture(t)
	item := f.item("Kayak", 1, domain.StatusInStock)
	created := f.reserve(item)

	_, err := f.svc.VerifyCode(f.ctx, created.ID, wrong(created.Code))
	assert.ErrorIs(t, err, domain.ErrInvalidPickupCode)

	v, err := f.svc.VerifyCode(f.ctx, created.ID, created.Code)
	require.NoError(t, err)
	assert.Equal(t, created.ID, v.ID)
	assert.Empty(t, v.CodeHash)

	_, err = f.svc.VerifyCode(f.ctx, uuid.New(), created.Code)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestVerifyCode_Throttled(t *testing.T) {
	f := newFixture(t, WithAttemptLimit(2))
	item := f.item("Kayak", 1, domain.StatusInStock)
	created := f.reserve(item)

	for i := 0; i < 2; i++ {
		_, err := f.svc.VerifyCode(f.ctx, created.ID, wrong(created.Code))
		require.ErrorIs(t, err, domain.ErrInvalidPickupCode)
	}
	_, err := f.svc.VerifyCode(f.ctx, created.ID, created.Code)
	assert.ErrorIs(t, err, httpx.ErrRateLimited, "the right code is refused once the budget is spent")

	other := f.reserve(f.item("Paddle", 1, domain.StatusInStock))
	_, err = f.svc.VerifyCode(f.ctx, other.ID, other.Code)
	assert.NoError(t, err, "budgets are per reservation")
}

func TestVerifyCode_UnknownIDsGetNoBudget(t *testing.T) {
	f := newFixture(t, WithAttemptLimit(1))
	for i := 0; i < 100; i++ {
		_, err := f.svc.VerifyCode(f.ctx, uuid.New(), "123456")
		require.ErrorIs(t, err, store.ErrNotFound)
	}
	svc := f.svc.(*service)
	svc.mu.Lock()
	tracked := len(svc.limiters)
	svc.mu.Unlock()
	assert.Zero(t, tracked)

	created := f.reserve(f.item("Kayak", 1, domain.StatusInStock))
	_, err := f.svc.VerifyCode(f.ctx, created.ID, wrong(created.Code))
	require.ErrorIs(t, err, domain.ErrInvalidPickupCode)
	svc.mu.Lock()
	tracked = len(svc.limiters)
	svc.mu.Unlock()
	assert.Equal(t, 1, tracked)
}

// wrong returns a code that differs from code in its last digit.
func wrong(code string) string {
	last := code[len(code)-1]
	if last == '9' {
		return code[:len(code)-1] + "0"
	}
	return code[:len(code)-1] + string(last+1)
}

func TestCancelReservation(t *testing.T) {
	f := newFixture(t)
	shared := f.item("Projector", 2, domain.StatusInStock)
	solo := f.item("Screen", 1, domain.StatusInStock)

	first := f.reserve(shared, solo)
	second := f.reserve(shared)

	require.NoError(t, f.svc.CancelReservation(f.ctx, first.ID))
	assert.Equal(t, domain.StatusInStock, f.status(solo))
	assert.Equal(t, domain.StatusReserved, f.status(shared), "still held by the second reservation")

	_, err := f.store.GetReservation(f.ctx, first.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, f.svc.CancelReservation(f.ctx, second.ID))
	assert.Equal(t, domain.StatusInStock, f.status(shared))

	assert.ErrorIs(t, f.svc.CancelReservation(f.ctx, second.ID), store.ErrNotFound)
}

func TestCancelReservation_ReleaseSettlesOnFreeCopies(t *testing.T) {
	f := newFixture(t)
	item := f.item("Drill", 1, domain.StatusInStock)
	created := f.reserve(item)

	_, err := f.rentals.CreateRental(f.ctx, circulation.CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []circulation.Line{{ItemID: item.ID, Copies: 1}},
		ExpectedOn: pickup.AddDate(0, 0, 7),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, f.status(item))

	require.NoError(t, f.svc.CancelReservation(f.ctx, created.ID))
	assert.Equal(t, domain.StatusOutOfStock, f.status(item))
}

func TestCancelReservation_KeepsStaffStatus(t *testing.T) {
	f := newFixture(t)
	item := f.item("Saw", 1, domain.StatusInStock)
	created := f.reserve(item)

	got, err := f.store.GetItem(f.ctx, item.ID)
	require.NoError(t, err)
	got.Status = domain.StatusRepairing
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Update(got)))

	require.NoError(t, f.svc.CancelReservation(f.ctx, created.ID))
	assert.Equal(t, domain.StatusRepairing, f.status(item))
}

func TestCancelReservation_ConvertedIsDone(t *testing.T) {
	f := newFixture(t)
	item := f.item("Camera", 1, domain.StatusInStock)
	created := f.reserve(item)

	_, err := f.rentals.ConvertReservation(f.ctx, circulation.ConvertRequest{
		ReservationID: created.ID,
		ExpectedOn:    pickup.AddDate(0, 0, 3),
	})
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.CancelReservation(f.ctx, created.ID), domain.ErrInvalidTransition)
	_, err = f.svc.VerifyCode(f.ctx, created.ID, created.Code)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestListAndHistory(t *testing.T) {
	f := newFixture(t)
	a := f.item("Tent", 3, domain.StatusInStock)
	b := f.item("Tarp", 3, domain.StatusInStock)
	first := f.reserve(a)
	f.reserve(b)

	page, err := f.svc.ListReservations(f.ctx, store.Query{ItemID: a.ID})
	require.NoError(t, err)
	require.Equal(t, 1, page.Total)
	assert.Equal(t, first.ID, page.Records[0].ID)
	assert.Empty(t, page.Records[0].CodeHash)

	changes, err := f.svc.History(f.ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, store.Created, changes[0].Action)
	assert.NotContains(t, string(changes[0].Data), "code_hash")
	assert.NotContains(t, string(changes[0].Data), "code_salt")

	_, err = f.svc.History(f.ctx, a.ID)
	assert.ErrorIs(t, err, store.ErrNotFound, "item ids are not reservations")
}
