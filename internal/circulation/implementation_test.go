package circulation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendnexus/internal/domain"
	"lendnexus/internal/store"
	"lendnexus/internal/store/memory"
)

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func day(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

type fixture struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.Store
	svc      Service
	customer *domain.Customer
}

func newFixture(t *testing.T, today string) *fixture {
	t.Helper()
	f := &fixture{t: t, ctx: context.Background(), store: memory.New()}
	f.svc = NewService(f.store, WithClock(fixedClock{day(today).Add(15 * time.Hour)}))
	f.customer = &domain.Customer{Header: domain.NewHeader(), Firstname: "Ada", Lastname: "Lovelace"}
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Create(f.customer)))
	return f
}

func (f *fixture) item(name string, copies int, status domain.ItemStatus) *domain.Item {
	f.t.Helper()
	item := &domain.Item{Header: domain.NewHeader(), Name: name, Copies: copies, Status: status, Deposit: decimal.NewFromInt(20)}
	require.NoError(f.t, f.store.Commit(f.ctx, store.NewBatch().Create(item)))
	return item
}

func (f *fixture) reload(item *domain.Item) *domain.Item {
	f.t.Helper()
	got, err := f.store.GetItem(f.ctx, item.ID)
	require.NoError(f.t, err)
	return got
}

func (f *fixture) rent(lines ...Line) (*domain.Rental, error) {
	return f.svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      lines,
		Deposit:    decimal.NewFromInt(50),
		RentedOn:   day("2024-01-01"),
		ExpectedOn: day("2024-01-08"),
		Employee:   "kim",
	})
}

func TestCreateRental_ScenarioC(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	item := f.item("Tent", 3, domain.StatusInStock)

	x, err := f.rent(Line{item.ID, 2})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInStock, f.reload(item).Status)

	_, err = f.rent(Line{item.ID, 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusOutOfStock, f.reload(item).Status)

	_, err = f.rent(Line{item.ID, 1})
	var unavailable *domain.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Items, 1)
	assert.Equal(t, item.ID, unavailable.Items[0].ItemID)
	assert.Equal(t, 1, unavailable.Items[0].Requested)
	assert.Equal(t, 0, unavailable.Items[0].Available)

	assert.Equal(t, map[uuid.UUID]int{item.ID: 2}, x.RequestedCopies)
	assert.Equal(t, map[uuid.UUID]int{item.ID: 0}, x.ReturnedItems)
	assert.Equal(t, "kim", x.CheckoutEmployee)
	assert.Equal(t, int64(1), x.DisplayID)
}

func TestCreateRental_RejectsUnrentableItemsWithoutWriting(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	good := f.item("Drill", 2, domain.StatusInStock)
	lost := f.item("Saw", 2, domain.StatusLost)
	repairing := f.item("Ladder", 1, domain.StatusRepairing)

	_, err := f.rent(Line{good.ID, 1}, Line{lost.ID, 1}, Line{repairing.ID, 1})
	var unavailable *domain.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	require.Len(t, unavailable.Items, 2)
	assert.Equal(t, lost.ID, unavailable.Items[0].ItemID)
	assert.Equal(t, domain.StatusLost, unavailable.Items[0].Status)
	assert.Equal(t, repairing.ID, unavailable.Items[1].ItemID)

	page, err := f.store.ListRentals(f.ctx, store.Query{})
	require.NoError(t, err)
	assert.Zero(t, page.Total)
	assert.Equal(t, 1, f.reload(good).Version)
}

func TestCreateRental_ReservedItemIsRentable(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	item := f.item("Kayak", 1, domain.StatusReserved)

	_, err := f.rent(Line{item.ID, 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, f.reload(item).Status)
}

func TestCreateRental_Validation(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	item := f.item("Drill", 2, domain.StatusInStock)

	_, err := f.rent(Line{item.ID, 0})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.rent()
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.rent(Line{item.ID, 3})
	assert.ErrorIs(t, err, domain.ErrItemUnavailable)

	_, err = f.svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []Line{{item.ID, 1}},
		RentedOn:   day("2024-01-08"),
		ExpectedOn: day("2024-01-01"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []Line{{item.ID, 1}},
		Deposit:    decimal.NewFromInt(-1),
		ExpectedOn: day("2024-01-08"),
	})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: uuid.New(),
		Items:      []Line{{item.ID, 1}},
		ExpectedOn: day("2024-01-08"),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.rent(Line{uuid.New(), 1})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateRental_MergesRepeatedLinesAndDefaultsRentedOn(t *testing.T) {
	f := newFixture(t, "2024-02-10")
	item := f.item("Chair", 5, domain.StatusInStock)

	r, err := f.svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []Line{{item.ID, 2}, {item.ID, 1}},
		ExpectedOn: day("2024-02-12"),
	})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{item.ID}, r.Items)
	assert.Equal(t, 3, r.RequestedCopies[item.ID])
	assert.Equal(t, day("2024-02-10"), r.RentedOn)
}

func TestCreateRental_RaceForLastCopy(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	item := f.item("Projector", 1, domain.StatusInStock)

	const workers = 16
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.rent(Line{item.ID, 1})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, domain.ErrItemUnavailable)
		assert.NotErrorIs(t, err, store.ErrConflict)
	}
	assert.Equal(t, 1, wins)

	page, err := f.store.ListRentals(f.ctx, store.Query{})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, domain.StatusOutOfStock, f.reload(item).Status)
}

// conflictingStore loses every commit race.
type conflictingStore struct {
	*memory.Store
	commits int
}

func (s *conflictingStore) Commit(ctx context.Context, b *store.Batch) error {
	s.commits++
	return store.ErrConflict
}

func TestRetry_SecondConflictIsTranslated(t *testing.T) {
	f := newFixture(t, "2024-01-01")
	item := f.item("Drill", 2, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 2})
	require.NoError(t, err)

	cs := &conflictingStore{Store: f.store}
	svc := NewService(cs, WithClock(fixedClock{day("2024-01-02")}))

	_, err = svc.CreateRental(f.ctx, CreateRentalRequest{
		CustomerID: f.customer.ID,
		Items:      []Line{{f.item("Saw", 1, domain.StatusInStock).ID, 1}},
		ExpectedOn: day("2024-01-08"),
	})
	var unavailable *domain.ItemUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Len(t, unavailable.Items, 1)
	assert.Equal(t, 2, cs.commits)

	_, err = svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1})
	var badCount *domain.InvalidReturnCountError
	require.ErrorAs(t, err, &badCount)
	assert.Equal(t, 2, badCount.Outstanding)
	assert.Equal(t, 4, cs.commits)

	_, err = svc.ExtendRental(f.ctx, rental.ID, day("2024-01-20"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidExtension)

	_, err = svc.ReturnDeposit(f.ctx, rental.ID, decimal.NewFromInt(5), "")
	var overpay *domain.DepositOverpayError
	require.ErrorAs(t, err, &overpay)
	assert.NotErrorIs(t, err, store.ErrConflict)
	assert.True(t, overpay.Deposit.Equal(decimal.NewFromInt(50)))
	assert.True(t, overpay.DepositBack.IsZero(), "reported from the last read, not the failed write")
	assert.True(t, overpay.Amount.Equal(decimal.NewFromInt(5)))
	assert.Equal(t, 8, cs.commits)
}

func TestRecordReturn_ScenarioD(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Tent", 2, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 2})
	require.NoError(t, err)
	require.Equal(t, domain.StatusOutOfStock, f.reload(item).Status)

	rental, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1, Employee: "lee"})
	require.NoError(t, err)
	assert.Nil(t, rental.ReturnedOn)
	assert.Equal(t, 1, rental.ReturnedItems[item.ID])
	assert.Equal(t, "lee", rental.CheckinEmployee)
	assert.Equal(t, domain.StatusOutOfStock, f.reload(item).Status)

	view, err := f.svc.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.True(t, view.PartiallyReturned)
	assert.Equal(t, domain.RentalPartiallyReturned, view.Status)

	rental, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1})
	require.NoError(t, err)
	require.NotNil(t, rental.ReturnedOn)
	assert.Equal(t, day("2024-01-05"), *rental.ReturnedOn)
	assert.Equal(t, domain.StatusInStock, f.reload(item).Status)

	view, err = f.svc.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.True(t, view.FullyReturned)
	assert.Equal(t, domain.RentalReturnedToday, view.Status)
	assert.Equal(t, "green", view.Highlight.Color)
}

func TestRecordReturn_ScenarioE(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Tent", 2, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 2})
	require.NoError(t, err)

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 5})
	var badCount *domain.InvalidReturnCountError
	require.ErrorAs(t, err, &badCount)
	assert.Equal(t, 2, badCount.Outstanding)

	stored, err := f.store.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, rental.Version, stored.Version)
	assert.Equal(t, 0, stored.ReturnedItems[item.ID])

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: uuid.New(), Count: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidReturnCount)
	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 0})
	assert.ErrorIs(t, err, domain.ErrInvalidReturnCount)
}

func TestRecordReturn_StaffStatusIsSticky(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Camera", 1, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 1})
	require.NoError(t, err)

	lost := f.reload(item)
	lost.Status = domain.StatusRepairing
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Update(lost)))

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRepairing, f.reload(item).Status)
}

func TestRecordReturn_MultiItemClosesOnlyWhenAllBack(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	a := f.item("Table", 1, domain.StatusInStock)
	b := f.item("Bench", 2, domain.StatusInStock)
	rental, err := f.rent(Line{a.ID, 1}, Line{b.ID, 2})
	require.NoError(t, err)

	rental, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: a.ID, Count: 1})
	require.NoError(t, err)
	assert.Nil(t, rental.ReturnedOn)
	assert.Equal(t, domain.StatusOutOfStock, f.reload(a).Status)

	rental, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: b.ID, Count: 2})
	require.NoError(t, err)
	assert.NotNil(t, rental.ReturnedOn)
	assert.Equal(t, domain.StatusInStock, f.reload(a).Status)
	assert.Equal(t, domain.StatusInStock, f.reload(b).Status)

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: b.ID, Count: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidReturnCount)
}

func TestDeposit(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Tent", 1, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 1})
	require.NoError(t, err)

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1, DepositBack: decimal.NewFromInt(60)})
	var overpay *domain.DepositOverpayError
	require.ErrorAs(t, err, &overpay)
	stored, err := f.store.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ReturnedOn)

	rental, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1, DepositBack: decimal.NewFromInt(30)})
	require.NoError(t, err)
	assert.NotNil(t, rental.ReturnedOn)

	view, err := f.svc.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.False(t, view.DepositReconciled)
	assert.True(t, view.DepositOutstanding.Equal(decimal.NewFromInt(20)))

	rental, err = f.svc.ReturnDeposit(f.ctx, rental.ID, decimal.NewFromInt(20), "lee")
	require.NoError(t, err)
	assert.True(t, rental.DepositBack.Equal(rental.Deposit))

	_, err = f.svc.ReturnDeposit(f.ctx, rental.ID, decimal.NewFromFloat(0.01), "")
	assert.ErrorIs(t, err, domain.ErrDepositOverpay)
	_, err = f.svc.ReturnDeposit(f.ctx, rental.ID, decimal.Zero, "")
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestExtendRental(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Tent", 1, domain.StatusInStock)
	rental, err := f.rent(Line{item.ID, 1})
	require.NoError(t, err)

	_, err = f.svc.ExtendRental(f.ctx, rental.ID, day("2024-01-08"), "")
	var bad *domain.InvalidExtensionError
	require.ErrorAs(t, err, &bad)
	assert.False(t, bad.Closed)
	assert.Equal(t, day("2024-01-08"), bad.CurrentDue)

	rental, err = f.svc.ExtendRental(f.ctx, rental.ID, day("2024-01-12"), "lee")
	require.NoError(t, err)
	require.NotNil(t, rental.ExtendedOn)
	assert.Equal(t, day("2024-01-12"), *rental.ExtendedOn)

	stored, err := f.store.GetRental(f.ctx, rental.ID)
	require.NoError(t, err)
	assert.Equal(t, "kim", stored.CheckoutEmployee, "extension keeps the checkout stamp")
	assert.Equal(t, "lee", stored.ExtendedBy)

	_, err = f.svc.ExtendRental(f.ctx, rental.ID, day("2024-01-10"), "")
	assert.ErrorIs(t, err, domain.ErrInvalidExtension)

	_, err = f.svc.RecordReturn(f.ctx, rental.ID, ReturnRequest{ItemID: item.ID, Count: 1})
	require.NoError(t, err)
	_, err = f.svc.ExtendRental(f.ctx, rental.ID, day("2024-02-01"), "")
	require.ErrorAs(t, err, &bad)
	assert.True(t, bad.Closed)
}

func (f *fixture) reservation(items ...*domain.Item) *domain.Reservation {
	f.t.Helper()
	res := &domain.Reservation{Header: domain.NewHeader(), CustomerID: &f.customer.ID, Pickup: day("2024-01-03"), Comments: "front desk"}
	b := store.NewBatch().Create(res)
	queued := make(map[uuid.UUID]bool)
	for _, item := range items {
		res.Items = append(res.Items, item.ID)
		if queued[item.ID] {
			continue
		}
		queued[item.ID] = true
		item.Status = domain.StatusReserved
		b.Update(item)
	}
	require.NoError(f.t, f.store.Commit(f.ctx, b))
	return res
}

func TestConvertReservation(t *testing.T) {
	f := newFixture(t, "2024-01-03")
	a := f.item("Tent", 1, domain.StatusInStock)
	b := f.item("Stove", 3, domain.StatusInStock)
	res := f.reservation(a, b, b)

	rental, err := f.svc.ConvertReservation(f.ctx, ConvertRequest{
		ReservationID: res.ID,
		Deposit:       decimal.NewFromInt(40),
		ExpectedOn:    day("2024-01-10"),
		Employee:      "kim",
	})
	require.NoError(t, err)
	assert.Equal(t, f.customer.ID, rental.CustomerID)
	assert.Equal(t, map[uuid.UUID]int{a.ID: 1, b.ID: 2}, rental.RequestedCopies)
	require.NotNil(t, rental.ReservationID)
	assert.Equal(t, res.ID, *rental.ReservationID)
	assert.Equal(t, day("2024-01-03"), rental.RentedOn)

	stored, err := f.store.GetReservation(f.ctx, res.ID)
	require.NoError(t, err)
	assert.True(t, stored.Done)
	require.NotNil(t, stored.RentalID)
	assert.Equal(t, rental.ID, *stored.RentalID)

	assert.Equal(t, domain.StatusOutOfStock, f.reload(a).Status)
	assert.Equal(t, domain.StatusInStock, f.reload(b).Status)

	_, err = f.svc.ConvertReservation(f.ctx, ConvertRequest{ReservationID: res.ID, ExpectedOn: day("2024-01-10")})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
}

func TestConvertReservation_KeepsReservedForOtherReservations(t *testing.T) {
	f := newFixture(t, "2024-01-03")
	item := f.item("Canoe", 2, domain.StatusInStock)
	first := f.reservation(item)
	f.reservation(f.reload(item))

	_, err := f.svc.ConvertReservation(f.ctx, ConvertRequest{ReservationID: first.ID, ExpectedOn: day("2024-01-10")})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusReserved, f.reload(item).Status)
}

func TestConvertReservation_ItemNoLongerAvailable(t *testing.T) {
	f := newFixture(t, "2024-01-03")
	a := f.item("Tent", 1, domain.StatusInStock)
	b := f.item("Stove", 1, domain.StatusInStock)
	res := f.reservation(a, b)

	broken := f.reload(b)
	broken.Status = domain.StatusLost
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Update(broken)))

	_, err := f.svc.ConvertReservation(f.ctx, ConvertRequest{ReservationID: res.ID, ExpectedOn: day("2024-01-10")})
	var gone *domain.ItemNoLongerAvailableError
	require.ErrorAs(t, err, &gone)
	assert.Equal(t, res.ID, gone.ReservationID)
	require.Len(t, gone.Items, 1)
	assert.Equal(t, b.ID, gone.Items[0].ItemID)

	stored, err := f.store.GetReservation(f.ctx, res.ID)
	require.NoError(t, err)
	assert.False(t, stored.Done)
	assert.Equal(t, domain.StatusReserved, f.reload(a).Status)
}

func TestConvertReservation_RequiresRegisteredCustomer(t *testing.T) {
	f := newFixture(t, "2024-01-03")
	item := f.item("Tent", 1, domain.StatusInStock)
	res := &domain.Reservation{Header: domain.NewHeader(), CustomerName: "walk-in", Items: []uuid.UUID{item.ID}}
	require.NoError(t, f.store.Commit(f.ctx, store.NewBatch().Create(res)))

	_, err := f.svc.ConvertReservation(f.ctx, ConvertRequest{ReservationID: res.ID, ExpectedOn: day("2024-01-10")})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestAvailabilityAndHistory(t *testing.T) {
	f := newFixture(t, "2024-01-05")
	item := f.item("Chair", 10, domain.StatusInStock)
	r1, err := f.rent(Line{item.ID, 4})
	require.NoError(t, err)
	_, err = f.rent(Line{item.ID, 3})
	require.NoError(t, err)
	_, err = f.svc.RecordReturn(f.ctx, r1.ID, ReturnRequest{ItemID: item.ID, Count: 1})
	require.NoError(t, err)

	avail, err := f.svc.Availability(f.ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, avail.Copies)
	assert.Equal(t, 6, avail.Outstanding)
	assert.Equal(t, 4, avail.Free)

	changes, err := f.svc.History(f.ctx, r1.ID)
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, store.Created, changes[0].Action)
	assert.Equal(t, 2, changes[1].Version)

	_, err = f.svc.History(f.ctx, item.ID)
	assert.True(t, errors.Is(err, store.ErrNotFound))
}
