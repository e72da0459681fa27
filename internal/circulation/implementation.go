// internal/circulation/implementation.go
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"lendnexus/internal/domain"
	"lendnexus/internal/feed"
	"lendnexus/internal/inventory"
	"lendnexus/internal/ledger"
	"lendnexus/internal/store"
	"lendnexus/internal/temporal"
)

// DefaultDueSoonDays is the due-soon window when none is configured.
const DefaultDueSoonDays = 3

// service implements the Service interface.
type service struct {
	store       store.Store
	clock       Clock
	dueSoonDays int
	rentals     *feed.View[*domain.Rental]

	tracer    trace.Tracer
	created   metric.Int64Counter
	returned  metric.Int64Counter
	conflicts metric.Int64Counter
}

// Option configures the service.
type Option func(*service)

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(s *service) { s.clock = c }
}

// WithDueSoonDays sets the due-soon window.
func WithDueSoonDays(days int) Option {
	return func(s *service) { s.dueSoonDays = days }
}

// WithRentalView makes the dashboard read open rentals from a live view
// instead of querying the store.
func WithRentalView(v *feed.View[*domain.Rental]) Option {
	return func(s *service) { s.rentals = v }
}

// NewService creates a new circulation service instance.
func NewService(st store.Store, opts ...Option) Service {
	meter := otel.Meter("lendnexus/circulation")
	s := &service{
		store:       st,
		clock:       SystemClock{},
		dueSoonDays: DefaultDueSoonDays,
		tracer:      otel.Tracer("lendnexus/circulation"),
		created:     counter(meter, "lendnexus.rentals.created", "Rentals opened"),
		returned:    counter(meter, "lendnexus.returns.recorded", "Return bookings"),
		conflicts:   counter(meter, "lendnexus.store.conflicts", "Store conflicts retried"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func counter(meter metric.Meter, name, desc string) metric.Int64Counter {
	c, err := meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		log.WithError(err).WithField("instrument", name).Warn("Failed to create counter")
		return noop.Int64Counter{}
	}
	return c
}

func (s *service) today() time.Time {
	return temporal.Day(s.clock.Now())
}

// retry runs attempt again with a fresh read when the first commit lost a
// race. A second conflict is returned as is for the caller to translate.
func (s *service) retry(ctx context.Context, op string, attempt func() error) error {
	err := attempt()
	if !errors.Is(err, store.ErrConflict) {
		return err
	}
	s.conflicts.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	log.WithError(err).WithField("operation", op).Warn("Store conflict, retrying with fresh read")
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("conflict.detected", true))
	return attempt()
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// claim is one item of a rental being opened, as read just before writing.
type claim struct {
	item   *domain.Item
	avail  inventory.Availability
	copies int
}

func (c claim) shortfall() domain.Shortfall {
	return domain.Shortfall{
		ItemID:    c.item.ID,
		DisplayID: c.item.DisplayID,
		Name:      c.item.Name,
		Status:    c.item.Status,
		Requested: c.copies,
		Available: c.avail.Free,
	}
}

func shortfalls(claims []claim) []domain.Shortfall {
	out := make([]domain.Shortfall, len(claims))
	for i, c := range claims {
		out[i] = c.shortfall()
	}
	return out
}

// validateLines merges repeated items and checks copy counts.
func validateLines(lines []Line) ([]uuid.UUID, map[uuid.UUID]int, error) {
	if len(lines) == 0 {
		return nil, nil, domain.Invalidf("a rental needs at least one item")
	}
	order := make([]uuid.UUID, 0, len(lines))
	copies := make(map[uuid.UUID]int, len(lines))
	for _, l := range lines {
		if l.ItemID == uuid.Nil {
			return nil, nil, domain.Invalidf("item id is required")
		}
		if l.Copies < 1 {
			return nil, nil, domain.Invalidf("copies of item %s must be at least 1, got %d", l.ItemID, l.Copies)
		}
		if _, seen := copies[l.ItemID]; !seen {
			order = append(order, l.ItemID)
		}
		copies[l.ItemID] += l.Copies
	}
	return order, copies, nil
}

func (s *service) validateTerms(deposit decimal.Decimal, rentedOn, expectedOn time.Time) (time.Time, time.Time, error) {
	if deposit.IsNegative() {
		return rentedOn, expectedOn, domain.Invalidf("deposit must not be negative")
	}
	if rentedOn.IsZero() {
		rentedOn = s.today()
	}
	if expectedOn.IsZero() {
		return rentedOn, expectedOn, domain.Invalidf("expected return date is required")
	}
	rentedOn, expectedOn = temporal.Day(rentedOn), temporal.Day(expectedOn)
	if expectedOn.Before(rentedOn) {
		return rentedOn, expectedOn, domain.Invalidf("expected return %s is before rental date %s",
			expectedOn.Format(time.DateOnly), rentedOn.Format(time.DateOnly))
	}
	return rentedOn, expectedOn, nil
}

// claimItems reads every item fresh and derives its free copies.
func (s *service) claimItems(ctx context.Context, order []uuid.UUID, copies map[uuid.UUID]int) ([]claim, []domain.Shortfall, error) {
	claims := make([]claim, 0, len(order))
	var short []domain.Shortfall
	for _, id := range order {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, nil, fmt.Errorf("get item: %w", err)
		}
		avail, err := s.availability(ctx, item, nil)
		if err != nil {
			return nil, nil, err
		}
		c := claim{item: item, avail: avail, copies: copies[id]}
		if sf := inventory.Check(item, avail, c.copies); sf != nil {
			short = append(short, *sf)
		}
		claims = append(claims, c)
	}
	return claims, short, nil
}

// lend moves every claimed item through the rent transition and queues the
// item writes. Items are written even when their status stays the same so
// concurrent rentals of the same item collide on its version.
func lend(b *store.Batch, claims []claim) error {
	for _, c := range claims {
		status, err := inventory.Apply(c.item.Status, inventory.ActionRent, c.avail.Free-c.copies)
		if err != nil {
			return err
		}
		c.item.Status = status
		b.Update(c.item)
	}
	return nil
}

func newRental(customerID uuid.UUID, order []uuid.UUID, copies map[uuid.UUID]int, deposit decimal.Decimal, rentedOn, expectedOn time.Time, employee string) *domain.Rental {
	r := &domain.Rental{
		Header:           domain.NewHeader(),
		CustomerID:       customerID,
		Deposit:          deposit,
		DepositBack:      decimal.Zero,
		RentedOn:         rentedOn,
		ExpectedOn:       expectedOn,
		CheckoutEmployee: employee,
	}
	ledger.Open(r, order, copies)
	return r
}

// CreateRental checks every item against its live availability and opens
// the rental together with the item status changes.
func (s *service) CreateRental(ctx context.Context, req CreateRentalRequest) (*domain.Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.create_rental",
		trace.WithAttributes(
			attribute.String("customer.id", req.CustomerID.String()),
			attribute.Int("item.count", len(req.Items)),
		),
	)
	defer span.End()

	if req.CustomerID == uuid.Nil {
		return nil, fail(span, domain.Invalidf("customer id is required"))
	}
	order, copies, err := validateLines(req.Items)
	if err != nil {
		return nil, fail(span, err)
	}
	rentedOn, expectedOn, err := s.validateTerms(req.Deposit, req.RentedOn, req.ExpectedOn)
	if err != nil {
		return nil, fail(span, err)
	}
	if _, err := s.store.GetCustomer(ctx, req.CustomerID); err != nil {
		return nil, fail(span, fmt.Errorf("get customer: %w", err))
	}

	var rental *domain.Rental
	var claims []claim
	err = s.retry(ctx, "create_rental", func() error {
		var short []domain.Shortfall
		var err error
		claims, short, err = s.claimItems(ctx, order, copies)
		if err != nil {
			return err
		}
		if len(short) > 0 {
			return &domain.ItemUnavailableError{Items: short}
		}

		rental = newRental(req.CustomerID, order, copies, req.Deposit, rentedOn, expectedOn, req.Employee)
		rental.Remark = req.Remark

		b := store.NewBatch().Create(rental)
		if err := lend(b, claims); err != nil {
			return err
		}
		return s.store.Commit(ctx, b)
	})
	if errors.Is(err, store.ErrConflict) {
		err = &domain.ItemUnavailableError{Items: shortfalls(claims)}
	}
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("rental.id", rental.ID.String()))
	s.created.Add(ctx, 1)
	log.WithFields(log.Fields{
		"rental_id":   rental.ID,
		"customer_id": rental.CustomerID,
		"items":       len(rental.Items),
	}).Info("Rental created")
	return rental, nil
}

// ExtendRental moves the due date of an open rental forward.
func (s *service) ExtendRental(ctx context.Context, rentalID uuid.UUID, newExpectedOn time.Time, employee string) (*domain.Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.extend_rental",
		trace.WithAttributes(attribute.String("rental.id", rentalID.String())),
	)
	defer span.End()

	if newExpectedOn.IsZero() {
		return nil, fail(span, domain.Invalidf("new expected return date is required"))
	}
	requested := temporal.Day(newExpectedOn)

	var rental *domain.Rental
	err := s.retry(ctx, "extend_rental", func() error {
		var err error
		rental, err = s.store.GetRental(ctx, rentalID)
		if err != nil {
			return fmt.Errorf("get rental: %w", err)
		}
		due := temporal.EffectiveDue(rental.ExpectedOn, rental.ExtendedOn)
		if rental.Closed() || !requested.After(due) {
			return &domain.InvalidExtensionError{
				RentalID:   rental.ID,
				Requested:  requested,
				CurrentDue: due,
				Closed:     rental.Closed(),
			}
		}
		rental.ExtendedOn = &requested
		if employee != "" {
			rental.ExtendedBy = employee
		}
		return s.store.Commit(ctx, store.NewBatch().Update(rental))
	})
	if errors.Is(err, store.ErrConflict) {
		err = &domain.InvalidExtensionError{
			RentalID:   rentalID,
			Requested:  requested,
			CurrentDue: temporal.EffectiveDue(rental.ExpectedOn, rental.ExtendedOn),
		}
	}
	if err != nil {
		return nil, fail(span, err)
	}

	log.WithFields(log.Fields{
		"rental_id": rental.ID,
		"due_on":    requested.Format(time.DateOnly),
	}).Info("Rental extended")
	return rental, nil
}

// RecordReturn books returned copies and deposit. When the last copy comes
// back the rental is closed today and its items are released.
func (s *service) RecordReturn(ctx context.Context, rentalID uuid.UUID, req ReturnRequest) (*domain.Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.record_return",
		trace.WithAttributes(
			attribute.String("rental.id", rentalID.String()),
			attribute.String("item.id", req.ItemID.String()),
			attribute.Int("return.count", req.Count),
		),
	)
	defer span.End()

	if req.DepositBack.IsNegative() {
		return nil, fail(span, domain.Invalidf("deposit returned must not be negative"))
	}

	var rental *domain.Rental
	outstanding := 0
	err := s.retry(ctx, "record_return", func() error {
		var err error
		rental, err = s.store.GetRental(ctx, rentalID)
		if err != nil {
			return fmt.Errorf("get rental: %w", err)
		}
		outstanding = ledger.Remaining(rental, req.ItemID)

		if err := ledger.RecordReturn(rental, req.ItemID, req.Count); err != nil {
			return err
		}
		if !req.DepositBack.IsZero() {
			if err := ledger.RecordDepositReturn(rental, req.DepositBack); err != nil {
				return err
			}
		}
		if req.Employee != "" {
			rental.CheckinEmployee = req.Employee
		}

		b := store.NewBatch().Update(rental)
		if ledger.FullyReturned(rental) {
			today := s.today()
			rental.ReturnedOn = &today
			if err := s.release(ctx, b, rental); err != nil {
				return err
			}
		} else {
			item, err := s.store.GetItem(ctx, req.ItemID)
			if err != nil {
				return fmt.Errorf("get item: %w", err)
			}
			b.Update(item)
		}
		return s.store.Commit(ctx, b)
	})
	if errors.Is(err, store.ErrConflict) {
		err = &domain.InvalidReturnCountError{ItemID: req.ItemID, Count: req.Count, Outstanding: outstanding}
	}
	if err != nil {
		return nil, fail(span, err)
	}

	s.returned.Add(ctx, int64(req.Count))
	fields := log.Fields{
		"rental_id": rental.ID,
		"item_id":   req.ItemID,
		"count":     req.Count,
	}
	if rental.Closed() {
		log.WithFields(fields).Info("Rental returned")
	} else {
		log.WithFields(fields).Info("Partial return recorded")
	}
	return rental, nil
}

// release applies the return transition to every item of a rental that has
// just closed. Availability is derived with the closed rental in place of
// its stored copy.
func (s *service) release(ctx context.Context, b *store.Batch, rental *domain.Rental) error {
	for _, id := range rental.Items {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		avail, err := s.availability(ctx, item, rental)
		if err != nil {
			return err
		}
		status, err := inventory.Apply(item.Status, inventory.ActionReturn, avail.Free)
		if err != nil {
			return err
		}
		item.Status = status
		b.Update(item)
	}
	return nil
}

// ReturnDeposit hands back deposit without returning copies.
func (s *service) ReturnDeposit(ctx context.Context, rentalID uuid.UUID, amount decimal.Decimal, employee string) (*domain.Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.return_deposit",
		trace.WithAttributes(attribute.String("rental.id", rentalID.String())),
	)
	defer span.End()

	if !amount.IsPositive() {
		return nil, fail(span, domain.Invalidf("deposit amount must be positive"))
	}

	var rental *domain.Rental
	var deposit, back decimal.Decimal
	err := s.retry(ctx, "return_deposit", func() error {
		var err error
		rental, err = s.store.GetRental(ctx, rentalID)
		if err != nil {
			return fmt.Errorf("get rental: %w", err)
		}
		deposit, back = rental.Deposit, rental.DepositBack
		if err := ledger.RecordDepositReturn(rental, amount); err != nil {
			return err
		}
		if employee != "" {
			rental.CheckinEmployee = employee
		}
		return s.store.Commit(ctx, store.NewBatch().Update(rental))
	})
	if errors.Is(err, store.ErrConflict) {
		err = &domain.DepositOverpayError{Deposit: deposit, DepositBack: back, Amount: amount}
	}
	if err != nil {
		return nil, fail(span, err)
	}

	log.WithFields(log.Fields{
		"rental_id":  rental.ID,
		"reconciled": ledger.DepositFullyReconciled(rental),
	}).Info("Deposit returned")
	return rental, nil
}

// ConvertReservation re-checks the reserved items and opens a rental for
// them. The reservation is marked done and items no other open reservation
// holds lose their reserved status.
func (s *service) ConvertReservation(ctx context.Context, req ConvertRequest) (*domain.Rental, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.convert_reservation",
		trace.WithAttributes(attribute.String("reservation.id", req.ReservationID.String())),
	)
	defer span.End()

	rentedOn, expectedOn, err := s.validateTerms(req.Deposit, req.RentedOn, req.ExpectedOn)
	if err != nil {
		return nil, fail(span, err)
	}

	var rental *domain.Rental
	var claims []claim
	err = s.retry(ctx, "convert_reservation", func() error {
		res, err := s.store.GetReservation(ctx, req.ReservationID)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		if res.Done {
			return fmt.Errorf("%w: reservation %s is already done", domain.ErrInvalidTransition, res.ID)
		}
		if res.CustomerID == nil {
			return domain.Invalidf("reservation %s has no registered customer", res.ID)
		}
		if len(res.Items) == 0 {
			return domain.Invalidf("reservation %s has no items", res.ID)
		}

		order, copies := res.CopiesByItem()
		var short []domain.Shortfall
		claims, short, err = s.claimItems(ctx, order, copies)
		if err != nil {
			return err
		}
		if len(short) > 0 {
			return &domain.ItemNoLongerAvailableError{ReservationID: res.ID, Items: short}
		}

		rental = newRental(*res.CustomerID, order, copies, req.Deposit, rentedOn, expectedOn, req.Employee)
		rental.ReservationID = &res.ID
		rental.Remark = res.Comments

		b := store.NewBatch().Create(rental)
		if err := lend(b, claims); err != nil {
			return err
		}
		for _, c := range claims {
			if c.item.Status != domain.StatusReserved {
				continue
			}
			held, err := s.reservedElsewhere(ctx, c.item.ID, res.ID)
			if err != nil {
				return err
			}
			if !held {
				status, err := inventory.Apply(c.item.Status, inventory.ActionRelease, c.avail.Free-c.copies)
				if err != nil {
					return err
				}
				c.item.Status = status
			}
		}

		res.Done = true
		res.RentalID = &rental.ID
		b.Update(res)
		return s.store.Commit(ctx, b)
	})
	if errors.Is(err, store.ErrConflict) {
		err = &domain.ItemNoLongerAvailableError{ReservationID: req.ReservationID, Items: shortfalls(claims)}
	}
	if err != nil {
		return nil, fail(span, err)
	}

	s.created.Add(ctx, 1, metric.WithAttributes(attribute.Bool("from_reservation", true)))
	log.WithFields(log.Fields{
		"rental_id":      rental.ID,
		"reservation_id": req.ReservationID,
		"items":          len(rental.Items),
	}).Info("Reservation converted")
	return rental, nil
}

// reservedElsewhere reports whether an open reservation other than except
// holds the item.
func (s *service) reservedElsewhere(ctx context.Context, itemID, except uuid.UUID) (bool, error) {
	open, err := store.Collect(ctx, s.store.ListReservations, store.Query{ItemID: itemID, OpenOnly: true})
	if err != nil {
		return false, fmt.Errorf("list reservations: %w", err)
	}
	for _, r := range open {
		if r.ID != except {
			return true, nil
		}
	}
	return false, nil
}
