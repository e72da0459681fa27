// internal/reservation/implementation.go
package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
	"lendnexus/internal/httpx"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

// DefaultAttemptsPerMinute bounds pickup code guesses per reservation.
const DefaultAttemptsPerMinute = 5

// service implements the Service interface.
type service struct {
	store  store.Store
	avail  AvailabilitySource
	tracer trace.Tracer

	attempts rate.Limit
	burst    int
	mu       sync.Mutex
	limiters map[uuid.UUID]*rate.Limiter
}

// Option configures the service.
type Option func(*service)

// WithAttemptLimit allows perMinute pickup code attempts per reservation.
func WithAttemptLimit(perMinute int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			s.attempts, s.burst = rate.Inf, 0
			return
		}
		s.attempts, s.burst = rate.Every(time.Minute/time.Duration(perMinute)), perMinute
	}
}

// NewService creates a new reservation service instance.
func NewService(st store.Store, avail AvailabilitySource, opts ...Option) Service {
	s := &service{
		store:    st,
		avail:    avail,
		tracer:   otel.Tracer("lendnexus/reservation"),
		limiters: make(map[uuid.UUID]*rate.Limiter),
	}
	WithAttemptLimit(DefaultAttemptsPerMinute)(s)
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// retry re-runs attempt once after a lost compare-and-write.
func retry(ctx context.Context, attempt func() error) error {
	err := attempt()
	if errors.Is(err, store.ErrConflict) {
		log.WithError(err).Warn("Store conflict, retrying with fresh read")
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("conflict.detected", true))
		return attempt()
	}
	return err
}

// CreateReservation marks the requested items reserved and stores the
// reservation with a hashed pickup code. The plain code is returned once.
func (s *service) CreateReservation(ctx context.Context, req CreateRequest) (*Created, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.create",
		trace.WithAttributes(attribute.Int("item.count", len(req.Items))),
	)
	defer span.End()

	req.CustomerName = strings.TrimSpace(req.CustomerName)
	if req.CustomerID == nil && req.CustomerName == "" {
		return nil, fail(span, domain.Invalidf("a reservation needs a customer id or a customer name"))
	}
	if len(req.Items) == 0 {
		return nil, fail(span, domain.Invalidf("a reservation needs at least one item"))
	}
	for _, id := range req.Items {
		if id == uuid.Nil {
			return nil, fail(span, domain.Invalidf("item id is required"))
		}
	}
	if req.Pickup.IsZero() {
		return nil, fail(span, domain.Invalidf("pickup time is required"))
	}
	if req.CustomerID != nil {
		if _, err := s.store.GetCustomer(ctx, *req.CustomerID); err != nil {
			return nil, fail(span, fmt.Errorf("get customer: %w", err))
		}
	}

	code, err := newCode()
	if err != nil {
		return nil, fail(span, fmt.Errorf("pickup code: %w", err))
	}
	hash, salt, err := hashCode(code)
	if err != nil {
		return nil, fail(span, fmt.Errorf("hash pickup code: %w", err))
	}

	var res *domain.Reservation
	err = retry(ctx, func() error {
		res = &domain.Reservation{
			Header:       domain.NewHeader(),
			CustomerID:   req.CustomerID,
			CustomerName: req.CustomerName,
			CustomerInfo: req.CustomerInfo,
			Items:        req.Items,
			Pickup:       req.Pickup,
			OnPremises:   req.OnPremises,
			Comments:     req.Comments,
			CodeHash:     hash,
			CodeSalt:     salt,
		}
		b := store.NewBatch().Create(res)
		if err := s.reserve(ctx, b, res); err != nil {
			return err
		}
		return s.store.Commit(ctx, b)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	span.SetAttributes(attribute.String("reservation.id", res.ID.String()))
	log.WithFields(log.Fields{
		"reservation_id": res.ID,
		"display_id":     res.DisplayID,
		"items":          len(res.Items),
	}).Info("Reservation created")

	v, err := s.view(ctx, res)
	if err != nil {
		return nil, fail(span, err)
	}
	return &Created{View: v, Code: code}, nil
}

// reserve checks every item of res and queues its move to reserved.
func (s *service) reserve(ctx context.Context, b *store.Batch, res *domain.Reservation) error {
	order, counts := res.CopiesByItem()
	items := make([]*domain.Item, 0, len(order))
	var short []domain.Shortfall
	for _, id := range order {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if !inventory.Reservable(item.Status) || counts[id] > item.Copies {
			avail, err := s.avail.Availability(ctx, id)
			if err != nil {
				return fmt.Errorf("availability: %w", err)
			}
			short = append(short, domain.Shortfall{
				ItemID:    item.ID,
				DisplayID: item.DisplayID,
				Name:      item.Name,
				Status:    item.Status,
				Requested: counts[id],
				Available: avail.Free,
			})
			continue
		}
		items = append(items, item)
	}
	if len(short) > 0 {
		return &domain.ItemUnavailableError{Items: short}
	}
	for _, item := range items {
		status, err := inventory.Apply(item.Status, inventory.ActionReserve, 0)
		if err != nil {
			return err
		}
		item.Status = status
		b.Update(item)
	}
	return nil
}

func (s *service) limiter(id uuid.UUID) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.limiters[id]
	if !ok {
		l = rate.NewLimiter(s.attempts, s.burst)
		s.limiters[id] = l
	}
	return l
}

func (s *service) forget(id uuid.UUID) {
	s.mu.Lock()
	delete(s.limiters, id)
	s.mu.Unlock()
}

func (s *service) VerifyCode(ctx context.Context, id uuid.UUID, code string) (*View, error) {
	ctx, span := s.tracer.Start(ctx, "reservation.verify_code",
		trace.WithAttributes(attribute.String("reservation.id", id.String())),
	)
	defer span.End()

	// Only reservations that exist get an attempt budget.
	res, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fail(span, fmt.Errorf("get reservation: %w", err))
	}
	if res.Done {
		s.forget(id)
		return nil, fail(span, fmt.Errorf("%w: reservation %s is already done", domain.ErrInvalidTransition, id))
	}
	if !s.limiter(id).Allow() {
		return nil, fail(span, fmt.Errorf("%w: too many pickup code attempts", httpx.ErrRateLimited))
	}
	if res.CodeHash == "" {
		return nil, fail(span, domain.ErrInvalidPickupCode)
	}
	ok, err := verifyCode(strings.TrimSpace(code), res.CodeSalt, res.CodeHash)
	if err != nil {
		return nil, fail(span, fmt.Errorf("verify pickup code: %w", err))
	}
	if !ok {
		log.WithField("reservation_id", id).Warn("Wrong pickup code")
		return nil, fail(span, domain.ErrInvalidPickupCode)
	}

	s.forget(id)
	return s.view(ctx, res)
}

// CancelReservation deletes an open reservation. Items that no other open
// reservation holds lose their reserved status.
func (s *service) CancelReservation(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "reservation.cancel",
		trace.WithAttributes(attribute.String("reservation.id", id.String())),
	)
	defer span.End()

	err := retry(ctx, func() error {
		res, err := s.store.GetReservation(ctx, id)
		if err != nil {
			return fmt.Errorf("get reservation: %w", err)
		}
		if res.Done {
			return fmt.Errorf("%w: reservation %s is already done", domain.ErrInvalidTransition, id)
		}

		b := store.NewBatch()
		order, _ := res.CopiesByItem()
		for _, itemID := range order {
			item, err := s.store.GetItem(ctx, itemID)
			if err != nil {
				return fmt.Errorf("get item: %w", err)
			}
			if item.Status != domain.StatusReserved {
				continue
			}
			held, err := s.reservedElsewhere(ctx, itemID, id)
			if err != nil {
				return err
			}
			if held {
				continue
			}
			avail, err := s.avail.Availability(ctx, itemID)
			if err != nil {
				return fmt.Errorf("availability: %w", err)
			}
			status, err := inventory.Apply(item.Status, inventory.ActionRelease, avail.Free)
			if err != nil {
				return err
			}
			item.Status = status
			b.Update(item)
		}
		b.Delete(res)
		return s.store.Commit(ctx, b)
	})
	if err != nil {
		return fail(span, err)
	}

	s.forget(id)
	log.WithField("reservation_id", id).Info("Reservation cancelled")
	return nil
}

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

// redact returns a copy of r without the pickup code hash.
func redact(r *domain.Reservation) *domain.Reservation {
	c := *r
	c.CodeHash, c.CodeSalt = "", ""
	return &c
}

func (s *service) view(ctx context.Context, r *domain.Reservation) (*View, error) {
	var customer *domain.Customer
	if r.CustomerID != nil {
		c, err := s.store.GetCustomer(ctx, *r.CustomerID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("get customer: %w", err)
		}
		customer = c
	}
	order, _ := r.CopiesByItem()
	items := make([]*domain.Item, 0, len(order))
	for _, id := range order {
		item, err := s.store.GetItem(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("get item: %w", err)
		}
		items = append(items, item)
	}
	return &View{Reservation: redact(r), Highlight: highlight.ReservationRow(customer, items)}, nil
}

func (s *service) GetReservation(ctx context.Context, id uuid.UUID) (*View, error) {
	r, err := s.store.GetReservation(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return s.view(ctx, r)
}

func (s *service) ListReservations(ctx context.Context, q store.Query) (store.Page[*View], error) {
	page, err := s.store.ListReservations(ctx, q)
	if err != nil {
		return store.Page[*View]{}, fmt.Errorf("list reservations: %w", err)
	}
	out := store.Page[*View]{
		Records: make([]*View, 0, len(page.Records)),
		Total:   page.Total,
		Page:    page.Page,
		PerPage: page.PerPage,
	}
	for _, r := range page.Records {
		v, err := s.view(ctx, r)
		if err != nil {
			return store.Page[*View]{}, err
		}
		out.Records = append(out.Records, v)
	}
	return out, nil
}

// History returns the changes of a reservation with the code hash removed
// from every payload.
func (s *service) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	changes, err := s.store.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(changes) == 0 || changes[0].Kind != domain.KindReservation {
		return nil, fmt.Errorf("reservation %s: %w", id, store.ErrNotFound)
	}
	for i, c := range changes {
		if len(c.Data) == 0 {
			continue
		}
		r, err := store.DecodeAs[*domain.Reservation](domain.KindReservation, c.Data)
		if err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
		data, err := json.Marshal(redact(r))
		if err != nil {
			return nil, err
		}
		changes[i].Data = data
	}
	return changes, nil
}
