// internal/membership/implementation.go
package membership

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
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
	"lendnexus/internal/store"
	"lendnexus/internal/temporal"
)

// DefaultRegistrationsPerMinute bounds how fast customers can be registered.
const DefaultRegistrationsPerMinute = 30

// service implements the Service interface.
type service struct {
	store       store.Store
	now         func() time.Time
	rateLimiter *rate.Limiter
	tracer      trace.Tracer
}

// Option configures the service.
type Option func(*service)

// WithNow replaces the wall clock.
func WithNow(now func() time.Time) Option {
	return func(s *service) { s.now = now }
}

// WithRegistrationLimit allows perMinute registrations with bursts up to the
// same size. Zero or less disables throttling.
func WithRegistrationLimit(perMinute int) Option {
	return func(s *service) {
		if perMinute <= 0 {
			s.rateLimiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		s.rateLimiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), perMinute)
	}
}

// NewService creates a new membership service instance.
func NewService(st store.Store, opts ...Option) Service {
	s := &service{
		store:  st,
		now:    time.Now,
		tracer: otel.Tracer("lendnexus/membership"),
	}
	WithRegistrationLimit(DefaultRegistrationsPerMinute)(s)
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

func validEmail(email string) error {
	if email == "" {
		return nil
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return domain.Invalidf("invalid email %q", email)
	}
	return nil
}

// RegisterCustomer creates a new customer registered today.
func (s *service) RegisterCustomer(ctx context.Context, req RegisterRequest) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "membership.register_customer")
	defer span.End()

	if !s.rateLimiter.Allow() {
		return nil, fail(span, fmt.Errorf("%w: too many registrations", httpx.ErrRateLimited))
	}

	c := &domain.Customer{
		Header:         domain.NewHeader(),
		Firstname:      strings.TrimSpace(req.Firstname),
		Lastname:       strings.TrimSpace(req.Lastname),
		Email:          strings.TrimSpace(req.Email),
		Phone:          req.Phone,
		Street:         req.Street,
		PostalCode:     req.PostalCode,
		City:           req.City,
		RegisteredOn:   temporal.Day(s.now()),
		HighlightColor: req.HighlightColor,
		Remark:         req.Remark,
	}
	if c.Name() == "" {
		return nil, fail(span, domain.Invalidf("customer name is required"))
	}
	if err := validEmail(c.Email); err != nil {
		return nil, fail(span, err)
	}

	if err := s.store.Commit(ctx, store.NewBatch().Create(c)); err != nil {
		return nil, fail(span, fmt.Errorf("create customer: %w", err))
	}

	span.SetAttributes(attribute.String("customer.id", c.ID.String()))
	log.WithFields(log.Fields{
		"customer_id": c.ID,
		"display_id":  c.DisplayID,
	}).Info("Customer registered")
	return c, nil
}

// update re-reads the customer once if another write got in between.
func (s *service) update(ctx context.Context, id uuid.UUID, mutate func(*domain.Customer) error) (*domain.Customer, error) {
	var c *domain.Customer
	attempt := func() error {
		var err error
		c, err = s.store.GetCustomer(ctx, id)
		if err != nil {
			return fmt.Errorf("get customer: %w", err)
		}
		if err := mutate(c); err != nil {
			return err
		}
		return s.store.Commit(ctx, store.NewBatch().Update(c))
	}
	err := attempt()
	if errors.Is(err, store.ErrConflict) {
		err = attempt()
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *service) EditCustomer(ctx context.Context, id uuid.UUID, req EditRequest) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "membership.edit_customer",
		trace.WithAttributes(attribute.String("customer.id", id.String())),
	)
	defer span.End()

	c, err := s.update(ctx, id, func(c *domain.Customer) error {
		for _, f := range []struct {
			dst *string
			src *string
		}{
			{&c.Firstname, req.Firstname},
			{&c.Lastname, req.Lastname},
			{&c.Email, req.Email},
			{&c.Phone, req.Phone},
			{&c.Street, req.Street},
			{&c.PostalCode, req.PostalCode},
			{&c.City, req.City},
			{&c.HighlightColor, req.HighlightColor},
			{&c.Remark, req.Remark},
		} {
			if f.src != nil {
				*f.dst = strings.TrimSpace(*f.src)
			}
		}
		if c.Name() == "" {
			return domain.Invalidf("customer name is required")
		}
		return validEmail(c.Email)
	})
	if err != nil {
		return nil, fail(span, err)
	}

	log.WithFields(log.Fields{"customer_id": c.ID, "version": c.Version}).Info("Customer edited")
	return c, nil
}

func (s *service) RenewMembership(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	ctx, span := s.tracer.Start(ctx, "membership.renew",
		trace.WithAttributes(attribute.String("customer.id", id.String())),
	)
	defer span.End()

	today := temporal.Day(s.now())
	c, err := s.update(ctx, id, func(c *domain.Customer) error {
		c.RenewedOn = &today
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	log.WithField("customer_id", c.ID).Info("Membership renewed")
	return c, nil
}

func view(c *domain.Customer) *CustomerView {
	return &CustomerView{Customer: c, Name: c.Name(), Highlight: highlight.CustomerRow(c)}
}

func (s *service) GetCustomer(ctx context.Context, id uuid.UUID) (*CustomerView, error) {
	c, err := s.store.GetCustomer(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return view(c), nil
}

func (s *service) ListCustomers(ctx context.Context, q store.Query) (store.Page[*CustomerView], error) {
	page, err := s.store.ListCustomers(ctx, q)
	if err != nil {
		return store.Page[*CustomerView]{}, fmt.Errorf("list customers: %w", err)
	}
	out := store.Page[*CustomerView]{
		Records: make([]*CustomerView, len(page.Records)),
		Total:   page.Total,
		Page:    page.Page,
		PerPage: page.PerPage,
	}
	for i, c := range page.Records {
		out.Records[i] = view(c)
	}
	return out, nil
}
