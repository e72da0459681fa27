// internal/catalog/implementation.go
package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendnexus/internal/domain"
	"lendnexus/internal/highlight"
	"lendnexus/internal/inventory"
	"lendnexus/internal/store"
)

// service implements the Service interface.
type service struct {
	store  store.Store
	avail  AvailabilitySource
	tracer trace.Tracer
}

// NewService creates a new catalog service instance. Copy counts are checked
// against the outstanding copies reported by avail.
func NewService(st store.Store, avail AvailabilitySource) Service {
	return &service{
		store:  st,
		avail:  avail,
		tracer: otel.Tracer("lendnexus/catalog"),
	}
}

func fail(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// retry re-runs attempt once when a rental touched the item between the read
// and the write.
func retry(ctx context.Context, attempt func() error) error {
	err := attempt()
	if errors.Is(err, store.ErrConflict) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("conflict.detected", true))
		return attempt()
	}
	return err
}

// AddItem registers a new item in stock.
func (s *service) AddItem(ctx context.Context, req AddItemRequest) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_item")
	defer span.End()

	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, fail(span, domain.Invalidf("item name is required"))
	}
	if req.Copies == 0 {
		req.Copies = 1
	}
	if req.Copies < 1 {
		return nil, fail(span, domain.Invalidf("copies must be at least 1, got %d", req.Copies))
	}
	if req.Deposit.IsNegative() {
		return nil, fail(span, domain.Invalidf("deposit must not be negative"))
	}

	item := &domain.Item{
		Header:         domain.NewHeader(),
		Name:           req.Name,
		Brand:          req.Brand,
		Model:          req.Model,
		Category:       req.Category,
		Description:    req.Description,
		Deposit:        req.Deposit,
		Copies:         req.Copies,
		Status:         domain.StatusInStock,
		HighlightColor: req.HighlightColor,
		InternalNote:   req.InternalNote,
	}
	if err := s.store.Commit(ctx, store.NewBatch().Create(item)); err != nil {
		return nil, fail(span, fmt.Errorf("create item: %w", err))
	}

	log.WithFields(log.Fields{
		"item_id":    item.ID,
		"display_id": item.DisplayID,
		"copies":     item.Copies,
	}).Info("Item added")
	return item, nil
}

// EditItem updates descriptive fields and the copy count. Copies may not
// drop below the copies currently out, nor below one.
func (s *service) EditItem(ctx context.Context, id uuid.UUID, req EditItemRequest) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.edit_item",
		trace.WithAttributes(attribute.String("item.id", id.String())),
	)
	defer span.End()

	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, fail(span, domain.Invalidf("item name is required"))
	}
	if req.Deposit != nil && req.Deposit.IsNegative() {
		return nil, fail(span, domain.Invalidf("deposit must not be negative"))
	}

	var item *domain.Item
	err := retry(ctx, func() error {
		var err error
		item, err = s.store.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		if err := s.edit(ctx, item, req); err != nil {
			return err
		}
		return s.store.Commit(ctx, store.NewBatch().Update(item))
	})
	if err != nil {
		return nil, fail(span, err)
	}

	log.WithFields(log.Fields{"item_id": item.ID, "version": item.Version}).Info("Item edited")
	return item, nil
}

func (s *service) edit(ctx context.Context, item *domain.Item, req EditItemRequest) error {
	set := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	if req.Name != nil {
		item.Name = strings.TrimSpace(*req.Name)
	}
	set(&item.Brand, req.Brand)
	set(&item.Model, req.Model)
	set(&item.Category, req.Category)
	set(&item.Description, req.Description)
	set(&item.HighlightColor, req.HighlightColor)
	set(&item.InternalNote, req.InternalNote)
	if req.Deposit != nil {
		item.Deposit = *req.Deposit
	}
	if req.Copies == nil || *req.Copies == item.Copies {
		return nil
	}

	avail, err := s.avail.Availability(ctx, item.ID)
	if err != nil {
		return fmt.Errorf("availability: %w", err)
	}
	floor := max(1, avail.Outstanding)
	if *req.Copies < floor {
		return domain.Invalidf("copies must be at least %d (%d out on rentals), got %d", floor, avail.Outstanding, *req.Copies)
	}
	item.Copies = *req.Copies

	// A copy count change moves in/out of stock; other states are left alone.
	if item.Status == domain.StatusInStock || item.Status == domain.StatusOutOfStock {
		status, err := inventory.Apply(item.Status, inventory.ActionMarkInStock, item.Copies-avail.Outstanding)
		if err != nil {
			return err
		}
		item.Status = status
	}
	return nil
}

// ApplyAction moves an item through a staff action. Lifecycle actions (rent,
// return, reserve, release) belong to the rental and reservation workflows
// and are refused.
func (s *service) ApplyAction(ctx context.Context, id uuid.UUID, action inventory.Action) (*domain.Item, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.apply_action",
		trace.WithAttributes(
			attribute.String("item.id", id.String()),
			attribute.String("action", string(action)),
		),
	)
	defer span.End()

	if !inventory.IsStaffAction(action) {
		return nil, fail(span, domain.Invalidf("unknown staff action %q", action))
	}

	var item *domain.Item
	var from domain.ItemStatus
	err := retry(ctx, func() error {
		var err error
		item, err = s.store.GetItem(ctx, id)
		if err != nil {
			return fmt.Errorf("get item: %w", err)
		}
		avail, err := s.avail.Availability(ctx, id)
		if err != nil {
			return fmt.Errorf("availability: %w", err)
		}
		from = item.Status
		status, err := inventory.Apply(item.Status, action, avail.Free)
		if err != nil {
			return err
		}
		item.Status = status
		return s.store.Commit(ctx, store.NewBatch().Update(item))
	})
	if err != nil {
		return nil, fail(span, err)
	}

	log.WithFields(log.Fields{
		"item_id": item.ID,
		"action":  action,
		"from":    from,
		"to":      item.Status,
	}).Info("Item status changed")
	return item, nil
}

func (s *service) view(ctx context.Context, item *domain.Item) (*ItemView, error) {
	avail, err := s.avail.Availability(ctx, item.ID)
	if err != nil {
		return nil, fmt.Errorf("availability: %w", err)
	}
	return &ItemView{Item: item, Availability: avail, Highlight: highlight.ItemRow(item)}, nil
}

func (s *service) GetItem(ctx context.Context, id uuid.UUID) (*ItemView, error) {
	item, err := s.store.GetItem(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return s.view(ctx, item)
}

// ListItems searches items. Deleted items are hidden unless the query asks
// for them by status.
func (s *service) ListItems(ctx context.Context, q store.Query) (store.Page[*ItemView], error) {
	if q.Status != "" && !domain.ItemStatus(q.Status).Valid() {
		return store.Page[*ItemView]{}, domain.Invalidf("unknown item status %q", q.Status)
	}
	page, err := s.store.ListItems(ctx, q)
	if err != nil {
		return store.Page[*ItemView]{}, fmt.Errorf("list items: %w", err)
	}
	out := store.Page[*ItemView]{
		Records: make([]*ItemView, 0, len(page.Records)),
		Total:   page.Total,
		Page:    page.Page,
		PerPage: page.PerPage,
	}
	for _, item := range page.Records {
		v, err := s.view(ctx, item)
		if err != nil {
			return store.Page[*ItemView]{}, err
		}
		out.Records = append(out.Records, v)
	}
	return out, nil
}

func (s *service) Availability(ctx context.Context, id uuid.UUID) (inventory.Availability, error) {
	return s.avail.Availability(ctx, id)
}

func (s *service) History(ctx context.Context, id uuid.UUID) ([]store.Change, error) {
	if _, err := s.store.GetItem(ctx, id); err != nil {
		return nil, fmt.Errorf("get item: %w", err)
	}
	return s.store.History(ctx, id)
}
