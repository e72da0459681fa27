// internal/store/postgres/postgres.go

// Package postgres stores records as JSONB documents in PostgreSQL. Every
// write appends to the event log in the same serializable transaction and
// announces itself with pg_notify.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"lendnexus/internal/domain"
	"lendnexus/internal/eventstore"
	"lendnexus/internal/store"
)

//go:embed schema.sql
var schema string

// Store implements store.Store on a *sql.DB.
type Store struct {
	db     *sql.DB
	dsn    string
	events *eventstore.EventStore
	tracer trace.Tracer
	now    func() time.Time
}

// Open connects to dsn and checks the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return New(db, dsn), nil
}

// New wraps an open database. dsn is used by Subscribe to open listeners.
func New(db *sql.DB, dsn string) *Store {
	return &Store{
		db:     db,
		dsn:    dsn,
		events: eventstore.New(),
		tracer: otel.Tracer("lendnexus/store/postgres"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates the tables if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetCustomer(ctx context.Context, id uuid.UUID) (*domain.Customer, error) {
	return get[*domain.Customer](ctx, s, domain.KindCustomer, id)
}

func (s *Store) GetItem(ctx context.Context, id uuid.UUID) (*domain.Item, error) {
	return get[*domain.Item](ctx, s, domain.KindItem, id)
}

func (s *Store) GetRental(ctx context.Context, id uuid.UUID) (*domain.Rental, error) {
	return get[*domain.Rental](ctx, s, domain.KindRental, id)
}

func (s *Store) GetReservation(ctx context.Context, id uuid.UUID) (*domain.Reservation, error) {
	return get[*domain.Reservation](ctx, s, domain.KindReservation, id)
}

func (s *Store) ListCustomers(ctx context.Context, q store.Query) (store.Page[*domain.Customer], error) {
	return list[*domain.Customer](ctx, s, domain.KindCustomer, q)
}

func (s *Store) ListItems(ctx context.Context, q store.Query) (store.Page[*domain.Item], error) {
	return list[*domain.Item](ctx, s, domain.KindItem, q)
}

func (s *Store) ListRentals(ctx context.Context, q store.Query) (store.Page[*domain.Rental], error) {
	return list[*domain.Rental](ctx, s, domain.KindRental, q)
}

func (s *Store) ListReservations(ctx context.Context, q store.Query) (store.Page[*domain.Reservation], error) {
	return list[*domain.Reservation](ctx, s, domain.KindReservation, q)
}

func get[T domain.Record](ctx context.Context, s *Store, kind domain.Kind, id uuid.UUID) (T, error) {
	var zero T
	var data []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT data FROM records WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return zero, fmt.Errorf("get %s: %w", kind, err)
	}
	return store.DecodeAs[T](kind, data)
}

func list[T domain.Record](ctx context.Context, s *Store, kind domain.Kind, q store.Query) (store.Page[T], error) {
	q = q.Normalize()
	page := store.Page[T]{Page: q.Page, PerPage: q.PerPage, Records: []T{}}

	where, args := filter(kind, q)

	if err := s.db.QueryRowContext(ctx,
		"SELECT count(*) FROM records WHERE "+where, args...,
	).Scan(&page.Total); err != nil {
		return page, fmt.Errorf("count %s: %w", kind, err)
	}

	query := fmt.Sprintf("SELECT data FROM records WHERE %s ORDER BY %s LIMIT $%d OFFSET $%d",
		where, orderBy(q), len(args)+1, len(args)+2)
	rows, err := s.db.QueryContext(ctx, query, append(args, q.PerPage, q.Offset())...)
	if err != nil {
		return page, fmt.Errorf("list %s: %w", kind, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return page, fmt.Errorf("scan %s: %w", kind, err)
		}
		rec, err := store.DecodeAs[T](kind, data)
		if err != nil {
			return page, err
		}
		page.Records = append(page.Records, rec)
	}
	return page, rows.Err()
}
