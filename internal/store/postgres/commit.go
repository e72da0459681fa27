// internal/store/postgres/commit.go
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"lendnexus/internal/domain"
	"lendnexus/internal/eventstore"
	"lendnexus/internal/store"
)

// Commit applies the batch in one serializable transaction. Updates and
// deletes only touch rows still at the expected version.
func (s *Store) Commit(ctx context.Context, b *store.Batch) (err error) {
	ctx, span := s.tracer.Start(ctx, "store.commit",
		trace.WithAttributes(attribute.Int("batch.size", b.Len())),
	)
	defer span.End()

	ops := b.Ops()
	previous := make([]domain.Header, len(ops))
	for i, op := range ops {
		previous[i] = *op.Record.Head()
	}
	defer func() {
		if err != nil {
			for i, op := range ops {
				*op.Record.Head() = previous[i]
			}
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := s.now()
	next := make(map[domain.Kind]int64)
	seen := make(map[uuid.UUID]bool, len(ops))

	for _, op := range ops {
		kind := op.Record.Kind()
		h := op.Record.Head()
		if seen[h.ID] {
			return fmt.Errorf("%s %s written twice in one batch", kind, h.ID)
		}
		seen[h.ID] = true

		h.UpdatedAt = now
		if op.Action == store.Created {
			displayID, err := s.nextDisplayID(ctx, tx, kind, next)
			if err != nil {
				return err
			}
			h.DisplayID = displayID
			h.Version = 1
			h.CreatedAt = now
		} else {
			h.Version = op.Expected + 1
		}

		data, err := json.Marshal(op.Record)
		if err != nil {
			return fmt.Errorf("encode %s: %w", kind, err)
		}

		if err := s.write(ctx, tx, op, data); err != nil {
			return err
		}

		err = s.events.Append(ctx, tx, h.ID, string(kind), op.Expected, []eventstore.Event{{
			EventType: string(op.Action),
			EventData: data,
		}})
		if errors.Is(err, eventstore.ErrConcurrencyConflict) {
			return fmt.Errorf("%s %s: %w", kind, h.ID, store.ErrConflict)
		}
		if err != nil {
			return err
		}

		payload, err := json.Marshal(notification{
			Action:  op.Action,
			Kind:    kind,
			ID:      h.ID,
			Version: h.Version,
			At:      now,
		})
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, channel(kind), string(payload)); err != nil {
			return fmt.Errorf("notify: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return translate(err, "commit")
	}
	return nil
}

func (s *Store) write(ctx context.Context, tx *sql.Tx, op store.Op, data []byte) error {
	kind := op.Record.Kind()
	h := op.Record.Head()

	switch op.Action {
	case store.Created:
		_, err := tx.ExecContext(ctx, `
			INSERT INTO records (id, kind, display_id, version, data, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, h.ID, string(kind), h.DisplayID, h.Version, data, h.CreatedAt, h.UpdatedAt)
		return translate(err, "insert "+string(kind))

	case store.Updated:
		res, err := tx.ExecContext(ctx, `
			UPDATE records SET version = $1, data = $2, updated_at = $3
			WHERE kind = $4 AND id = $5 AND version = $6
		`, h.Version, data, h.UpdatedAt, string(kind), h.ID, op.Expected)
		if err != nil {
			return translate(err, "update "+string(kind))
		}
		return s.checkAffected(ctx, tx, res, kind, h.ID, op.Expected)

	case store.Deleted:
		res, err := tx.ExecContext(ctx, `
			DELETE FROM records WHERE kind = $1 AND id = $2 AND version = $3
		`, string(kind), h.ID, op.Expected)
		if err != nil {
			return translate(err, "delete "+string(kind))
		}
		return s.checkAffected(ctx, tx, res, kind, h.ID, op.Expected)
	}
	return fmt.Errorf("unknown write action %q", op.Action)
}

// checkAffected tells a missing record from a stale one when a guarded
// write matched no row.
func (s *Store) checkAffected(ctx context.Context, tx *sql.Tx, res sql.Result, kind domain.Kind, id uuid.UUID, expected int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	var version int
	err = tx.QueryRowContext(ctx,
		`SELECT version FROM records WHERE kind = $1 AND id = $2`,
		string(kind), id,
	).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
	}
	if err != nil {
		return translate(err, "check version")
	}
	return fmt.Errorf("%s %s at version %d, expected %d: %w", kind, id, version, expected, store.ErrConflict)
}

func (s *Store) nextDisplayID(ctx context.Context, tx *sql.Tx, kind domain.Kind, next map[domain.Kind]int64) (int64, error) {
	if n, ok := next[kind]; ok {
		next[kind] = n + 1
		return n + 1, nil
	}
	var n int64
	err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(display_id), 0) + 1 FROM records WHERE kind = $1`,
		string(kind),
	).Scan(&n)
	if err != nil {
		return 0, translate(err, "next display id")
	}
	next[kind] = n
	return n, nil
}

// translate maps unique violations and serialization failures to
// store.ErrConflict.
func translate(err error, what string) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "40001":
			return fmt.Errorf("%s: %w", what, store.ErrConflict)
		}
	}
	return fmt.Errorf("%s: %w", what, err)
}
