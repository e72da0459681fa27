// internal/store/batch.go
package store

import "lendnexus/internal/domain"

// Op is one write of a batch. Expected is the version the caller read;
// creates expect zero.
type Op struct {
	Action   Action
	Record   domain.Record
	Expected int
}

// Batch collects writes that must land together.
type Batch struct {
	ops []Op
}

// NewBatch returns an empty batch.
func NewBatch() *Batch { return &Batch{} }

// Create adds a new record.
func (b *Batch) Create(r domain.Record) *Batch {
	b.ops = append(b.ops, Op{Action: Created, Record: r})
	return b
}

// Update writes r, expecting the store to still hold the version r carries.
func (b *Batch) Update(r domain.Record) *Batch {
	b.ops = append(b.ops, Op{Action: Updated, Record: r, Expected: r.Head().Version})
	return b
}

// Delete removes r, expecting the store to still hold the version r carries.
func (b *Batch) Delete(r domain.Record) *Batch {
	b.ops = append(b.ops, Op{Action: Deleted, Record: r, Expected: r.Head().Version})
	return b
}

// Ops returns the queued writes in order.
func (b *Batch) Ops() []Op { return b.ops }

// Len is the number of queued writes.
func (b *Batch) Len() int { return len(b.ops) }
