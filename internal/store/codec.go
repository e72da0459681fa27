// internal/store/codec.go
package store

import (
	"encoding/json"
	"fmt"

	"lendnexus/internal/domain"
)

// New returns an empty record of the given kind.
func New(kind domain.Kind) (domain.Record, error) {
	switch kind {
	case domain.KindCustomer:
		return &domain.Customer{}, nil
	case domain.KindItem:
		return &domain.Item{}, nil
	case domain.KindRental:
		return &domain.Rental{}, nil
	case domain.KindReservation:
		return &domain.Reservation{}, nil
	}
	return nil, fmt.Errorf("unknown record kind %q", kind)
}

// Decode unmarshals a stored document into a record of the given kind.
func Decode(kind domain.Kind, data []byte) (domain.Record, error) {
	r, err := New(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("decode %s: %w", kind, err)
	}
	return r, nil
}

// DecodeAs unmarshals a stored document into T.
func DecodeAs[T domain.Record](kind domain.Kind, data []byte) (T, error) {
	var zero T
	r, err := Decode(kind, data)
	if err != nil {
		return zero, err
	}
	t, ok := r.(T)
	if !ok {
		return zero, fmt.Errorf("decode %s: unexpected record type %T", kind, r)
	}
	return t, nil
}
