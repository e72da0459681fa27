// internal/inventory/inventory.go

// Package inventory holds the item status state machine and the derived
// availability of an item's copies.
package inventory

import (
	"fmt"

	"lendnexus/internal/domain"
)

// Action is an event that may move an item's status.
type Action string

const (
	// Lifecycle actions, applied by the rental and reservation workflows.
	ActionRent    Action = "rent"
	ActionReturn  Action = "return"
	ActionReserve Action = "reserve"
	ActionRelease Action = "release"

	// Staff actions.
	ActionMarkLost      Action = "mark_lost"
	ActionMarkRepairing Action = "mark_repairing"
	ActionMarkForSale   Action = "mark_for_sale"
	ActionMarkBackorder Action = "mark_backorder"
	ActionMarkInStock   Action = "mark_in_stock"
	ActionDelete        Action = "delete"
	ActionRestore       Action = "restore"
)

// StaffActions are the actions exposed to staff through the catalog.
var StaffActions = []Action{
	ActionMarkLost,
	ActionMarkRepairing,
	ActionMarkForSale,
	ActionMarkBackorder,
	ActionMarkInStock,
	ActionDelete,
	ActionRestore,
}

// IsStaffAction reports whether a may be requested by staff directly.
func IsStaffAction(a Action) bool {
	for _, s := range StaffActions {
		if a == s {
			return true
		}
	}
	return false
}

var staffTargets = map[Action]domain.ItemStatus{
	ActionMarkLost:      domain.StatusLost,
	ActionMarkRepairing: domain.StatusRepairing,
	ActionMarkForSale:   domain.StatusForSale,
	ActionMarkBackorder: domain.StatusOnBackorder,
}

// Rentable reports whether a rental may claim copies of an item in status s.
func Rentable(s domain.ItemStatus) bool {
	return s == domain.StatusInStock || s == domain.StatusReserved
}

// Reservable reports whether a reservation may reference an item in status s.
func Reservable(s domain.ItemStatus) bool {
	return s == domain.StatusInStock || s == domain.StatusReserved || s == domain.StatusOutOfStock
}

// settle picks in_stock or out_of_stock from the free copy count.
func settle(free int) domain.ItemStatus {
	if free > 0 {
		return domain.StatusInStock
	}
	return domain.StatusOutOfStock
}

// Apply returns the status an item moves to when a happens while it is in
// current. free is the number of free copies after the action took effect.
// Staff-set states (lost, repairing, for sale, on backorder, deleted) are
// never overwritten by lifecycle actions.
func Apply(current domain.ItemStatus, a Action, free int) (domain.ItemStatus, error) {
	if current == domain.StatusDeleted && a != ActionRestore && a != ActionReturn && a != ActionRelease {
		return current, invalid(current, a)
	}

	switch a {
	case ActionRent:
		if !Rentable(current) {
			return current, fmt.Errorf("%w: item is %s", domain.ErrItemUnavailable, current)
		}
		if current == domain.StatusInStock && free <= 0 {
			return domain.StatusOutOfStock, nil
		}
		return current, nil

	case ActionReturn:
		if current == domain.StatusOutOfStock && free > 0 {
			return domain.StatusInStock, nil
		}
		return current, nil

	case ActionReserve:
		switch current {
		case domain.StatusInStock, domain.StatusOutOfStock, domain.StatusReserved:
			return domain.StatusReserved, nil
		}
		return current, fmt.Errorf("%w: item is %s", domain.ErrItemUnavailable, current)

	case ActionRelease:
		if current == domain.StatusReserved {
			return settle(free), nil
		}
		return current, nil

	case ActionMarkInStock:
		return settle(free), nil

	case ActionDelete:
		return domain.StatusDeleted, nil

	case ActionRestore:
		if current != domain.StatusDeleted {
			return current, invalid(current, a)
		}
		return domain.StatusInStock, nil
	}

	if target, ok := staffTargets[a]; ok {
		return target, nil
	}
	return current, fmt.Errorf("%w: unknown action %q", domain.ErrInvalidTransition, a)
}

func invalid(current domain.ItemStatus, a Action) error {
	return fmt.Errorf("%w: cannot %s an item that is %s", domain.ErrInvalidTransition, a, current)
}
