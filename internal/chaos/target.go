// internal/chaos/target.go
package chaos

import (
	"lendnexus/internal/server"
	"lendnexus/internal/store"
	"lendnexus/internal/store/breaker"
)

// NewTarget stacks fault injection and a breaker on st and wires the
// lending services on top.
func NewTarget(st store.Store, settings breaker.Settings, opts server.Options) Target {
	faults := Wrap(st)
	guarded := breaker.New(faults, "chaos", settings)
	services := server.Wire(guarded, opts)
	t := Target{
		Faults:      faults,
		Breaker:     guarded,
		Catalog:     services.Catalog,
		Membership:  services.Membership,
		Circulation: services.Circulation,
	}
	if opts.Clock != nil {
		t.Today = opts.Clock.Now()
	}
	return t
}
