package profile

import (
	"context"
	"fmt"
	"log"
)

// Decision is the outcome of a profile check. Current is always the profile
// that answered, whether or not the request was allowed.
type Decision struct {
	Allowed bool
	Current string
	Reason  string
}

// Check compares a required profile (nil when the request names none) with current.
func Check(required *string, current string) Decision {
	if required == nil || *required == current {
		return Decision{Allowed: true, Current: current}
	}
	return Decision{
		Allowed: false,
		Current: current,
		Reason:  fmt.Sprintf("wrong profile: wanted %s", *required),
	}
}

// Gate reads the current profile from its store once per request.
type Gate struct {
	store    Store
	fallback string
}

func NewGate(store Store, fallback string) *Gate {
	return &Gate{store: store, fallback: fallback}
}

// Current reads the active profile. A store failure is logged and the fallback used,
// so a broken settings file never stops replies from naming a profile.
func (g *Gate) Current(ctx context.Context) string {
	current, err := g.store.Get(ctx)
	if err != nil {
		log.Printf("reading profile setting: %v (using %q)", err, g.fallback)
		return g.fallback
	}
	if current == "" {
		return g.fallback
	}
	return current
}
