// Package providers registers rail adapters and selects one by capability
// preference order, following the donor's internal/payment/adapters.Registry
// shape (map keyed by lowercased provider name, built from constructor
// variadic factories).
package providers

import (
	"strings"

	providerdomain "github.com/smallbiznis/payroll-psp-core/internal/payment/providers/domain"
)

// railPreference is the order submit() tries rails in, per spec §4.3:
// "prefer fednow → rtp → ach → wire".
var railPreference = []string{"fednow", "rtp", "ach", "wire"}

type Registry struct {
	providers map[string]providerdomain.Provider
}

func NewRegistry(providers ...providerdomain.Provider) *Registry {
	r := &Registry{providers: map[string]providerdomain.Provider{}}
	for _, p := range providers {
		if p == nil {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(p.Name()))
		if name == "" {
			continue
		}
		r.providers[name] = p
	}
	return r
}

func (r *Registry) ByName(name string) (providerdomain.Provider, error) {
	if r == nil {
		return nil, providerdomain.ErrProviderNotFound
	}
	p, ok := r.providers[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, providerdomain.ErrProviderNotFound
	}
	return p, nil
}

// SelectRail returns the highest-preference registered provider whose
// capability flags cover its own rail (ach counts as capable with either
// ACHCredit or ACHDebit); the payment's direction plays no part.
// Most instructions name no rail; capability flags decide it. When override
// is non-empty (spec.md executePayments' optional rail? parameter), it
// short-circuits the preference loop: the named rail is used if registered
// and capable, and ErrProviderNotFound otherwise — it never silently falls
// back to a different rail the caller didn't ask for.
func (r *Registry) SelectRail(override string) (providerdomain.Provider, error) {
	if r == nil {
		return nil, providerdomain.ErrProviderNotFound
	}
	if override != "" {
		name := strings.ToLower(strings.TrimSpace(override))
		p, ok := r.providers[name]
		if !ok || !capable(p.Capabilities(), name) {
			return nil, providerdomain.ErrProviderNotFound
		}
		return p, nil
	}
	for _, name := range railPreference {
		if p, ok := r.providers[name]; ok {
			if capable(p.Capabilities(), name) {
				return p, nil
			}
		}
	}
	return nil, providerdomain.ErrProviderNotFound
}

func (r *Registry) All() []providerdomain.Provider {
	if r == nil {
		return nil
	}
	out := make([]providerdomain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		out = append(out, p)
	}
	return out
}

func capable(c providerdomain.Capabilities, rail string) bool {
	switch rail {
	case "fednow":
		return c.FedNow
	case "rtp":
		return c.RTP
	case "ach":
		return c.ACHCredit || c.ACHDebit
	case "wire":
		return c.Wire
	default:
		return false
	}
}
