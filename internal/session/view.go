package session

import (
	"fmt"

	"github.com/roach88/petadopt/internal/catalog"
	"github.com/roach88/petadopt/internal/ir"
)

// View is a point-in-time copy of a session for presentation.
type View struct {
	Connected bool            `json:"connected"`
	Identity  ir.Address      `json:"identity"`
	State     string          `json:"state"`
	Version   uint64          `json:"version"`
	Adopted   []ir.EntityID   `json:"adopted"`
	Owned     []ir.EntityID   `json:"owned"`
	Pending   *PendingRequest `json:"pending,omitempty"`
	LastError string          `json:"last_error,omitempty"`
}

func viewOf(connected bool, m Machine) View {
	v := View{
		Connected: connected,
		Identity:  m.Cache.Identity,
		State:     m.State.String(),
		Version:   m.Cache.Version,
		Adopted:   m.Cache.Adopted(),
		Owned:     m.Cache.Owned(),
		LastError: ErrorText(m.LastError),
	}
	if m.Pending != nil {
		p := *m.Pending
		v.Pending = &p
	}
	return v
}

// ErrorText renders a request failure for display: the environment's
// reason when there is one, otherwise the error itself.
func ErrorText(err error) string {
	if err == nil {
		return ""
	}
	if reason := ir.ReasonOf(err); reason != "" {
		return reason
	}
	return err.Error()
}

// Filter selects which catalog entries Items returns.
type Filter string

const (
	// FilterHome lists every catalog entry.
	FilterHome Filter = "home"

	// FilterOwned lists only entries owned by the connected identity.
	FilterOwned Filter = "owned"
)

// ParseFilter validates a filter name.
func ParseFilter(s string) (Filter, error) {
	switch Filter(s) {
	case FilterHome, FilterOwned:
		return Filter(s), nil
	default:
		return "", fmt.Errorf("unknown filter %q (want %q or %q)", s, FilterHome, FilterOwned)
	}
}

// Item is one display row: a catalog entry joined with cached state.
type Item struct {
	Pet        catalog.Pet `json:"pet"`
	Adopted    bool        `json:"adopted"`
	Owned      bool        `json:"owned"`
	Actionable bool        `json:"actionable"` // adopt may be offered now
}

// Items joins cat with the session cache, in catalog order.
//
// A row is actionable only on the home filter, for an unadopted pet, on a
// connected session with no request in flight.
func (s *Session) Items(cat *catalog.Catalog, filter Filter) []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	return items(s.connected, s.m, cat, filter)
}

func items(connected bool, m Machine, cat *catalog.Catalog, filter Filter) []Item {
	owned := make(map[ir.EntityID]bool, len(m.Cache.owned))
	for _, id := range m.Cache.owned {
		owned[id] = true
	}

	out := []Item{}
	for _, pet := range cat.Pets() {
		item := Item{
			Pet:     pet,
			Adopted: m.Cache.IsAdopted(pet.ID),
			Owned:   owned[pet.ID],
		}
		switch filter {
		case FilterOwned:
			if !item.Owned {
				continue
			}
		default:
			item.Actionable = connected && !item.Adopted && !m.State.InFlight()
		}
		out = append(out, item)
	}
	return out
}
