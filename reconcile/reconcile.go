package reconcile

import (
	"fmt"
	"time"

	"rental-tracker/models"
)

// Kind is the type of change a sighting makes to persisted state.
type Kind int

const (
	NoOp Kind = iota
	InsertNew
	AppendRef
)

func (k Kind) String() string {
	switch k {
	case NoOp:
		return "NoOp"
	case InsertNew:
		return "InsertNew"
	case AppendRef:
		return "AppendRef"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Action is the minimal change needed to record one sighting.
type Action struct {
	Kind    Kind
	Listing models.Listing // set for InsertNew
	Address string
	Ref     string
}

// Novel reports whether the action introduces an address not known before.
func (a Action) Novel() bool {
	return a.Kind == InsertNew
}

// State is the known set of addresses and their refs for one run.
// A State is not safe for concurrent use.
type State struct {
	refs     map[string]map[string]struct{}
	notified map[string]struct{}
}

// NewState builds the run state from the listings already persisted.
func NewState(existing []models.Listing) *State {
	s := &State{
		refs:     make(map[string]map[string]struct{}, len(existing)),
		notified: make(map[string]struct{}),
	}
	for _, l := range existing {
		set, ok := s.refs[l.Address]
		if !ok {
			set = make(map[string]struct{}, len(l.Refs))
			s.refs[l.Address] = set
		}
		for _, r := range l.Refs {
			set[r] = struct{}{}
		}
	}
	return s
}

// Decide returns the action for a sighting without changing the state.
func (s *State) Decide(f models.ListingFields, now time.Time) Action {
	set, known := s.refs[f.Address]
	if !known {
		return Action{
			Kind:    InsertNew,
			Listing: models.NewListing(f, now.UnixNano()),
			Address: f.Address,
			Ref:     f.ReferenceURL,
		}
	}
	if _, seen := set[f.ReferenceURL]; seen {
		return Action{Kind: NoOp, Address: f.Address, Ref: f.ReferenceURL}
	}
	return Action{Kind: AppendRef, Address: f.Address, Ref: f.ReferenceURL}
}

// Commit records an action once it has been persisted, so later sightings
// in the same run see it.
func (s *State) Commit(a Action) {
	switch a.Kind {
	case InsertNew, AppendRef:
		set, ok := s.refs[a.Address]
		if !ok {
			set = make(map[string]struct{})
			s.refs[a.Address] = set
		}
		set[a.Ref] = struct{}{}
	}
}

// MarkNotified records that address has been offered for notification and
// reports whether this was the first time in the run.
func (s *State) MarkNotified(address string) bool {
	if _, ok := s.notified[address]; ok {
		return false
	}
	s.notified[address] = struct{}{}
	return true
}

// Known reports whether the address is in the state.
func (s *State) Known(address string) bool {
	_, ok := s.refs[address]
	return ok
}

// Len returns the number of known addresses.
func (s *State) Len() int {
	return len(s.refs)
}
