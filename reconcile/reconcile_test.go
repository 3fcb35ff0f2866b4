package reconcile

import (
	"testing"
	"time"

	"rental-tracker/models"
)

var now = time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

func sighting(addr, ref string) models.ListingFields {
	return models.ListingFields{Address: addr, ReferenceURL: ref, Price: 2000, Beds: 2, Baths: 1, AvailableDate: "09/01/2024"}
}

func TestDecide(t *testing.T) {
	existing := []models.Listing{
		{Address: "12 Elm St", Refs: []string{"r1"}},
	}

	tests := []struct {
		name    string
		fields  models.ListingFields
		want    Kind
		wantNew bool
	}{
		{"unseen address", sighting("7 Oak Ave", "r9"), InsertNew, true},
		{"new ref for known address", sighting("12 Elm St", "r2"), AppendRef, false},
		{"known address and ref", sighting("12 Elm St", "r1"), NoOp, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewState(existing)
			got := s.Decide(tt.fields, now)
			if got.Kind != tt.want {
				t.Errorf("Decide() kind = %s, want %s", got.Kind, tt.want)
			}
			if got.Novel() != tt.wantNew {
				t.Errorf("Novel() = %v, want %v", got.Novel(), tt.wantNew)
			}
			if got.Address != tt.fields.Address || got.Ref != tt.fields.ReferenceURL {
				t.Errorf("action = %+v, want address %q ref %q", got, tt.fields.Address, tt.fields.ReferenceURL)
			}
		})
	}
}

func TestInsertNewRecord(t *testing.T) {
	s := NewState(nil)
	a := s.Decide(sighting("12 Elm St", "r1"), now)

	l := a.Listing
	if l.Address != "12 Elm St" || len(l.Refs) != 1 || l.Refs[0] != "r1" {
		t.Errorf("unexpected listing identity: %+v", l)
	}
	if l.Price != 2000 || l.Beds != 2 || l.Baths != 1 || l.AvailableDate != "09/01/2024" {
		t.Errorf("unexpected snapshot: %+v", l)
	}
	if l.Notes != "" || l.IsFavorite || l.IsDismissed {
		t.Errorf("curated fields should be unset: %+v", l)
	}
	if l.Timestamp != now.UnixNano() {
		t.Errorf("Timestamp = %d, want %d", l.Timestamp, now.UnixNano())
	}
}

func TestDecideDoesNotMutate(t *testing.T) {
	s := NewState(nil)
	s.Decide(sighting("12 Elm St", "r1"), now)
	if s.Known("12 Elm St") {
		t.Error("Decide must not change state before Commit")
	}
}

func TestSameAddressTwiceInOneRun(t *testing.T) {
	s := NewState(nil)

	first := s.Decide(sighting("12 Elm St", "r1"), now)
	if first.Kind != InsertNew {
		t.Fatalf("first sighting = %s, want InsertNew", first.Kind)
	}
	s.Commit(first)

	second := s.Decide(sighting("12 Elm St", "r2"), now)
	if second.Kind != AppendRef {
		t.Fatalf("second sighting = %s, want AppendRef", second.Kind)
	}
	if second.Novel() {
		t.Error("a new ref for an address seen this run must not be novel")
	}
}

func TestIdempotent(t *testing.T) {
	crawl := []models.ListingFields{
		sighting("12 Elm St", "r1"),
		sighting("12 Elm St", "r2"),
		sighting("7 Oak Ave", "r3"),
		sighting("12 Elm St", "r1"),
	}

	s := NewState(nil)
	var inserts, appends int
	for _, f := range crawl {
		a := s.Decide(f, now)
		switch a.Kind {
		case InsertNew:
			inserts++
		case AppendRef:
			appends++
		}
		s.Commit(a)
	}
	if inserts != 2 || appends != 1 {
		t.Fatalf("first pass: %d inserts, %d appends; want 2 and 1", inserts, appends)
	}

	for _, f := range crawl {
		if a := s.Decide(f, now); a.Kind != NoOp {
			t.Errorf("second pass on %s/%s = %s, want NoOp", f.Address, f.ReferenceURL, a.Kind)
		}
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestCommitNoOp(t *testing.T) {
	s := NewState(nil)
	s.Commit(Action{Kind: NoOp, Address: "x", Ref: "r"})
	if s.Known("x") {
		t.Error("committing NoOp must not add an address")
	}
}

func TestMarkNotified(t *testing.T) {
	s := NewState(nil)
	if !s.MarkNotified("12 Elm St") {
		t.Error("first MarkNotified should return true")
	}
	if s.MarkNotified("12 Elm St") {
		t.Error("second MarkNotified should return false")
	}
	if !s.MarkNotified("7 Oak Ave") {
		t.Error("MarkNotified on another address should return true")
	}
}
