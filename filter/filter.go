package filter

import (
	"sort"
	"strings"

	"rental-tracker/models"
)

// evaluation stages; lower stages run first
const (
	stageAddress = iota
	stageBaths
	stageOther
)

func stage(k Kind) int {
	switch k {
	case ExcludeInAddress:
		return stageAddress
	case BathsMin, BathsMax:
		return stageBaths
	default:
		return stageOther
	}
}

// Filter applies filter rules to listings
type Filter struct {
	rules []Rule
}

// NewFilter creates a new Filter instance. Address exclusions are evaluated
// first, then baths bounds, then the remaining rules in the order given.
func NewFilter(rules []Rule) *Filter {
	ordered := make([]Rule, len(rules))
	copy(ordered, rules)
	sort.SliceStable(ordered, func(i, j int) bool {
		return stage(ordered[i].Kind) < stage(ordered[j].Kind)
	})
	return &Filter{rules: ordered}
}

// Rules returns the rules in evaluation order.
func (f *Filter) Rules() []Rule {
	return f.rules
}

// Passes reports whether the listing satisfies every rule.
func (f *Filter) Passes(listing models.ListingFields) bool {
	_, ok := f.Check(listing)
	return ok
}

// Check returns the first rule the listing fails. Evaluation stops at that rule.
func (f *Filter) Check(listing models.ListingFields) (Rule, bool) {
	for _, rule := range f.rules {
		if !rule.Matches(listing) {
			return rule, false
		}
	}
	return Rule{}, true
}

// Matches reports whether the listing satisfies the rule. Bounds are inclusive.
func (r Rule) Matches(listing models.ListingFields) bool {
	switch r.Kind {
	case ExcludeInAddress:
		area := strings.ToLower(AddressArea(listing.Address))
		for _, term := range r.Terms {
			if strings.Contains(area, term) {
				return false
			}
		}
		return true
	case BedsMin:
		return listing.Beds >= r.Value
	case BedsMax:
		return listing.Beds <= r.Value
	case BathsMin:
		return listing.Baths >= r.Value
	case BathsMax:
		return listing.Baths <= r.Value
	case RentMin:
		return float64(listing.Price) >= r.Value
	case RentMax:
		return float64(listing.Price) <= r.Value
	case DateMin, DateMax:
		// Dates like "Now" cannot be compared and are let through.
		d, err := ParseDate(listing.AvailableDate)
		if err != nil {
			return true
		}
		if r.Kind == DateMin {
			return !d.Before(r.Date)
		}
		return !d.After(r.Date)
	default:
		return true
	}
}

// AddressArea returns the part of the address after the last comma, which is
// the neighborhood or city. An address without a comma is returned whole.
func AddressArea(address string) string {
	return strings.TrimSpace(address[strings.LastIndex(address, ",")+1:])
}

// Passes reports whether the listing satisfies every rule in rules.
func Passes(listing models.ListingFields, rules []Rule) bool {
	return NewFilter(rules).Passes(listing)
}
