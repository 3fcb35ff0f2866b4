package filter

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownRule  = errors.New("unknown filter rule")
	ErrInvalidValue = errors.New("invalid filter value")
)

// Kind identifies a filter rule.
type Kind int

const (
	BedsMin Kind = iota
	BedsMax
	BathsMin
	BathsMax
	RentMin
	RentMax
	DateMin
	DateMax
	ExcludeInAddress
)

var kindNames = map[Kind]string{
	BedsMin:          "bedsMin",
	BedsMax:          "bedsMax",
	BathsMin:         "bathsMin",
	BathsMax:         "bathsMax",
	RentMin:          "rentMin",
	RentMax:          "rentMax",
	DateMin:          "dateMin",
	DateMax:          "dateMax",
	ExcludeInAddress: "excludeInAddress",
}

// ruleNames maps lower-cased config names to kinds. priceMin/priceMax are
// the names the dashboard's Config table uses.
var ruleNames = map[string]Kind{
	"bedsmin":          BedsMin,
	"bedsmax":          BedsMax,
	"bathsmin":         BathsMin,
	"bathsmax":         BathsMax,
	"rentmin":          RentMin,
	"pricemin":         RentMin,
	"rentmax":          RentMax,
	"pricemax":         RentMax,
	"datemin":          DateMin,
	"datemax":          DateMax,
	"excludeinaddress": ExcludeInAddress,
}

// DateLayouts are the accepted formats for date rules and listing dates.
var DateLayouts = []string{"01/02/2006", "1/2/2006", "2006-01-02"}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// LookupKind returns the kind for a configured rule name, ignoring case.
func LookupKind(name string) (Kind, bool) {
	kind, ok := ruleNames[strings.ToLower(strings.TrimSpace(name))]
	return kind, ok
}

// ValueType names the value a kind takes: "number", "date" or "list".
func (k Kind) ValueType() string {
	switch k {
	case DateMin, DateMax:
		return "date"
	case ExcludeInAddress:
		return "list"
	default:
		return "number"
	}
}

// Rule is one normalized filter rule. Which value field is set depends on Kind.
type Rule struct {
	Kind  Kind
	Value float64   // beds, baths and rent bounds
	Date  time.Time // date bounds
	Terms []string  // lower-cased address exclusion terms
}

func (r Rule) String() string {
	raw := r.Raw()
	return raw.Name + "=" + raw.Value
}

// Raw renders the rule back into its name/value form.
func (r Rule) Raw() RawRule {
	switch r.Kind {
	case DateMin, DateMax:
		return RawRule{Name: r.Kind.String(), Value: r.Date.Format("2006-01-02")}
	case ExcludeInAddress:
		return RawRule{Name: r.Kind.String(), Value: strings.Join(r.Terms, ",")}
	default:
		return RawRule{Name: r.Kind.String(), Value: strconv.FormatFloat(r.Value, 'f', -1, 64)}
	}
}

// RawRule is a filter setting as stored in configuration: a name and an
// untyped value.
type RawRule struct {
	Name  string `yaml:"name" json:"name"`
	Value string `yaml:"value" json:"value"`
}

// Normalize converts raw name/value settings into rules. Unknown names and
// unparseable values are errors; nothing is silently dropped.
func Normalize(raw []RawRule) ([]Rule, error) {
	rules := make([]Rule, 0, len(raw))
	for _, r := range raw {
		rule, err := ParseRule(r.Name, r.Value)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// ParseRule converts a single name/value setting into a Rule.
func ParseRule(name, value string) (Rule, error) {
	kind, ok := LookupKind(name)
	if !ok {
		return Rule{}, fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	value = strings.TrimSpace(value)

	switch kind {
	case DateMin, DateMax:
		d, err := ParseDate(value)
		if err != nil {
			return Rule{}, fmt.Errorf("%w: %s=%q: %v", ErrInvalidValue, name, value, err)
		}
		return Rule{Kind: kind, Date: d}, nil
	case ExcludeInAddress:
		var terms []string
		for _, term := range strings.Split(value, ",") {
			term = strings.ToLower(strings.TrimSpace(term))
			if term != "" {
				terms = append(terms, term)
			}
		}
		if len(terms) == 0 {
			return Rule{}, fmt.Errorf("%w: %s has no terms", ErrInvalidValue, name)
		}
		return Rule{Kind: kind, Terms: terms}, nil
	default:
		v, err := strconv.ParseFloat(value, 64)
		if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return Rule{}, fmt.Errorf("%w: %s=%q", ErrInvalidValue, name, value)
		}
		return Rule{Kind: kind, Value: v}, nil
	}
}

// ParseDate parses a date in one of DateLayouts.
func ParseDate(s string) (time.Time, error) {
	for _, layout := range DateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}
