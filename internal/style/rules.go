package style

import (
	"errors"
	"fmt"
	"sort"
)

// Rule is one row of the frequency style table. A route whose daily frequency is at most
// Threshold is drawn with Width pixels at the given Brightness (0-255).
type Rule struct {
	Threshold  int `yaml:"threshold" json:"threshold"`
	Width      int `yaml:"width" json:"width"`
	Brightness int `yaml:"brightness" json:"brightness"`
}

// Drawable reports whether the rule draws anything. Width <= 0 suppresses the route.
func (r Rule) Drawable() bool {
	return r.Width > 0
}

// Rules is a style table ordered by ascending threshold
type Rules struct {
	rules []Rule
}

// ErrEmptyRules is returned when a style table has no rows
var ErrEmptyRules = errors.New("style table is empty")

// NewRules copies and sorts rules by threshold. Duplicate thresholds are rejected
// because the lookup would be ambiguous.
func NewRules(rules []Rule) (Rules, error) {
	if len(rules) == 0 {
		return Rules{}, ErrEmptyRules
	}

	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Threshold < sorted[j].Threshold
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Threshold == sorted[i-1].Threshold {
			return Rules{}, fmt.Errorf("duplicate style threshold %d", sorted[i].Threshold)
		}
	}

	return Rules{rules: sorted}, nil
}

// ForFrequency returns the first rule whose threshold is >= f, or the last rule when f
// is above every threshold. The zero Rules value returns a zero Rule.
func (r Rules) ForFrequency(f int) Rule {
	if len(r.rules) == 0 {
		return Rule{}
	}
	for _, rule := range r.rules {
		if rule.Threshold >= f {
			return rule
		}
	}
	return r.rules[len(r.rules)-1]
}

// All returns a copy of the ordered table
func (r Rules) All() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// Len returns the number of rows
func (r Rules) Len() int {
	return len(r.rules)
}
