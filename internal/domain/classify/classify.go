// Package classify maps notice text to a signal type, weight and confidence.
package classify

import (
	"fmt"
	"strings"

	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// MatchKind selects how a rule's terms are combined.
type MatchKind string

// Supported match kinds.
const (
	MatchAny MatchKind = "any"
	MatchAll MatchKind = "all"
)

// Rule is one row of the ordered rule table.
type Rule struct {
	Name       string
	Kind       MatchKind
	Terms      []string
	Type       model.SignalType
	Weight     int
	Confidence float64
}

// matches reports whether the lower-cased text satisfies the rule.
func (r Rule) matches(text string) bool {
	switch r.Kind {
	case MatchAll:
		for _, t := range r.Terms {
			if !strings.Contains(text, t) {
				return false
			}
		}
		return true
	default:
		for _, t := range r.Terms {
			if strings.Contains(text, t) {
				return true
			}
		}
		return false
	}
}

// DefaultRules returns the built-in table. Order is priority.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "collective-proceedings",
			Kind:       MatchAny,
			Terms:      []string{"redressement judiciaire", "liquidation judiciaire"},
			Type:       model.TypeProcCollective,
			Weight:     100,
			Confidence: 0.95,
		},
		{
			Name:       "sale-of-business",
			Kind:       MatchAny,
			Terms:      []string{"cession de fonds"},
			Type:       model.TypeSaleOfBusiness,
			Weight:     70,
			Confidence: 0.80,
		},
		{
			Name:       "merger",
			Kind:       MatchAny,
			Terms:      []string{"fusion"},
			Type:       model.TypeMAProject,
			Weight:     60,
			Confidence: 0.70,
		},
	}
}

// DefaultFallback is applied when no rule matches.
func DefaultFallback() model.Classification {
	return model.Classification{Type: model.TypeOther, Weight: 30, Confidence: 0.50, Rule: "fallback"}
}

// Classifier is a pure, first-match-wins rule evaluator. Safe for concurrent use.
type Classifier struct {
	rules    []Rule
	fallback model.Classification
}

// New builds a Classifier. Without options it uses DefaultRules and DefaultFallback.
func New(opts ...Option) (*Classifier, error) {
	c := &Classifier{
		rules:    DefaultRules(),
		fallback: DefaultFallback(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validate(c.rules, c.fallback); err != nil {
		return nil, err
	}
	// Terms are compared against lower-cased text.
	for i := range c.rules {
		terms := make([]string, len(c.rules[i].Terms))
		for j, t := range c.rules[i].Terms {
			terms[j] = strings.ToLower(t)
		}
		c.rules[i].Terms = terms
	}
	return c, nil
}

// Classify returns the classification of the first matching rule.
func (c *Classifier) Classify(text string) model.Classification {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		if r.matches(lower) {
			return model.Classification{
				Type:       r.Type,
				Weight:     r.Weight,
				Confidence: r.Confidence,
				Rule:       r.Name,
			}
		}
	}
	return c.fallback
}

// Rules returns a copy of the active table.
func (c *Classifier) Rules() []Rule {
	out := make([]Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

func validate(rules []Rule, fallback model.Classification) error {
	for i, r := range rules {
		if r.Type == "" {
			return fmt.Errorf("%w: rule %d (%s): empty type", model.ErrValidation, i, r.Name)
		}
		if r.Kind != MatchAny && r.Kind != MatchAll {
			return fmt.Errorf("%w: rule %d (%s): unknown match kind %q", model.ErrValidation, i, r.Name, r.Kind)
		}
		if len(r.Terms) == 0 {
			return fmt.Errorf("%w: rule %d (%s): no terms", model.ErrValidation, i, r.Name)
		}
		for _, t := range r.Terms {
			if strings.TrimSpace(t) == "" {
				return fmt.Errorf("%w: rule %d (%s): blank term", model.ErrValidation, i, r.Name)
			}
		}
		if r.Weight < 0 || r.Confidence < 0 || r.Confidence > 1 {
			return fmt.Errorf("%w: rule %d (%s): weight or confidence out of range", model.ErrValidation, i, r.Name)
		}
	}
	if fallback.Type == "" || fallback.Weight < 0 || fallback.Confidence < 0 || fallback.Confidence > 1 {
		return fmt.Errorf("%w: invalid fallback", model.ErrValidation)
	}
	return nil
}
