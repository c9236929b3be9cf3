package classify

import "github.com/agiraud1/radar-fr/internal/domain/model"

// Option applies a configuration option to the Classifier.
type Option func(*Classifier)

// WithRules replaces the rule table. An empty table keeps the defaults.
func WithRules(rules []Rule) Option {
	return func(c *Classifier) {
		if len(rules) > 0 {
			c.rules = append([]Rule(nil), rules...)
		}
	}
}

// WithFallback replaces the no-match classification.
func WithFallback(fallback model.Classification) Option {
	return func(c *Classifier) {
		if fallback.Rule == "" {
			fallback.Rule = "fallback"
		}
		c.fallback = fallback
	}
}
