// Package bodacc provides a sample collector of BODACC-style legal notices.
package bodacc

import (
	"context"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
)

// Source tags signals produced by this collector.
const Source = "BODACC"

type sample struct {
	daysAgo int
	text    string
	url     string
}

// Placeholder notices until a real feed is wired in.
var samples = []sample{
	{0, "Ouverture d’une procédure de redressement judiciaire pour SOCIETE DURAND SAS (SIREN 512345678).", "https://www.bodacc.fr/annonce/EXEMPLE1"},
	{2, "Cession de fonds de commerce: BOULANGERIE MARTIN (SIREN 498765432) cède à GOURMANDISES SARL.", "https://www.bodacc.fr/annonce/EXEMPLE2"},
	{3, "Augmentation de capital pour TECHNOVA SA (SIREN 732001234).", "https://www.bodacc.fr/annonce/EXEMPLE3"},
	{3, "Transfert de siège social: LOGI-TRANS (SIREN 801223344) vers Lyon.", "https://www.bodacc.fr/annonce/EXEMPLE4"},
	{4, "Plan de cession partielle pour METAINDUSTRIE SAS (SIREN 612009876).", "https://www.bodacc.fr/annonce/EXEMPLE5"},
	{5, "Liquidation judiciaire simplifiée: ATELIER BOIS (SIREN 545667788).", "https://www.bodacc.fr/annonce/EXEMPLE6"},
	{6, "Cession d’actifs non stratégiques par ALPHA AUTO (SIREN 512334455).", "https://www.bodacc.fr/annonce/EXEMPLE7"},
	{7, "Projet de fusion: MEDICARE SAS (SIREN 523456789) absorbe BIOMEDIX.", "https://www.bodacc.fr/annonce/EXEMPLE8"},
}

// Size is the number of sample notices available.
func Size() int { return len(samples) }

// Collector returns the sample notices dated relative to today.
type Collector struct {
	now    func() time.Time
	loc    *time.Location
	logger logger.Logger
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Collector) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLocation sets the zone in which "today" is resolved.
func WithLocation(loc *time.Location) Option {
	return func(c *Collector) {
		if loc != nil {
			c.loc = loc
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Collector) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a Collector.
func New(opts ...Option) *Collector {
	c := &Collector{now: time.Now, loc: time.UTC, logger: logger.Nop()}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("bodacc")
	return c
}

// Collect returns up to limit notices, most recent first. A non-positive
// limit returns nothing.
func (c *Collector) Collect(ctx context.Context, limit int) []model.RawItem {
	limit = min(max(limit, 0), len(samples))
	today := model.Today(c.now(), c.loc)
	items := make([]model.RawItem, 0, limit)
	for _, s := range samples[:limit] {
		items = append(items, model.RawItem{
			Date: today.AddDate(0, 0, -s.daysAgo),
			Text: s.text,
			URL:  s.url,
		})
	}
	c.logger.Debug(ctx, "collected sample notices", logger.Int("count", len(items)))
	return items
}
