// Package ingest turns raw notices into companies and classified signals.
package ingest

import (
	"context"
	"fmt"
	"strings"

	"github.com/agiraud1/radar-fr/internal/domain/dedupe"
	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Store is the slice of the signal store the ingestor writes to.
type Store interface {
	// UpsertCompany returns the id of the company keyed on (country, registration).
	UpsertCompany(ctx context.Context, country, registration, name string) (int64, error)
	// UpsertSignal inserts or refreshes the signal keyed on its URL. The
	// stored source and company link survive a refresh.
	UpsertSignal(ctx context.Context, s model.Signal) (int64, error)
}

// Classifier maps text to a classification.
type Classifier interface {
	Classify(text string) model.Classification
}

// Ingestor writes batches of raw items. Each item is its own unit of work.
type Ingestor struct {
	store        Store
	classifier   Classifier
	logger       logger.Logger
	resolveNames bool
}

// New creates an Ingestor.
func New(store Store, classifier Classifier, opts ...Option) *Ingestor {
	in := &Ingestor{
		store:        store,
		classifier:   classifier,
		logger:       logger.Nop(),
		resolveNames: true,
	}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// Ingest writes every valid, non-duplicate item. A failing item is logged and
// counted and never aborts the batch. Cancellation stops before the next item
// and counts the rest as failed.
func (in *Ingestor) Ingest(ctx context.Context, source string, items []model.RawItem) model.IngestReport {
	report := model.IngestReport{Source: source, Received: len(items)}
	seen := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(len(items)))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			remaining := len(items) - i
			report.Failed += remaining
			in.logger.Warn(ctx, "ingest cancelled", logger.Int("remaining", remaining), logger.Error(err))
			break
		}

		if err := validateItem(item); err != nil {
			report.Failed++
			metrics.RecordIngestFailure()
			in.logger.Warn(ctx, "invalid item", logger.Int("index", i), logger.Error(err))
			continue
		}

		key := dedupe.Fingerprint(item)
		if seen.SeenAndRecord(ctx, key) {
			report.Duplicates++
			metrics.RecordIngestDuplicate()
			continue
		}

		resolved, err := in.ingestOne(ctx, source, item)
		if err != nil {
			seen.Unrecord(ctx, key)
			report.Failed++
			metrics.RecordIngestFailure()
			in.logger.Error(ctx, "ingest item failed",
				logger.String("url", item.URL), logger.Error(err))
			continue
		}
		if !resolved {
			report.Unresolved++
			metrics.RecordIngestUnresolved()
		}
		report.Written++
		metrics.RecordIngestItem()
	}

	in.logger.Info(ctx, "ingest batch done",
		logger.String("source", source),
		logger.Int("received", report.Received),
		logger.Int("written", report.Written),
		logger.Int("duplicates", report.Duplicates),
		logger.Int("unresolved", report.Unresolved),
		logger.Int("failed", report.Failed),
	)
	return report
}

// ingestOne reports whether the item was attached to a company.
func (in *Ingestor) ingestOne(ctx context.Context, source string, item model.RawItem) (bool, error) {
	var companyID *int64
	if reg, ok := ExtractRegistration(item.Text); ok {
		name := model.UnknownCompanyName
		if in.resolveNames {
			if n, ok := ResolveName(item.Text); ok {
				name = n
			}
		}
		id, err := in.store.UpsertCompany(ctx, model.CountryFR, reg, name)
		if err != nil {
			return false, fmt.Errorf("upsert company %s: %w", reg, err)
		}
		companyID = &id
	}

	c := in.classifier.Classify(item.Text)
	metrics.RecordSignalClassified(string(c.Type))

	_, err := in.store.UpsertSignal(ctx, model.Signal{
		CompanyID:  companyID,
		Source:     source,
		Type:       c.Type,
		EventDate:  model.DateOf(item.Date),
		URL:        strings.TrimSpace(item.URL),
		Excerpt:    item.Text,
		Weight:     c.Weight,
		Confidence: c.Confidence,
	})
	if err != nil {
		return false, fmt.Errorf("upsert signal: %w", err)
	}
	return companyID != nil, nil
}

func validateItem(item model.RawItem) error {
	if strings.TrimSpace(item.URL) == "" {
		return fmt.Errorf("%w: item url is empty", model.ErrValidation)
	}
	if item.Date.IsZero() {
		return fmt.Errorf("%w: item date is missing", model.ErrValidation)
	}
	return nil
}
