// Package feedback records analyst verdicts on signals.
package feedback

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/agiraud1/radar-fr/internal/domain/model"
	"github.com/agiraud1/radar-fr/internal/domain/types"
	"github.com/agiraud1/radar-fr/pkg/logger"
	"github.com/agiraud1/radar-fr/pkg/metrics"
)

// Store is the slice of the signal store the ledger needs.
type Store interface {
	SignalExists(ctx context.Context, signalID int64) (bool, error)
	// SubmitFeedback writes the row for (signal, user), overwriting label,
	// note and created_at, and removes the signal's system row in the same
	// transaction. It returns the stored row.
	SubmitFeedback(ctx context.Context, f model.Feedback) (model.Feedback, error)
	// MarkSystemFeedback writes the system row for f.SignalID unless a human
	// labelled the signal, atomically. It reports whether the row was written.
	MarkSystemFeedback(ctx context.Context, f model.Feedback) (bool, error)
	// FeedbackCounts groups the signal's feedback by label, ordered by label.
	FeedbackCounts(ctx context.Context, signalID int64) ([]types.LabelCount, error)
	// LatestFeedback lists the newest rows first.
	LatestFeedback(ctx context.Context, signalID int64, limit int) ([]model.Feedback, error)
}

// Ledger validates and stores feedback. One row per (signal, user).
type Ledger struct {
	store        Store
	logger       logger.Logger
	now          func() time.Time
	noteMaxLen   int
	defaultLimit int
	maxLimit     int
}

// NewLedger creates a Ledger bound to store.
func NewLedger(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:        store,
		logger:       logger.Nop(),
		now:          time.Now,
		noteMaxLen:   2000,
		defaultLimit: 10,
		maxLimit:     50,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Upsert records a human verdict. Resubmission by the same user overwrites
// the previous one; any system-authored row on the signal is removed.
func (l *Ledger) Upsert(ctx context.Context, signalID, userID int64, label, note string) (model.Feedback, error) {
	lbl, err := model.ParseLabel(label)
	if err != nil {
		return model.Feedback{}, err
	}
	if userID <= model.SystemUserID {
		return model.Feedback{}, fmt.Errorf("%w: user id must be positive", model.ErrValidation)
	}
	if err := l.requireSignal(ctx, signalID); err != nil {
		return model.Feedback{}, err
	}

	fb, err := l.store.SubmitFeedback(ctx, model.Feedback{
		SignalID:  signalID,
		UserID:    userID,
		Label:     lbl,
		Note:      l.normalizeNote(note),
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return model.Feedback{}, fmt.Errorf("upsert feedback on signal %d: %w", signalID, err)
	}

	metrics.RecordFeedback(string(lbl), "human")
	l.logger.Info(ctx, "feedback recorded",
		logger.Int64("signal_id", signalID),
		logger.Int64("user_id", userID),
		logger.String("label", string(lbl)))
	return fb, nil
}

// MarkBroken records a system broken_link verdict. It returns false without
// writing when a human already labelled the signal.
func (l *Ledger) MarkBroken(ctx context.Context, signalID int64, note string) (bool, error) {
	written, err := l.store.MarkSystemFeedback(ctx, model.Feedback{
		SignalID:  signalID,
		UserID:    model.SystemUserID,
		Label:     model.LabelBrokenLink,
		Note:      l.normalizeNote(note),
		CreatedAt: l.now().UTC(),
	})
	if err != nil {
		return false, fmt.Errorf("mark signal %d broken: %w", signalID, err)
	}
	if !written {
		return false, nil
	}
	metrics.RecordFeedback(string(model.LabelBrokenLink), "system")
	return true, nil
}

// Get returns the label counts and the newest rows of a signal. A missing
// signal yields an empty summary.
func (l *Ledger) Get(ctx context.Context, signalID int64, limit int) (types.FeedbackSummary, error) {
	limit = l.clamp(limit)
	counts, err := l.store.FeedbackCounts(ctx, signalID)
	if err != nil {
		return types.FeedbackSummary{}, fmt.Errorf("feedback counts for signal %d: %w", signalID, err)
	}
	latest, err := l.store.LatestFeedback(ctx, signalID, limit)
	if err != nil {
		return types.FeedbackSummary{}, fmt.Errorf("latest feedback for signal %d: %w", signalID, err)
	}
	if counts == nil {
		counts = []types.LabelCount{}
	}
	if latest == nil {
		latest = []model.Feedback{}
	}
	return types.FeedbackSummary{SignalID: signalID, Counts: counts, Latest: latest}, nil
}

func (l *Ledger) requireSignal(ctx context.Context, signalID int64) error {
	ok, err := l.store.SignalExists(ctx, signalID)
	if err != nil {
		return fmt.Errorf("lookup signal %d: %w", signalID, err)
	}
	if !ok {
		return fmt.Errorf("%w: signal %d", model.ErrNotFound, signalID)
	}
	return nil
}

// normalizeNote trims, truncates to noteMaxLen characters and maps empty to nil.
func (l *Ledger) normalizeNote(note string) *string {
	note = strings.TrimSpace(note)
	if note == "" {
		return nil
	}
	if r := []rune(note); len(r) > l.noteMaxLen {
		note = string(r[:l.noteMaxLen])
	}
	return &note
}

func (l *Ledger) clamp(limit int) int {
	if limit <= 0 {
		return l.defaultLimit
	}
	return min(limit, l.maxLimit)
}
