// Package types contains read shapes returned by the service and the API.
package types

import (
	"github.com/agiraud1/radar-fr/internal/domain/model"
)

// ScoreEntry is one row of a daily ranking.
type ScoreEntry struct {
	CompanyID          int64            `json:"company_id"`
	CompanyName        string           `json:"company_name"`
	RegistrationNumber *string          `json:"registration_number"`
	ScoreDate          string           `json:"score_date"`
	ScoreTotal         int64            `json:"score_total"`
	TopSignalType      model.SignalType `json:"top_signal_type"`
	Explanation        string           `json:"explanation,omitempty"`
}

// SignalView is a signal joined with its company.
type SignalView struct {
	ID                 int64            `json:"id"`
	CompanyID          *int64           `json:"company_id"`
	CompanyName        *string          `json:"company_name"`
	RegistrationNumber *string          `json:"registration_number"`
	Source             string           `json:"source"`
	Type               model.SignalType `json:"type"`
	EventDate          string           `json:"event_date"`
	URL                string           `json:"url"`
	Excerpt            string           `json:"excerpt"`
	Weight             int              `json:"weight"`
	Confidence         float64          `json:"confidence"`
}

// SignalPage is an offset-paginated signal listing.
type SignalPage struct {
	Items      []SignalView `json:"items"`
	Total      int          `json:"total"`
	Limit      int          `json:"limit"`
	Offset     int          `json:"offset"`
	NextOffset *int         `json:"next_offset"`
	PrevOffset *int         `json:"prev_offset"`
}

// NewSignalPage fills in the navigation offsets for a page.
func NewSignalPage(items []SignalView, total, limit, offset int) SignalPage {
	if items == nil {
		items = []SignalView{}
	}
	p := SignalPage{Items: items, Total: total, Limit: limit, Offset: offset}
	if offset+limit < total {
		next := offset + limit
		p.NextOffset = &next
	}
	if offset > 0 {
		prev := max(offset-limit, 0)
		p.PrevOffset = &prev
	}
	return p
}

// LabelCount is the number of feedback rows carrying a label.
type LabelCount struct {
	Label model.Label `json:"label"`
	Count int64       `json:"count"`
}

// FeedbackSummary aggregates the feedback of one signal.
type FeedbackSummary struct {
	SignalID int64            `json:"signal_id"`
	Counts   []LabelCount     `json:"counts"`
	Latest   []model.Feedback `json:"latest"`
}

// CompanyDetail is a company with its most recent daily scores.
type CompanyDetail struct {
	Company      model.Company `json:"company"`
	RecentScores []ScoreEntry  `json:"recent_scores"`
}

// StoreCounts reports table sizes.
type StoreCounts struct {
	Companies int64 `json:"companies"`
	Signals   int64 `json:"signals"`
	Scores    int64 `json:"scores"`
	Feedback  int64 `json:"feedback"`
}
