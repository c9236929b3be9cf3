// Package model contains domain models passed between layers.
package model

import "time"

// Country and name defaults applied to companies created from notices.
const (
	CountryFR          = "FR"
	UnknownCompanyName = "Unknown"
)

// SystemUserID authors feedback written by automated checks.
const SystemUserID int64 = 0

// SignalType is the classified category of a legal notice.
type SignalType string

// Built-in signal types.
const (
	TypeProcCollective SignalType = "PROC_COLLECTIVE"
	TypeSaleOfBusiness SignalType = "SALE_OF_BUSINESS"
	TypeMAProject      SignalType = "M&A_PROJECT"
	TypeOther          SignalType = "OTHER"
)

// Company is a legal entity identified by its registration number.
type Company struct {
	ID                 int64     `json:"id"`
	Country            string    `json:"country"`
	RegistrationNumber *string   `json:"registration_number"`
	Name               string    `json:"name"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// Signal is one classified public notice. URL is globally unique.
type Signal struct {
	ID         int64      `json:"id"`
	CompanyID  *int64     `json:"company_id"`
	Source     string     `json:"source"`
	Type       SignalType `json:"type"`
	EventDate  time.Time  `json:"-"`
	URL        string     `json:"url"`
	Excerpt    string     `json:"excerpt"`
	Weight     int        `json:"weight"`
	Confidence float64    `json:"confidence"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// DailyScore is the aggregated score of a company for one calendar date.
type DailyScore struct {
	CompanyID     int64      `json:"company_id"`
	ScoreDate     time.Time  `json:"-"`
	ScoreTotal    int64      `json:"score_total"`
	TopSignalType SignalType `json:"top_signal_type"`
	Explanation   string     `json:"explanation"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Feedback is one user's judgement on a signal. Unique per (signal, user).
type Feedback struct {
	ID        int64     `json:"id"`
	SignalID  int64     `json:"signal_id"`
	UserID    int64     `json:"user_id"`
	Label     Label     `json:"label"`
	Note      *string   `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}

// RawItem is an unclassified notice handed to the ingestor.
type RawItem struct {
	Date time.Time `json:"-"`
	Text string    `json:"text"`
	URL  string    `json:"url"`
}

// Classification is the result of running the rule table on a text.
type Classification struct {
	Type       SignalType
	Weight     int
	Confidence float64
	Rule       string
}

// IngestReport summarizes one ingest batch.
type IngestReport struct {
	Source     string `json:"source"`
	Received   int    `json:"received"`
	Written    int    `json:"written"`
	Duplicates int    `json:"duplicates"`
	Unresolved int    `json:"unresolved"`
	Failed     int    `json:"failed"`
}

// SignalGroup is the per-(company, type) rollup read by the aggregator.
type SignalGroup struct {
	CompanyID int64
	Type      SignalType
	WeightSum int64
	Count     int64
}

// SignalFilter narrows a signal listing. Zero values mean "no filter".
type SignalFilter struct {
	Query    string
	Type     SignalType
	Label    Label
	DateFrom *time.Time
	DateTo   *time.Time
	Limit    int
	Offset   int
}
