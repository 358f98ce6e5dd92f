package models

import (
	"fmt"
	"strings"
	"time"
)

// QueryKind selects which logical upstream dataset a query targets.
type QueryKind string

const (
	KindTradeFlow      QueryKind = "trade_flow"
	KindSeatDetail     QueryKind = "seat_detail"
	KindHistoryQuotes  QueryKind = "history_quotes"
	KindInstrumentList QueryKind = "instrument_list"
)

// DateLayout is the canonical date format used throughout the adapter.
// The upstream terminal accepts both this and the compact 20060102 form,
// depending on the endpoint and account tier.
const DateLayout = "2006-01-02"

// Query describes one logical data request. It is immutable after
// construction so it can be reused safely across fallback attempts.
type Query struct {
	Codes      []string
	StartDate  string
	EndDate    string
	Indicators []string
	Kind       QueryKind
}

// Validate rejects malformed queries before any network activity.
func (q Query) Validate() error {
	switch q.Kind {
	case KindTradeFlow, KindSeatDetail, KindHistoryQuotes, KindInstrumentList:
	default:
		return fmt.Errorf("unknown query kind %q", q.Kind)
	}
	if q.Kind == KindHistoryQuotes && len(q.Codes) == 0 {
		return fmt.Errorf("query requires at least one instrument code")
	}
	if q.Kind != KindInstrumentList && len(q.Indicators) == 0 {
		return fmt.Errorf("query requires at least one indicator")
	}
	start, err := time.Parse(DateLayout, q.StartDate)
	if err != nil {
		return fmt.Errorf("invalid start date %q: %w", q.StartDate, err)
	}
	end, err := time.Parse(DateLayout, q.EndDate)
	if err != nil {
		return fmt.Errorf("invalid end date %q: %w", q.EndDate, err)
	}
	if end.Before(start) {
		return fmt.Errorf("end date %s precedes start date %s", q.EndDate, q.StartDate)
	}
	return nil
}

// Dates returns every calendar day in the query range, inclusive.
// Validate must have been called first.
func (q Query) Dates() []string {
	start, _ := time.Parse(DateLayout, q.StartDate)
	end, _ := time.Parse(DateLayout, q.EndDate)
	var dates []string
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d.Format(DateLayout))
	}
	return dates
}

// IndicatorList renders the indicators as the comma-joined string the
// terminal expects.
func (q Query) IndicatorList() string {
	return strings.Join(q.Indicators, ",")
}
