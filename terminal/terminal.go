// Package terminal models the upstream financial-data terminal: a login
// bound session plus an untyped Invoke surface whose results must always
// be treated as opaque input to the normalizer.
package terminal

import (
	"context"

	"quantmuse/models"
)

// Op selects a logical query type on the terminal.
type Op string

const (
	OpDataPool      Op = "datapool"
	OpHistoryQuotes Op = "history_quotes"
	OpBasicData     Op = "basic_data"
	OpDataReport    Op = "data_report"
)

// Soft status codes returned by the terminal. These are domain values,
// not transport errors: the terminal reports most failures as data.
const (
	StatusOK = 0

	// StatusAlreadyActive is returned by login when the session is
	// already valid elsewhere; some account tiers conflate this with a
	// fresh login, so it counts as logged in.
	StatusAlreadyActive = -201

	// StatusSessionExpired signals that the logical session silently
	// lapsed; the next attempt needs a fresh login first.
	StatusSessionExpired = -1020
)

// Terminal is the remote surface the adapter depends on. All query
// parameters are passed as strings (dates, comma-joined code lists,
// indicator names, free-form filter expressions), matching the upstream
// API. Tests substitute fakes.
type Terminal interface {
	Login(ctx context.Context, userID, password string) (int, error)
	Logout(ctx context.Context) error
	Invoke(ctx context.Context, op Op, params ...string) (models.RawResponse, error)
}
