// Package resolver tries an ordered set of invocation shapes against
// the terminal until one satisfies a success predicate. Exhausting all
// shapes without success is a normal, well-defined outcome ("no data"),
// not a fault.
package resolver

import (
	"context"
	"time"

	"quantmuse/logger"
	"quantmuse/models"
	"quantmuse/normalize"
	"quantmuse/ratelimit"
	"quantmuse/session"
	"quantmuse/terminal"
)

// InvocationShape is one concrete way of asking the terminal for a
// logical query: an operation plus fully rendered string parameters.
type InvocationShape struct {
	Description string
	Op          terminal.Op
	Params      []string
}

// SuccessFunc decides whether one normalized attempt answers the query.
type SuccessFunc func(status *int, rowCount int) bool

// DefaultSuccess accepts a zero status code with at least one row.
func DefaultSuccess(status *int, rowCount int) bool {
	return status != nil && *status == terminal.StatusOK && rowCount > 0
}

// Resolver performs sequential fallback resolution. Candidates are
// never tried in parallel: speculative attempts would multiply load on
// a rate-limited, abuse-sensitive shared account.
type Resolver struct {
	term    terminal.Terminal
	limiter *ratelimit.Limiter
	session *session.Manager
	log     *logger.Entry
}

// New wires a resolver over the shared terminal, limiter and session.
func New(term terminal.Terminal, limiter *ratelimit.Limiter, sess *session.Manager) *Resolver {
	return &Resolver{
		term:    term,
		limiter: limiter,
		session: sess,
		log:     logger.GetLogger().WithComponent("resolver"),
	}
}

// Resolve tries each shape in order: rate-limiter slot, physical call,
// normalization, predicate. It short-circuits on the first success and
// returns that attempt's rows with the trace of every attempt made.
// On exhaustion it returns no rows and the complete trace. The error is
// non-nil only when ctx is cancelled; every upstream failure mode is
// absorbed into the trace.
func (r *Resolver) Resolve(ctx context.Context, shapes []InvocationShape, isSuccess SuccessFunc) ([]models.Record, []models.AttemptTrace, error) {
	if isSuccess == nil {
		isSuccess = DefaultSuccess
	}

	trace := make([]models.AttemptTrace, 0, len(shapes))
	for _, shape := range shapes {
		if ctx.Err() != nil {
			return nil, trace, ctx.Err()
		}

		if !r.session.EnsureActive(ctx) {
			trace = append(trace, models.AttemptTrace{
				Shape:   shape.Description,
				RawType: "no_session",
			})
			continue
		}

		if err := r.limiter.Acquire(ctx); err != nil {
			return nil, trace, err
		}

		start := time.Now()
		raw, err := r.term.Invoke(ctx, shape.Op, shape.Params...)
		elapsed := time.Since(start)
		if err != nil {
			// Transient network failure: move to the next candidate.
			r.log.WithError(err).WithFields(logger.Fields{
				"shape": shape.Description,
			}).Warn("terminal call failed")
			trace = append(trace, models.AttemptTrace{
				Shape:    shape.Description,
				RawType:  "error",
				Duration: elapsed,
			})
			continue
		}

		status, rows := normalize.Normalize(raw)
		trace = append(trace, models.AttemptTrace{
			Shape:      shape.Description,
			RawType:    raw.TypeName(),
			StatusCode: status,
			RowCount:   len(rows),
			Duration:   elapsed,
		})
		logger.IncrementFetchAttempt(string(shape.Op), len(rows))

		if status != nil && *status == terminal.StatusSessionExpired {
			r.session.Invalidate()
			continue
		}

		if isSuccess(status, len(rows)) {
			return rows, trace, nil
		}
	}

	r.log.WithFields(logger.Fields{
		"attempts": len(trace),
	}).Info("all candidates exhausted without data")
	return nil, trace, nil
}
