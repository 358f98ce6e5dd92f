// Package adapter is the composition root of the ingestion core: it
// wires the session manager, rate limiter, fallback resolver, response
// normalizer and flattener into the public fetch operations. Callers
// construct one Adapter explicitly and inject it; there is no module
// level instance.
package adapter

import (
	"context"
	"strings"
	"time"

	"quantmuse/config"
	"quantmuse/flatten"
	"quantmuse/logger"
	"quantmuse/models"
	"quantmuse/normalize"
	"quantmuse/ratelimit"
	"quantmuse/resolver"
	"quantmuse/session"
	"quantmuse/terminal"
)

// baseFields are always requested alongside caller indicators on pool
// queries so every row is attributable to an instrument.
const baseFields = "ths_stock_short_name_stock,ths_stock_code_stock"

// Adapter exposes the resilient fetch operations. Every operation
// blocks coarsely: limiter waits, login backoff and multi-candidate
// resolution can each take seconds.
type Adapter struct {
	cfg      *config.Config
	sess     *session.Manager
	limiter  *ratelimit.Limiter
	resolver *resolver.Resolver
	columns  *normalize.ColumnMap
	log      *logger.Entry
}

// New builds an adapter over the given terminal. Tests pass a fake
// terminal; production passes the HTTP client.
func New(cfg *config.Config, term terminal.Terminal) *Adapter {
	sess := session.NewManager(term, cfg.Terminal.UserID, cfg.Terminal.Password,
		cfg.Login.MaxRetries, cfg.Login.BaseRetryDelay)
	limiter := ratelimit.New(cfg.RateLimit.MaxRequestsPerWindow,
		cfg.RateLimit.Window, cfg.RateLimit.InterCallDelay)

	return &Adapter{
		cfg:      cfg,
		sess:     sess,
		limiter:  limiter,
		resolver: resolver.New(term, limiter, sess),
		columns:  normalize.NewColumnMap(cfg.Columns),
		log:      logger.GetLogger().WithComponent("adapter"),
	}
}

// Session exposes the session manager, mainly so the entrypoint can log
// out on shutdown.
func (a *Adapter) Session() *session.Manager {
	return a.sess
}

// Close logs out of the terminal. Best-effort; never blocks shutdown.
func (a *Adapter) Close(ctx context.Context) {
	a.sess.Logout(ctx)
}

// FetchTradeFlow retrieves institutional trade-flow records for every
// day in the query range.
func (a *Adapter) FetchTradeFlow(ctx context.Context, q models.Query) (*models.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	return a.fetchPoolByDay(ctx, q)
}

// FetchSeatDetail retrieves seat/participant-level records. Upstream
// packs multiple seats into one pipe-delimited cell per instrument;
// they are exploded into one record per seat.
func (a *Adapter) FetchSeatDetail(ctx context.Context, q models.Query) (*models.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	res, err := a.fetchPoolByDay(ctx, q)
	if err != nil {
		return nil, err
	}
	res.Records = explodeSeats(res.Records)
	res.NoData = len(res.Records) == 0
	return res, nil
}

func (a *Adapter) fetchPoolByDay(ctx context.Context, q models.Query) (*models.Result, error) {
	fields := baseFields + "," + q.IndicatorList()
	result := &models.Result{}

	for _, date := range q.Dates() {
		shapes := poolShapes("stock", date, fields)
		rows, trace, err := a.resolver.Resolve(ctx, shapes, resolver.DefaultSuccess)
		result.Trace = append(result.Trace, trace...)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			a.log.WithFields(logger.Fields{"date": date, "kind": q.Kind}).Info("no records for date")
			continue
		}
		rows = a.columns.Canonicalize(rows)
		for _, row := range rows {
			row["trade_date"] = date
		}
		result.Records = append(result.Records, rows...)
		a.log.WithFields(logger.Fields{
			"date": date,
			"kind": q.Kind,
			"rows": len(rows),
		}).Info("fetched records for date")
	}

	result.NoData = len(result.Records) == 0
	return result, nil
}

// FetchHistoryQuotes retrieves the daily quote series for each code in
// the query. History endpoints answer with a packed single row whose
// cells are parallel arrays; those are flattened to one record per time
// point before returning. Codes are paced in batches to stay friendly
// to the shared account.
func (a *Adapter) FetchHistoryQuotes(ctx context.Context, q models.Query) (*models.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	result := &models.Result{}
	batchSize := a.cfg.RateLimit.BatchSize

	for i, code := range q.Codes {
		if i > 0 && i%batchSize == 0 {
			if err := sleep(ctx, a.cfg.RateLimit.InterBatchDelay); err != nil {
				return nil, err
			}
			a.log.WithFields(logger.Fields{"batch": i / batchSize}).Debug("inter-batch delay complete")
		}

		shapes := historyShapes(code, q.IndicatorList(), q.StartDate, q.EndDate)
		rows, trace, err := a.resolver.Resolve(ctx, shapes, resolver.DefaultSuccess)
		result.Trace = append(result.Trace, trace...)
		if err != nil {
			return nil, err
		}
		rows = flatten.Rows(rows)
		rows = a.columns.Canonicalize(rows)
		for _, row := range rows {
			if _, ok := row["code"]; !ok || row["code"] == nil {
				row["code"] = code
			}
		}
		result.Records = append(result.Records, rows...)
	}

	result.NoData = len(result.Records) == 0
	return result, nil
}

// FetchInstrumentList retrieves the tradable instrument universe as of
// the query's start date.
func (a *Adapter) FetchInstrumentList(ctx context.Context, q models.Query) (*models.Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	shapes := poolShapes("stock", q.StartDate, "ths_stock_code_stock")
	rows, trace, err := a.resolver.Resolve(ctx, shapes, resolver.DefaultSuccess)
	if err != nil {
		return nil, err
	}
	rows = a.columns.Canonicalize(rows)
	return &models.Result{
		Records: rows,
		NoData:  len(rows) == 0,
		Trace:   trace,
	}, nil
}

// seatColumns are the canonical fields that may carry pipe-delimited
// multi-seat cells.
var seatColumns = []string{"seat_name", "seat_type", "seat_buy", "seat_sell"}

// explodeSeats expands rows whose seat cells pack several seats with a
// "|" separator into one record per seat. Seat columns shorter than the
// seat count pad with nil; all other columns broadcast.
func explodeSeats(rows []models.Record) []models.Record {
	var out []models.Record
	for _, row := range rows {
		parts := make(map[string][]string, len(seatColumns))
		n := 0
		for _, col := range seatColumns {
			s, ok := row[col].(string)
			if !ok {
				continue
			}
			split := strings.Split(s, "|")
			parts[col] = split
			if len(split) > n {
				n = len(split)
			}
		}
		if n <= 1 {
			out = append(out, row)
			continue
		}
		for i := 0; i < n; i++ {
			rec := row.Clone()
			for _, col := range seatColumns {
				split, ok := parts[col]
				switch {
				case !ok:
					// keep broadcast value
				case i < len(split):
					rec[col] = strings.TrimSpace(split[i])
				default:
					rec[col] = nil
				}
			}
			out = append(out, rec)
		}
	}
	return out
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
