package adapter

import (
	"fmt"
	"time"

	"quantmuse/models"
	"quantmuse/resolver"
	"quantmuse/terminal"
)

const compactLayout = "20060102"

// dateVariants returns the hyphenated and compact renderings of a date.
// Which one the terminal accepts varies by endpoint and account tier,
// so both are fallback candidates.
func dateVariants(date string) []string {
	t, err := time.Parse(models.DateLayout, date)
	if err != nil {
		return []string{date}
	}
	compact := t.Format(compactLayout)
	if compact == date {
		return []string{date}
	}
	return []string{date, compact}
}

// filterVariants are the known filter-string qualifiers for data-pool
// queries, most-likely-to-succeed first. The per-exchange forms exist
// because some tiers only answer when the universe is narrowed.
func filterVariants(date string) []string {
	return []string{
		fmt.Sprintf("date:%s", date),
		fmt.Sprintf("date:%s;exchange:SSE", date),
		fmt.Sprintf("date:%s;exchange:SZSE", date),
	}
}

// poolShapes builds the candidate list for a data-pool query: the
// cartesian product of date formats and filter variants. Order matters
// only for latency; success semantics are identical regardless.
func poolShapes(pool, date, fields string) []resolver.InvocationShape {
	var shapes []resolver.InvocationShape
	for _, d := range dateVariants(date) {
		for _, filter := range filterVariants(d) {
			shapes = append(shapes, resolver.InvocationShape{
				Description: fmt.Sprintf("datapool(%s) time=%s filter=%s", pool, d, filter),
				Op:          terminal.OpDataPool,
				Params:      []string{pool, d, filter, fields},
			})
		}
	}
	return shapes
}

// historyShapes builds the candidate list for a history-quotes query
// over one instrument.
func historyShapes(code, indicators, startDate, endDate string) []resolver.InvocationShape {
	starts := dateVariants(startDate)
	ends := dateVariants(endDate)
	var shapes []resolver.InvocationShape
	for i := range starts {
		end := ends[len(ends)-1]
		if i < len(ends) {
			end = ends[i]
		}
		shapes = append(shapes, resolver.InvocationShape{
			Description: fmt.Sprintf("history_quotes(%s) %s..%s", code, starts[i], end),
			Op:          terminal.OpHistoryQuotes,
			Params:      []string{code, indicators, "", starts[i], end},
		})
	}
	return shapes
}
