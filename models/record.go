package models

import "time"

// Record is one normalized row: field name to scalar or nested value.
// All records produced by one normalization pass share the same key set;
// missing fields are present with a nil value, never silently dropped.
type Record map[string]interface{}

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// AttemptTrace captures one fallback attempt for diagnostics. It is
// never part of the returned data.
type AttemptTrace struct {
	Shape      string
	RawType    string
	StatusCode *int
	RowCount   int
	Duration   time.Duration
}

// Result is the typed outcome of one adapter fetch. NoData marks the
// well-defined "upstream genuinely has nothing for this query" case,
// distinct from a transient fault (which surfaces as an error).
type Result struct {
	Records []Record
	NoData  bool
	Trace   []AttemptTrace
}
