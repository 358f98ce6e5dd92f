// Package normalize turns arbitrary-shaped terminal responses into a
// stable tabular form. The upstream API has no single contract: the same
// logical call may answer with a (code, payload) tuple, byte-encoded
// JSON, a JSON string, or a decoded mapping. Normalization is therefore
// shape-driven, total over the documented shape set, and fails closed:
// anything unrecognized degrades to (no status, no rows) so the fallback
// resolver can move on to the next candidate.
package normalize

import (
	"encoding/json"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"

	"quantmuse/models"
)

// SyntheticField is the column name used when a payload carries bare
// scalars instead of named fields.
const SyntheticField = "value"

// statusKeys are the known aliases under which the terminal reports a
// status-like code inside a mapping, in probe order.
var statusKeys = []string{"errorcode", "errcode", "code", "return", "status"}

// dataKeys are the known aliases for the payload inside a mapping, in
// probe order.
var dataKeys = []string{"data", "tables", "rows", "list", "records", "table"}

// Normalize converts one raw response into an optional status code and
// an ordered sequence of rows. It never panics for any variant; every
// row in the result carries the same key set, with missing fields
// present as nil.
func Normalize(raw models.RawResponse) (*int, []models.Record) {
	status, rows := dispatch(raw)
	return status, unifyKeys(rows)
}

func dispatch(raw models.RawResponse) (*int, []models.Record) {
	switch raw.Kind {
	case models.RawTuple:
		return tupleRows(raw.Items)
	case models.RawBytes:
		return textRows(decodeBytes(raw.Bytes))
	case models.RawText:
		return textRows(raw.Text)
	case models.RawMapping:
		return mappingRows(raw.Mapping)
	case models.RawList:
		return nil, payloadRows(raw.Items)
	case models.RawScalar:
		return nil, []models.Record{{SyntheticField: raw.Scalar}}
	default:
		return nil, nil
	}
}

// tupleRows handles the (code, payload) shape. When the first element
// does not coerce to an integer the whole tuple is treated as a plain
// list payload.
func tupleRows(items []interface{}) (*int, []models.Record) {
	if len(items) == 0 {
		return nil, nil
	}
	status, ok := coerceInt(items[0])
	if !ok {
		return nil, payloadRows(items)
	}
	if len(items) < 2 {
		return &status, nil
	}
	return &status, valueRows(items[1])
}

// decodeBytes decodes a byte buffer through a fallback chain of
// encodings. The terminal serves UTF-8 on most endpoints but falls back
// to legacy Chinese encodings on some account tiers; undecodable bytes
// are dropped rather than failing the attempt.
func decodeBytes(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	for _, dec := range []*encoding.Decoder{
		simplifiedchinese.GB18030.NewDecoder(),
		simplifiedchinese.GBK.NewDecoder(),
	} {
		if decoded, err := dec.Bytes(b); err == nil {
			return string(decoded)
		}
	}
	return string(b)
}

// textRows strictly parses text as JSON; unparseable text yields no
// status and no rows.
func textRows(s string) (*int, []models.Record) {
	if s == "" {
		return nil, nil
	}
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, nil
	}
	switch tv := v.(type) {
	case map[string]interface{}:
		return mappingRows(tv)
	case []interface{}:
		return nil, payloadRows(tv)
	default:
		return nil, []models.Record{{SyntheticField: tv}}
	}
}

// mappingRows probes the known status and data key aliases. A non-empty
// mapping without a data key is itself one row.
func mappingRows(m map[string]interface{}) (*int, []models.Record) {
	if len(m) == 0 {
		return nil, nil
	}

	var status *int
	for _, k := range statusKeys {
		if v, ok := m[k]; ok {
			if code, ok := coerceInt(v); ok {
				status = &code
				break
			}
		}
	}

	for _, k := range dataKeys {
		if v, ok := m[k]; ok {
			return status, valueRows(v)
		}
	}

	if status != nil && len(m) == 1 {
		// Status-only envelope, nothing tabular inside.
		return status, nil
	}
	return status, []models.Record{models.Record(m)}
}

// valueRows converts a payload value of unknown shape into rows.
func valueRows(v interface{}) []models.Record {
	switch tv := v.(type) {
	case nil:
		return nil
	case map[string]interface{}:
		if rows, ok := columnarRows(tv); ok {
			return rows
		}
		return []models.Record{models.Record(tv)}
	case []interface{}:
		return payloadRows(tv)
	default:
		return []models.Record{{SyntheticField: tv}}
	}
}

// payloadRows converts a list payload: mappings become one row each,
// scalars one synthetic row each.
func payloadRows(items []interface{}) []models.Record {
	var rows []models.Record
	for _, item := range items {
		switch tv := item.(type) {
		case map[string]interface{}:
			rows = append(rows, models.Record(tv))
		default:
			rows = append(rows, models.Record{SyntheticField: tv})
		}
	}
	return rows
}

// columnarRows detects the column-oriented table shape where every
// field holds a parallel list, and expands it to one row per index.
// Ragged columns pad with nil so partial data stays visible.
func columnarRows(m map[string]interface{}) ([]models.Record, bool) {
	if len(m) == 0 {
		return nil, false
	}
	max := 0
	for _, v := range m {
		list, ok := v.([]interface{})
		if !ok {
			return nil, false
		}
		if len(list) > max {
			max = len(list)
		}
	}
	rows := make([]models.Record, max)
	for i := range rows {
		rows[i] = make(models.Record, len(m))
	}
	for k, v := range m {
		list := v.([]interface{})
		for i := 0; i < max; i++ {
			if i < len(list) {
				rows[i][k] = list[i]
			} else {
				rows[i][k] = nil
			}
		}
	}
	return rows, true
}

// unifyKeys gives every row the union key set, inserting nil for
// missing fields. Rows must never silently drop columns.
func unifyKeys(rows []models.Record) []models.Record {
	if len(rows) < 2 {
		return rows
	}
	keys := make(map[string]struct{})
	for _, r := range rows {
		for k := range r {
			keys[k] = struct{}{}
		}
	}
	for _, r := range rows {
		for k := range keys {
			if _, ok := r[k]; !ok {
				r[k] = nil
			}
		}
	}
	return rows
}

// coerceInt converts status-like values. The terminal reports codes as
// native ints, JSON numbers, or numeric strings depending on the shape.
func coerceInt(v interface{}) (int, bool) {
	switch tv := v.(type) {
	case int:
		return tv, true
	case int32:
		return int(tv), true
	case int64:
		return int(tv), true
	case float64:
		if tv == float64(int(tv)) {
			return int(tv), true
		}
		return 0, false
	case json.Number:
		if n, err := tv.Int64(); err == nil {
			return int(n), true
		}
		return 0, false
	case string:
		if n, err := strconv.Atoi(tv); err == nil {
			return n, true
		}
		return 0, false
	default:
		return 0, false
	}
}
