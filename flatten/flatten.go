// Package flatten expands packed responses. Some terminal endpoints
// return one logical record whose cells are parallel arrays spanning a
// whole time series; downstream consumers want one record per time
// point.
package flatten

import "quantmuse/models"

// Flatten expands a single packed row into one record per array index.
// Scalar fields broadcast unchanged to every output record. A row with
// no array-valued fields comes back as-is in a single-element slice, so
// flattening already-flat data is the identity and Flatten is
// idempotent.
//
// Ragged arrays pad with nil up to the longest array rather than
// truncating: silently under-reporting would hide real partial data.
func Flatten(row models.Record) []models.Record {
	arrays := make(map[string][]interface{})
	scalars := make(models.Record)
	nested := make(map[string]models.Record)

	for k, v := range row {
		switch tv := v.(type) {
		case []interface{}:
			arrays[k] = tv
		case map[string]interface{}:
			// Inner-table shape: a nested mapping that itself holds
			// arrays is flattened first and merged field by field.
			if hasArrays(tv) {
				nested[k] = models.Record(tv)
			} else {
				scalars[k] = v
			}
		case models.Record:
			if hasArrays(tv) {
				nested[k] = tv
			} else {
				scalars[k] = v
			}
		default:
			scalars[k] = v
		}
	}

	if len(arrays) == 0 && len(nested) == 0 {
		return []models.Record{row}
	}

	n := 0
	for _, a := range arrays {
		if len(a) > n {
			n = len(a)
		}
	}

	// Inner tables expand independently; their row count also bounds n.
	inner := make(map[string][]models.Record, len(nested))
	for k, nrow := range nested {
		expanded := Flatten(nrow)
		inner[k] = expanded
		if len(expanded) > n {
			n = len(expanded)
		}
	}

	out := make([]models.Record, 0, n)
	for i := 0; i < n; i++ {
		rec := make(models.Record, len(row))
		for k, v := range scalars {
			rec[k] = v
		}
		for k, a := range arrays {
			if i < len(a) {
				rec[k] = a[i]
			} else {
				rec[k] = nil
			}
		}
		// Inner fields take precedence over an outer field of the
		// same name.
		for _, rows := range inner {
			if i < len(rows) {
				for k, v := range rows[i] {
					rec[k] = v
				}
			} else if len(rows) > 0 {
				for k := range rows[0] {
					if _, ok := rec[k]; !ok {
						rec[k] = nil
					}
				}
			}
		}
		out = append(out, rec)
	}
	return out
}

// Rows flattens a normalized result. Only a single packed row is
// expanded; multi-row results are assumed already flat.
func Rows(rows []models.Record) []models.Record {
	if len(rows) != 1 {
		return rows
	}
	return Flatten(rows[0])
}

func hasArrays(m map[string]interface{}) bool {
	for _, v := range m {
		if _, ok := v.([]interface{}); ok {
			return true
		}
	}
	return false
}
