package normalize

import (
	"sync"

	"quantmuse/logger"
	"quantmuse/models"
)

// defaultSynonyms maps canonical column names to the upstream field
// names observed for them. The terminal uses long per-dataset indicator
// names; downstream tables want stable short ones.
var defaultSynonyms = map[string][]string{
	"code":               {"ths_stock_code_stock", "thscode", "stock_code", "seccode"},
	"name":               {"ths_stock_short_name_stock", "secname"},
	"trade_date":         {"time", "date", "trade_date"},
	"lhb_buy":            {"ths_lhb_buy_amount_stock"},
	"lhb_sell":           {"ths_lhb_sell_amount_stock"},
	"lhb_net_buy":        {"ths_lhb_net_buy_amount_stock"},
	"lhb_turnover_ratio": {"ths_lhb_turnover_ratio_stock"},
	"lhb_reason":         {"ths_lhb_reason_stock"},
	"seat_name":          {"ths_lhb_seat_name_stock"},
	"seat_type":          {"ths_lhb_seat_type_stock"},
	"seat_buy":           {"ths_lhb_buy_amount_seat_stock"},
	"seat_sell":          {"ths_lhb_sell_amount_seat_stock"},
	"open":               {"ths_open_price_stock"},
	"high":               {"ths_high_price_stock"},
	"low":                {"ths_low_price_stock"},
	"close":              {"ths_close_price_stock"},
	"volume":             {"ths_vol_stock"},
	"amount":             {"ths_amount_stock"},
	"turnover":           {"ths_turnover_ratio_stock", "turn"},
	"pct_change":         {"ths_chg_ratio_stock", "pctChg"},
	"avg_price":          {"ths_avg_price_stock", "avgPrice"},
}

// ColumnMap renames upstream columns to canonical names. Matching is an
// explicit synonym table rather than substring heuristics; columns with
// no mapping are kept under their original name and flagged once, since
// silently losing an unrecognized financial field is a correctness risk.
type ColumnMap struct {
	synonyms  map[string]string // upstream name -> canonical name
	canonical map[string]struct{}
	log       *logger.Entry

	mu      sync.Mutex
	flagged map[string]struct{}
}

// NewColumnMap builds a column map from the defaults merged with
// config-supplied overrides (canonical name -> upstream synonyms).
func NewColumnMap(overrides map[string][]string) *ColumnMap {
	synonyms := make(map[string]string)
	canonical := make(map[string]struct{})
	for name, names := range defaultSynonyms {
		canonical[name] = struct{}{}
		for _, n := range names {
			synonyms[n] = name
		}
	}
	for name, names := range overrides {
		canonical[name] = struct{}{}
		for _, n := range names {
			synonyms[n] = name
		}
	}
	return &ColumnMap{
		synonyms:  synonyms,
		canonical: canonical,
		log:       logger.GetLogger().WithComponent("columns"),
		flagged:   make(map[string]struct{}),
	}
}

// Canonicalize renames mapped columns across all rows. A canonical
// column already present in a row is never overwritten by a synonym.
func (c *ColumnMap) Canonicalize(rows []models.Record) []models.Record {
	for i, row := range rows {
		out := make(models.Record, len(row))
		for k, v := range row {
			target, ok := c.synonyms[k]
			if !ok {
				if _, isCanonical := c.canonical[k]; !isCanonical {
					c.flag(k)
				}
				target = k
			}
			if _, exists := out[target]; !exists || target == k {
				out[target] = v
			}
		}
		// A synonym must not clobber a column that already carries
		// the canonical name.
		for k, v := range row {
			if _, isCanonical := c.canonical[k]; isCanonical {
				out[k] = v
			}
		}
		rows[i] = out
	}
	return rows
}

// flag logs an unmapped column once per process.
func (c *ColumnMap) flag(name string) {
	if name == SyntheticField {
		return
	}
	c.mu.Lock()
	_, seen := c.flagged[name]
	if !seen {
		c.flagged[name] = struct{}{}
	}
	c.mu.Unlock()
	if !seen {
		c.log.WithFields(logger.Fields{"column": name}).Warn("unmapped upstream column kept as-is")
	}
}
