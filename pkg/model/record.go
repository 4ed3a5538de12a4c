package model

import (
	"encoding/json"
	"math"
	"strconv"
	"time"
)

// Record is a snapshot of one row of a watched table, keyed by column name.
//
//	"id" holds the object id.
type Record map[string]interface{}

// ID returns the object id of the record, or 0 if it has none.
func (r Record) ID() int64 {
	id, _ := r.Int64("id")
	return id
}

// Int64 reads a numeric field as Unix seconds.
// time.Time values are converted; nil, missing and non-numeric values report false.
func (r Record) Int64(field string) (int64, bool) {
	v, ok := r[field]
	if !ok || v == nil {
		return 0, false
	}
	return toInt64(v)
}

// Clone returns a shallow copy so callers cannot mutate shared snapshots.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint32:
		return int64(n), true
	case uint64:
		if n > math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case float32:
		return int64(n), true
	case float64:
		return int64(n), true
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			f, ferr := n.Float64()
			if ferr != nil {
				return 0, false
			}
			return int64(f), true
		}
		return i, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(n), 10, 64)
		return i, err == nil
	case time.Time:
		return n.Unix(), true
	default:
		return 0, false
	}
}
