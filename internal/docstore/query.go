package docstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// Filter matches documents whose top-level Field equals Value.
type Filter struct {
	Field string
	Value any
}

// Query narrows and orders a collection listing. OrderBy sorts ascending by a
// top-level field, with the document ID as tie-break; Desc reverses the field order.
type Query struct {
	Filters []Filter
	OrderBy string
	Desc    bool
	Limit   int
}

// Where is shorthand for a single equality filter.
func Where(field string, value any) Query {
	return Query{Filters: []Filter{{Field: field, Value: value}}}
}

// Apply evaluates q over snaps in memory. Backends without native querying share it.
func Apply(snaps []Snapshot, q Query) ([]Snapshot, error) {
	wanted := make([][]byte, len(q.Filters))
	for i, f := range q.Filters {
		b, err := json.Marshal(f.Value)
		if err != nil {
			return nil, fmt.Errorf("encode filter %s: %w", f.Field, err)
		}
		wanted[i] = b
	}

	type row struct {
		snap Snapshot
		key  json.RawMessage
	}
	rows := make([]row, 0, len(snaps))
	for _, snap := range snaps {
		fields := map[string]json.RawMessage{}
		if err := json.Unmarshal(snap.Data, &fields); err != nil {
			return nil, fmt.Errorf("decode %s: %w", snap.Path, err)
		}
		match := true
		for i, f := range q.Filters {
			if !bytes.Equal(compact(fields[f.Field]), wanted[i]) {
				match = false
				break
			}
		}
		if match {
			rows = append(rows, row{snap: snap, key: fields[q.OrderBy]})
		}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := compareRaw(rows[i].key, rows[j].key); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return rows[i].snap.ID < rows[j].snap.ID
	})

	if q.Limit > 0 && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	out := make([]Snapshot, len(rows))
	for i, r := range rows {
		out[i] = r.snap
	}
	return out, nil
}

func compact(raw json.RawMessage) []byte {
	if len(raw) == 0 {
		return []byte("null")
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return raw
	}
	return buf.Bytes()
}

// compareRaw orders numbers numerically and everything else by its encoded form.
// Missing values sort first.
func compareRaw(a, b json.RawMessage) int {
	if len(a) == 0 || len(b) == 0 {
		return len(a) - len(b)
	}
	var fa, fb float64
	if json.Unmarshal(a, &fa) == nil && json.Unmarshal(b, &fb) == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	}
	var sa, sb string
	if json.Unmarshal(a, &sa) == nil && json.Unmarshal(b, &sb) == nil {
		return compareStrings(sa, sb)
	}
	return bytes.Compare(compact(a), compact(b))
}

func compareStrings(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
