package report

import (
	"encoding/json"
	"time"

	"github.com/srg/thpgw/internal/cache"
	"github.com/srg/thpgw/internal/sensor"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// Report is one snapshot of the cache as shipped to the sinks
type Report struct {
	CreatedAt time.Time
	Values    *orderedmap.OrderedMap[string, string]
}

// Build turns a cache snapshot into a Report. Every kind is present, in kind order;
// missing and stale entries become "".
func Build(entries []cache.Entry, now time.Time) Report {
	byKind := make(map[sensor.Kind]cache.Entry, len(entries))
	for _, e := range entries {
		byKind[e.Kind] = e
	}

	values := orderedmap.New[string, string]()
	for _, k := range sensor.Kinds() {
		v := ""
		if e, ok := byKind[k]; ok && !e.Stale {
			v = e.Value
		}
		values.Set(k.Label(), v)
	}
	return Report{CreatedAt: now, Values: values}
}

// Empty reports whether no kind carries a value
func (r Report) Empty() bool {
	if r.Values == nil {
		return true
	}
	for pair := r.Values.Oldest(); pair != nil; pair = pair.Next() {
		if pair.Value != "" {
			return false
		}
	}
	return true
}

// MarshalJSON renders {"Temperature":"..","Humidity":"..","Pressure":".."} in that order
func (r Report) MarshalJSON() ([]byte, error) {
	if r.Values == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(r.Values)
}
