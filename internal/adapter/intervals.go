package adapter

import (
	"sort"
)

// Interval describes one canonical interval name: its duration and the
// code the venue uses on the wire. Tables are data, declared per
// exchange package.
type Interval struct {
	Seconds int64
	Wire    string
}

// IntervalTable maps canonical interval names ("1m", "1h") to their
// venue binding.
type IntervalTable map[string]Interval

// Seconds returns the duration for a canonical name.
func (t IntervalTable) Seconds(name string) (int64, bool) {
	iv, ok := t[name]
	return iv.Seconds, ok
}

// Wire returns the venue's code for a canonical name.
func (t IntervalTable) Wire(name string) (string, bool) {
	iv, ok := t[name]
	return iv.Wire, ok
}

// Has reports whether the venue serves the interval.
func (t IntervalTable) Has(name string) bool {
	_, ok := t[name]
	return ok
}

// Names lists the canonical names ordered by duration.
func (t IntervalTable) Names() []string {
	names := make([]string, 0, len(t))
	for name := range t {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		a, b := t[names[i]], t[names[j]]
		if a.Seconds != b.Seconds {
			return a.Seconds < b.Seconds
		}
		return names[i] < names[j]
	})
	return names
}

// WSSet builds the streamable subset used by WSIntervals from a list
// of canonical names.
func WSSet(names ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		set[name] = struct{}{}
	}
	return set
}
