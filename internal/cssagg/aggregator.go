// Package cssagg implements the CSS aggregator: an ordered, deduplicated
// collection of CSS fragments keyed by normalized source path. Emission
// order is base stylesheets, then Tailwind output, then component styles,
// each bucket in insertion order.
package cssagg

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/anvildev/anvil/build"
)

// EntryType and Entry alias the public CSS data model so the aggregator's
// internals and the build package describe fragments with one shape.
type (
	EntryType = build.CSSEntryType
	Entry     = build.CSSEntry
)

const (
	TypeBase      = build.CSSTypeBase
	TypeTailwind  = build.CSSTypeTailwind
	TypeComponent = build.CSSTypeComponent
)

// Aggregator maintains source-path -> Entry, enforcing at-most-one entry
// per normalized source. Re-adding a source replaces its entry.
type Aggregator struct {
	mu      sync.Mutex
	entries map[string]Entry
	counter int
	hits    int
	misses  int
}

// Stats reports the aggregator's entry count plus dedup hit/miss counts, in
// the same shape as internal/cache.Stats. The CSS bucket of
// build.CacheStats is filled from the planner's CSS cache, not from these.
type Stats struct {
	Entries int
	Hits    int
	Misses  int
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{entries: make(map[string]Entry)}
}

// normalize lowercases the source path, strips any query string, and
// enforces a leading slash.
func normalize(source string) string {
	if idx := strings.IndexByte(source, '?'); idx >= 0 {
		source = source[:idx]
	}
	source = strings.ToLower(source)
	if !strings.HasPrefix(source, "/") {
		source = "/" + source
	}
	return source
}

// AddCSS replaces any prior entry for the same normalized source. Empty or
// whitespace-only CSS is silently skipped. Overwriting an existing source
// counts as a dedup hit; adding a source seen for the first time counts as
// a miss (see Stats).
func (a *Aggregator) AddCSS(source, css string, typ EntryType, scopeID string) {
	if strings.TrimSpace(css) == "" {
		return
	}

	key := normalize(source)

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, exists := a.entries[key]; exists {
		a.hits++
	} else {
		a.misses++
	}

	order := a.counter
	a.counter++

	a.entries[key] = Entry{
		Source:  key,
		CSS:     css,
		Type:    typ,
		ScopeID: scopeID,
		Order:   order,
	}
}

func typePriority(t EntryType) int {
	switch t {
	case TypeBase:
		return 0
	case TypeTailwind:
		return 1
	case TypeComponent:
		return 2
	default:
		return 3
	}
}

func (a *Aggregator) sortedEntriesLocked() []Entry {
	out := make([]Entry, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := typePriority(out[i].Type), typePriority(out[j].Type)
		if pi != pj {
			return pi < pj
		}
		return out[i].Order < out[j].Order
	})
	return out
}

// Aggregate returns a single string with every entry, sorted by
// (typePriority, order), each prefixed with a "/* Source: ... */" comment.
func (a *Aggregator) Aggregate() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	var b strings.Builder
	for _, e := range a.sortedEntriesLocked() {
		fmt.Fprintf(&b, "/* Source: %s */\n%s\n", e.Source, e.CSS)
	}
	return b.String()
}

// Grouped is the three-bucket output of AggregateGrouped.
type Grouped struct {
	Base      string
	Tailwind  string
	Component string
}

// AggregateGrouped returns the same ordering as Aggregate but split into
// three strings, one per type bucket.
func (a *Aggregator) AggregateGrouped() Grouped {
	a.mu.Lock()
	defer a.mu.Unlock()

	var base, tw, comp strings.Builder
	for _, e := range a.sortedEntriesLocked() {
		target := &base
		switch e.Type {
		case TypeTailwind:
			target = &tw
		case TypeComponent:
			target = &comp
		}
		fmt.Fprintf(target, "/* Source: %s */\n%s\n", e.Source, e.CSS)
	}
	return Grouped{Base: base.String(), Tailwind: tw.String(), Component: comp.String()}
}

// Size returns the number of distinct sources currently aggregated.
func (a *Aggregator) Size() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

// GetStats returns the current entry count and dedup hit/miss totals.
func (a *Aggregator) GetStats() Stats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return Stats{Entries: len(a.entries), Hits: a.hits, Misses: a.misses}
}

// Clear resets the aggregator, its order counter, and its hit/miss totals.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = make(map[string]Entry)
	a.counter = 0
	a.hits = 0
	a.misses = 0
}
