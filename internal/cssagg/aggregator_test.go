package cssagg

import (
	"strings"
	"testing"
)

func TestAddCSSLastWriteWins(t *testing.T) {
	a := New()
	a.AddCSS("/src/App.vue", "css1", TypeBase, "")
	a.AddCSS("/src/App.vue", "css2", TypeComponent, "data-v-1")

	if a.Size() != 1 {
		t.Fatalf("expected size 1, got %d", a.Size())
	}

	out := a.Aggregate()
	if !strings.Contains(out, "css2") {
		t.Fatal("expected last write to win")
	}
	if strings.Contains(out, "css1") {
		t.Fatal("expected first write to be replaced")
	}
}

func TestAddCSSSkipsEmpty(t *testing.T) {
	a := New()
	a.AddCSS("/src/App.vue", "   ", TypeBase, "")
	if a.Size() != 0 {
		t.Fatal("expected whitespace-only CSS to be skipped")
	}
}

func TestAggregateOrdersByTypeThenOrder(t *testing.T) {
	a := New()
	a.AddCSS("/src/c.css", "component-css", TypeComponent, "")
	a.AddCSS("/src/t.css", "tailwind-css", TypeTailwind, "")
	a.AddCSS("/src/b.css", "base-css", TypeBase, "")

	out := a.Aggregate()
	baseIdx := strings.Index(out, "base-css")
	twIdx := strings.Index(out, "tailwind-css")
	compIdx := strings.Index(out, "component-css")

	if !(baseIdx < twIdx && twIdx < compIdx) {
		t.Fatalf("expected base < tailwind < component ordering, got indices %d %d %d", baseIdx, twIdx, compIdx)
	}
}

func TestNormalizeDedupesCaseAndQuery(t *testing.T) {
	a := New()
	a.AddCSS("/src/App.vue?scoped", "first", TypeBase, "")
	a.AddCSS("/SRC/APP.VUE", "second", TypeBase, "")

	if a.Size() != 1 {
		t.Fatalf("expected normalization to dedupe to 1 entry, got %d", a.Size())
	}
}

func TestAggregateGroupedSeparatesBuckets(t *testing.T) {
	a := New()
	a.AddCSS("/src/b.css", "base-css", TypeBase, "")
	a.AddCSS("/src/t.css", "tailwind-css", TypeTailwind, "")

	g := a.AggregateGrouped()
	if !strings.Contains(g.Base, "base-css") {
		t.Fatal("expected base bucket to contain base css")
	}
	if !strings.Contains(g.Tailwind, "tailwind-css") {
		t.Fatal("expected tailwind bucket to contain tailwind css")
	}
	if strings.Contains(g.Base, "tailwind-css") {
		t.Fatal("expected buckets to be separated")
	}
}

func TestClearResetsCounterAndEntries(t *testing.T) {
	a := New()
	a.AddCSS("/src/a.css", "a", TypeBase, "")
	a.Clear()
	if a.Size() != 0 {
		t.Fatal("expected clear to empty entries")
	}
	a.AddCSS("/src/b.css", "b", TypeBase, "")
	out := a.Aggregate()
	if !strings.Contains(out, "/src/b.css") {
		t.Fatal("expected new entry after clear")
	}
}

func TestGetStatsTracksHitsAndMisses(t *testing.T) {
	a := New()
	a.AddCSS("/src/a.css", "a1", TypeBase, "")
	a.AddCSS("/src/b.css", "b1", TypeBase, "")
	a.AddCSS("/src/a.css", "a2", TypeBase, "")

	stats := a.GetStats()
	if stats.Entries != 2 {
		t.Fatalf("expected 2 entries, got %d", stats.Entries)
	}
	if stats.Misses != 2 {
		t.Fatalf("expected 2 misses (first-seen sources), got %d", stats.Misses)
	}
	if stats.Hits != 1 {
		t.Fatalf("expected 1 hit (re-added source), got %d", stats.Hits)
	}
}

func TestClearResetsHitAndMissCounters(t *testing.T) {
	a := New()
	a.AddCSS("/src/a.css", "a1", TypeBase, "")
	a.AddCSS("/src/a.css", "a2", TypeBase, "")
	a.Clear()

	stats := a.GetStats()
	if stats.Hits != 0 || stats.Misses != 0 {
		t.Fatalf("expected hits and misses reset after Clear, got hits=%d misses=%d", stats.Hits, stats.Misses)
	}
}
