package obslog

import (
	"log/slog"
	"strings"
	"testing"
)

func boolPtr(b bool) *bool { return &b }

func newBufferedLogger(t *testing.T, opts Options) (*slog.Logger, *strings.Builder) {
	t.Helper()
	var buf strings.Builder
	opts.Output = &buf
	if opts.UseColor == nil {
		opts.UseColor = boolPtr(false)
	}
	return New("test", opts), &buf
}

func TestHandleIncludesLabelAndMessage(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{})
	log.Info("engine started")

	out := buf.String()
	if !strings.Contains(out, "(test)") {
		t.Fatalf("expected label in output, got %q", out)
	}
	if !strings.Contains(out, "engine started") {
		t.Fatalf("expected message in output, got %q", out)
	}
}

func TestHandleRendersAttrs(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{})
	log.Info("built", "entry", "/src/main.ts", "errors", 0)

	out := buf.String()
	for _, want := range []string{"entry", "/src/main.ts", "errors", "0"} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in output, got %q", want, out)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{Level: slog.LevelWarn})
	log.Info("hidden")
	log.Warn("visible")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("expected info record to be filtered, got %q", out)
	}
	if !strings.Contains(out, "visible") {
		t.Fatalf("expected warn record to pass, got %q", out)
	}
}

func TestWithAttrsPersistAcrossRecords(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{})
	log = log.With("component", "cache")
	log.Info("evicted")

	if !strings.Contains(buf.String(), "component") {
		t.Fatalf("expected persistent attr in output, got %q", buf.String())
	}
}

func TestWithGroupQualifiesKeys(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{})
	log = log.WithGroup("cdn")
	log.Info("fetched", "url", "https://esm.sh/react")

	if !strings.Contains(buf.String(), "cdn.url") {
		t.Fatalf("expected group-qualified key, got %q", buf.String())
	}
}

func TestNoColorWhenDisabled(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{UseColor: boolPtr(false)})
	log.Error("boom")

	if strings.Contains(buf.String(), "\033[") {
		t.Fatalf("expected no ANSI escapes, got %q", buf.String())
	}
}

func TestColorWhenForced(t *testing.T) {
	log, buf := newBufferedLogger(t, Options{UseColor: boolPtr(true)})
	log.Error("boom")

	if !strings.Contains(buf.String(), ansiRed) {
		t.Fatalf("expected red escape for error level, got %q", buf.String())
	}
}
