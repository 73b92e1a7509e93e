package compilers

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/css"

	"github.com/anvildev/anvil/internal/hashutil"
)

// tailwindInitOnce is shared across every TailwindCompiler instance, so the
// one-time setup happens once per process no matter how many engines exist.
var tailwindInitOnce sync.Once

// TailwindCompiler implements FrameworkCompiler for Tailwind-flavored CSS.
// No Tailwind JIT engine is embeddable in a pure Go process, so every build
// takes the fallback path: a textual stripper built on
// tdewolff/parse/v2/css's token stream, which brace-balances the @layer
// unwrap without being fooled by braces inside strings or comments.
type TailwindCompiler struct {
	mu        sync.Mutex
	cache     map[string]string // (sourceHash, contentHash) -> output
	contentFn func() string     // concatenated tracked content files, for the JIT cache key
}

// NewTailwindCompiler returns a compiler. contentFn, if set, supplies the
// concatenated bodies of tracked content files for cache-key scanning; nil
// keys the cache on the stylesheet alone.
func NewTailwindCompiler(contentFn func() string) *TailwindCompiler {
	return &TailwindCompiler{cache: make(map[string]string), contentFn: contentFn}
}

func (t *TailwindCompiler) Name() string         { return "tailwind-jit" }
func (t *TailwindCompiler) Extensions() []string { return []string{".css"} }

func (t *TailwindCompiler) CanHandle(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".css")
}

// Init marks the shared one-time setup done; repeated calls across
// rebuilds and instances are no-ops.
func (t *TailwindCompiler) Init() error {
	tailwindInitOnce.Do(func() {})
	return nil
}

// needsCompilation reports whether css contains any Tailwind directive.
func needsCompilation(source string) bool {
	return strings.Contains(source, "@tailwind") ||
		strings.Contains(source, "@apply") ||
		strings.Contains(source, "@layer")
}

func (t *TailwindCompiler) Compile(source, path string) (CompileResult, error) {
	if !needsCompilation(source) {
		return CompileResult{
			Code:   source,
			CSS:    source,
			HasCSS: true,
			CSSMetadata: CSSMetadata{
				Type: "base",
			},
		}, nil
	}

	key := t.cacheKey(source)

	t.mu.Lock()
	if cached, ok := t.cache[key]; ok {
		t.mu.Unlock()
		return CompileResult{Code: cached, CSS: cached, HasCSS: true, CSSMetadata: CSSMetadata{Type: "tailwind"}}, nil
	}
	t.mu.Unlock()

	stripped, err := stripTailwindDirectives(source)
	if err != nil {
		return CompileResult{}, fmt.Errorf("tailwind: fallback strip %s: %w", path, err)
	}

	t.mu.Lock()
	t.cache[key] = stripped
	t.mu.Unlock()

	return CompileResult{
		Code:     stripped,
		CSS:      stripped,
		HasCSS:   true,
		Warnings: []string{"tailwind JIT unavailable; applied textual fallback stripper"},
		CSSMetadata: CSSMetadata{
			Type: "tailwind",
		},
	}, nil
}

func (t *TailwindCompiler) cacheKey(content string) string {
	sourceHash := "none"
	if t.contentFn != nil {
		h := fnv.New64a()
		h.Write([]byte(t.contentFn()))
		sourceHash = strconv.FormatUint(h.Sum64(), 36)
	}
	return sourceHash + ":" + hashutil.Hash(content)
}

var emptyRuleRe = regexp.MustCompile(`[^{}]*\{\s*\}`)

// stripTailwindDirectives removes @tailwind and @apply at-rules and
// unwraps balanced @layer blocks, tracking brace depth with
// tdewolff/parse/v2/css's token lexer rather than counting braces in raw
// text (which would be fooled by braces inside strings or comments).
func stripTailwindDirectives(source string) (string, error) {
	l := css.NewLexer(parse.NewInputString(source))

	var out strings.Builder
	// skipUntilSemicolon is set while inside an @tailwind/@apply statement;
	// layerPrelude while between "@layer" and its "{" (or ";" for the
	// statement form). layerBraceStack records the brace depth at which each
	// open @layer block began, so only its own braces are suppressed.
	skipUntilSemicolon := false
	layerPrelude := false
	var layerBraceStack []int
	braceDepth := 0

	for {
		tt, data := l.Next()
		if tt == css.ErrorToken {
			break
		}

		text := string(data)

		switch tt {
		case css.AtKeywordToken:
			switch text {
			case "@tailwind", "@apply":
				skipUntilSemicolon = true
				continue
			case "@layer":
				layerPrelude = true
				continue
			}
		case css.LeftBraceToken:
			braceDepth++
			if layerPrelude {
				layerPrelude = false
				layerBraceStack = append(layerBraceStack, braceDepth-1)
				continue
			}
		case css.RightBraceToken:
			braceDepth--
			if len(layerBraceStack) > 0 && layerBraceStack[len(layerBraceStack)-1] == braceDepth {
				layerBraceStack = layerBraceStack[:len(layerBraceStack)-1]
				continue
			}
		case css.SemicolonToken:
			if skipUntilSemicolon {
				skipUntilSemicolon = false
				continue
			}
			if layerPrelude {
				layerPrelude = false
				continue
			}
		}

		if skipUntilSemicolon || layerPrelude {
			continue
		}

		out.WriteString(text)
	}

	return emptyRuleRe.ReplaceAllString(out.String(), ""), nil
}
