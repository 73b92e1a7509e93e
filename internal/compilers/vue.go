package compilers

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"golang.org/x/net/html"

	"github.com/anvildev/anvil/internal/hashutil"
)

// VueCompiler implements FrameworkCompiler for Vue single-file components.
// Block splitting tokenizes the source with golang.org/x/net/html rather
// than regular expressions, reconstructing each block's raw text from the
// tokenizer's Raw() bytes between a block's start and matching end tag.
type VueCompiler struct {
	initOnce sync.Once
}

// NewVueCompiler returns an unitialized Vue compiler; call Init (or let the
// registry call it) before Compile.
func NewVueCompiler() *VueCompiler {
	return &VueCompiler{}
}

func (v *VueCompiler) Name() string         { return "vue-sfc" }
func (v *VueCompiler) Extensions() []string { return []string{".vue"} }
func (v *VueCompiler) CanHandle(path string) bool {
	return strings.HasSuffix(strings.ToLower(path), ".vue")
}

// Init is lazy and idempotent; subsequent calls are no-ops. The SFC
// "parser" is this package's own tokenizer-based splitter, so Init just
// marks readiness once; concurrent callers converge on a single
// initialization through the sync.Once.
func (v *VueCompiler) Init() error {
	v.initOnce.Do(func() {})
	return nil
}

type styleBlock struct {
	content string
	scoped  bool
	lang    string
}

type sfcBlocks struct {
	template    string
	script      string
	scriptSetup bool
	scriptLang  string
	styles      []styleBlock
}

// Compile parses source into {template, script, scriptSetup, styles[]},
// generates a scope id, transforms the script with esbuild, scopes each
// style block marked scoped, and assembles an ES module exporting a default
// component with __scopeId set. The template is not compiled to a render
// function: its raw text is attached as the component's template option,
// whether or not the script block carries the setup attribute. CSS is
// returned in the result's CSS field, typed by CSSMetadata, for the
// aggregator, never injected into Code.
func (v *VueCompiler) Compile(source, path string) (CompileResult, error) {
	blocks, err := parseSFCBlocks(source)
	if err != nil {
		return CompileResult{}, fmt.Errorf("vue: parse %s: %w", path, err)
	}

	scopeID := scopeIDFor(path, source)

	var warnings []string
	scriptBody := blocks.script
	if scriptBody == "" {
		scriptBody = "export default {}"
	}

	transformed := esbuild.Transform(scriptBody, esbuild.TransformOptions{
		Loader:   loaderForLang(blocks.scriptLang),
		Format:   esbuild.FormatESModule,
		Target:   esbuild.ES2020,
		Platform: esbuild.PlatformBrowser,
	})
	for _, msg := range transformed.Errors {
		warnings = append(warnings, msg.Text)
	}

	code := assembleVueModule(string(transformed.Code), blocks.template, scopeID)

	var cssParts []string
	for _, s := range blocks.styles {
		css := s.content
		if s.scoped {
			css = scopeCSS(css, scopeID)
		}
		cssParts = append(cssParts, css)
	}

	return CompileResult{
		Code:     code,
		CSS:      strings.Join(cssParts, "\n"),
		HasCSS:   len(cssParts) > 0,
		Warnings: warnings,
		CSSMetadata: CSSMetadata{
			Type:    "component",
			ScopeID: scopeID,
		},
	}, nil
}

// scopeIDFor derives a scope id from the component's path and content hash
// instead of a counter/random suffix, so compiling identical source twice
// (as the orchestrator does on every framework-file recompile) yields
// byte-identical output.
func scopeIDFor(path, source string) string {
	return "data-v-" + hashutil.Hash(path+"\x00"+source)
}

func loaderForLang(lang string) esbuild.Loader {
	switch lang {
	case "ts":
		return esbuild.LoaderTS
	case "tsx":
		return esbuild.LoaderTSX
	case "jsx":
		return esbuild.LoaderJSX
	default:
		return esbuild.LoaderJS
	}
}

// assembleVueModule rewrites the script's "export default" into a named
// const so the template and scope id can be merged in before re-exporting,
// the way the real Vue SFC compiler splices compiler-generated render
// options into the user's component object.
func assembleVueModule(scriptCode, template, scopeID string) string {
	body := strings.Replace(scriptCode, "export default", "const __sfc_main =", 1)
	if !strings.Contains(body, "__sfc_main") {
		body += "\nconst __sfc_main = {};"
	}

	var b strings.Builder
	b.WriteString("import { defineComponent } from \"vue\";\n")
	b.WriteString(body)
	b.WriteString("\n")
	fmt.Fprintf(&b, "const __template = %s;\n", strconv.Quote(template))
	b.WriteString("const __merged = Object.assign({}, __sfc_main, { template: __template });\n")
	fmt.Fprintf(&b, "__merged.__scopeId = %s;\n", strconv.Quote(scopeID))
	b.WriteString("export default defineComponent(__merged);\n")
	return b.String()
}

// scopeCSS rewires each top-level selector to also require the component's
// scope attribute, a simplified stand-in for Vue's real CSS-scoping
// transform (which walks a parsed stylesheet AST); here each selector list
// before a '{' gets the attribute selector appended.
func scopeCSS(css, scopeID string) string {
	var out strings.Builder
	depth := 0
	selectorStart := 0
	for i, r := range css {
		switch r {
		case '{':
			if depth == 0 {
				selector := strings.TrimSpace(css[selectorStart:i])
				if selector != "" && !strings.HasPrefix(selector, "@") {
					out.WriteString(rewriteSelector(selector, scopeID))
				} else {
					out.WriteString(selector)
				}
			}
			out.WriteByte('{')
			depth++
		case '}':
			out.WriteByte('}')
			depth--
			if depth == 0 {
				selectorStart = i + 1
			}
		default:
			if depth > 0 {
				out.WriteRune(r)
			}
		}
	}
	return out.String()
}

func rewriteSelector(selector, scopeID string) string {
	parts := strings.Split(selector, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p) + "[" + scopeID + "]"
	}
	return strings.Join(parts, ", ")
}

// parseSFCBlocks tokenizes source and reconstructs the raw content of each
// top-level <template>, <script>, and <style> block from the tokenizer's
// Raw() bytes.
func parseSFCBlocks(source string) (sfcBlocks, error) {
	z := html.NewTokenizer(strings.NewReader(source))
	var blocks sfcBlocks

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}

		name, hasAttr := z.TagName()
		tag := string(name)
		if tag != "template" && tag != "script" && tag != "style" {
			continue
		}

		attrs := map[string]string{}
		for hasAttr {
			var key, val []byte
			key, val, hasAttr = z.TagAttr()
			attrs[string(key)] = string(val)
		}

		if tt == html.SelfClosingTagToken {
			continue
		}

		content, err := readRawUntilClose(z, tag)
		if err != nil {
			return blocks, err
		}

		switch tag {
		case "template":
			blocks.template = content
		case "script":
			if _, ok := attrs["setup"]; ok {
				blocks.scriptSetup = true
			}
			blocks.scriptLang = attrs["lang"]
			if blocks.scriptLang == "" {
				blocks.scriptLang = "ts"
			}
			blocks.script = content
		case "style":
			_, scoped := attrs["scoped"]
			blocks.styles = append(blocks.styles, styleBlock{
				content: content,
				scoped:  scoped,
				lang:    attrs["lang"],
			})
		}
	}

	return blocks, nil
}

// readRawUntilClose accumulates raw source text until the matching end tag
// for tagName is found, tracking nesting depth for same-named tags.
func readRawUntilClose(z *html.Tokenizer, tagName string) (string, error) {
	var b strings.Builder
	depth := 1

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return b.String(), nil
		}

		raw := z.Raw()

		if tt == html.StartTagToken {
			name, _ := z.TagName()
			if string(name) == tagName {
				depth++
			}
		}
		if tt == html.EndTagToken {
			name, _ := z.TagName()
			if string(name) == tagName {
				depth--
				if depth == 0 {
					return b.String(), nil
				}
			}
		}

		b.Write(raw)
	}
}
