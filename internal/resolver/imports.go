// Package resolver implements module resolution as a pair of esbuild
// plugins — a virtual filesystem plugin and a CDN plugin — plus the static
// import-extraction step the dependency graph needs to learn a file's
// imports and npm dependencies without a full bundle.
package resolver

import (
	"strconv"
	"strings"

	"github.com/tdewolff/parse/v2"
	"github.com/tdewolff/parse/v2/js"
)

// ExtractedImports is the static-analysis result for one source file:
// intra-project import specifiers and bare (npm) specifiers, tracked
// separately.
type ExtractedImports struct {
	Imports         []string
	NPMDependencies []string
}

// ExtractImports walks code's top-level import/export statements and the
// dynamic import() calls reachable from a single-pass js.Walk, collecting
// every module specifier.
//
// Parse failures are not fatal: a file that doesn't parse as JS/TS (e.g. a
// plain .css or .json file routed here by mistake) yields an empty result
// rather than an error, since import extraction is a best-effort aid to
// the planner, not a build-blocking step.
func ExtractImports(code string) ExtractedImports {
	ast, err := js.Parse(parse.NewInputString(code), js.Options{})
	if err != nil {
		return ExtractedImports{}
	}

	seen := map[string]struct{}{}
	var specs []string
	add := func(raw string) {
		spec := unquoteModule(raw)
		if spec == "" {
			return
		}
		if _, ok := seen[spec]; ok {
			return
		}
		seen[spec] = struct{}{}
		specs = append(specs, spec)
	}

	for _, stmt := range ast.BlockStmt.List {
		switch s := stmt.(type) {
		case *js.ImportStmt:
			if s.Module != nil {
				add(string(s.Module))
			}
		case *js.ExportStmt:
			if s.Module != nil {
				add(string(s.Module))
			}
		}
	}

	v := &importCallVisitor{add: add}
	js.Walk(v, ast)

	var imports, npm []string
	for _, spec := range specs {
		if isRelativeOrAbsolute(spec) {
			imports = append(imports, spec)
		} else {
			npm = append(npm, bareModuleRoot(spec))
		}
	}

	return ExtractedImports{Imports: imports, NPMDependencies: dedupe(npm)}
}

// importCallVisitor catches dynamic import("...") calls; everything else
// (static import/export statements) is handled by the top-level scan in
// ExtractImports, which only needs the BlockStmt's direct children.
type importCallVisitor struct {
	add func(string)
}

func (v *importCallVisitor) Enter(n js.INode) js.IVisitor {
	call, ok := n.(*js.CallExpr)
	if !ok {
		return v
	}
	switch callee := call.X.(type) {
	case *js.Var:
		if string(callee.Data) != "import" {
			return v
		}
	case *js.LiteralExpr:
		if callee.TokenType != js.ImportToken {
			return v
		}
	default:
		return v
	}
	if len(call.Args.List) == 0 {
		return v
	}
	lit, ok := call.Args.List[0].Value.(*js.LiteralExpr)
	if !ok || lit.TokenType != js.StringToken {
		return v
	}
	v.add(string(lit.Data))
	return v
}

func (v *importCallVisitor) Exit(n js.INode) {}

func unquoteModule(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		if unquoted, err := strconv.Unquote(normalizeQuotes(s)); err == nil {
			return unquoted
		}
	}
	return strings.Trim(s, `"'`+"`")
}

// normalizeQuotes rewrites a single-quoted or backtick-quoted string into a
// double-quoted one so strconv.Unquote (which only accepts Go/JSON-style
// double quotes, or backticks for raw strings) can decode it uniformly.
func normalizeQuotes(s string) string {
	if len(s) < 2 {
		return s
	}
	quote := s[0]
	if quote == '"' || quote == '`' {
		return s
	}
	if quote == '\'' && s[len(s)-1] == '\'' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		return `"` + inner + `"`
	}
	return s
}

func isRelativeOrAbsolute(spec string) bool {
	return strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") ||
		strings.HasPrefix(spec, "/") || spec == "." || spec == ".."
}

// bareModuleRoot reduces a bare specifier to its package root: scoped
// packages keep their "@scope/name" form, deep imports ("lodash/debounce")
// are trimmed to "lodash".
func bareModuleRoot(spec string) string {
	parts := strings.Split(spec, "/")
	if strings.HasPrefix(spec, "@") && len(parts) >= 2 {
		return parts[0] + "/" + parts[1]
	}
	return parts[0]
}

func dedupe(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
