package resolver

import (
	"testing"

	"github.com/anvildev/anvil/build"
)

func TestExtractImportsSeparatesRelativeAndBare(t *testing.T) {
	code := `
import React from "react";
import { helper } from "./lib/helper";
import "../styles.css";
export { thing } from "@scope/pkg/deep";
`
	got := ExtractImports(code)

	if !contains(got.Imports, "./lib/helper") || !contains(got.Imports, "../styles.css") {
		t.Fatalf("expected relative imports to be captured, got %v", got.Imports)
	}
	if !contains(got.NPMDependencies, "react") || !contains(got.NPMDependencies, "@scope/pkg") {
		t.Fatalf("expected bare specifiers reduced to package roots, got %v", got.NPMDependencies)
	}
}

func TestExtractImportsDynamicImport(t *testing.T) {
	code := `const mod = await import("./dynamic-module");`
	got := ExtractImports(code)
	if !contains(got.Imports, "./dynamic-module") {
		t.Fatalf("expected dynamic import to be captured, got %v", got.Imports)
	}
}

func TestExtractImportsInvalidSyntaxYieldsEmpty(t *testing.T) {
	got := ExtractImports("{ not valid js !!! ")
	if len(got.Imports) != 0 || len(got.NPMDependencies) != 0 {
		t.Fatalf("expected empty result on parse failure, got %+v", got)
	}
}

func TestResolveInFSExtensionLadder(t *testing.T) {
	files := build.VirtualFilesystem{
		"/src/lib.ts": "export const x = 1;",
	}
	resolved, ok := resolveInFS(files, "/src/lib")
	if !ok || resolved != "/src/lib.ts" {
		t.Fatalf("expected ladder match /src/lib.ts, got %q ok=%v", resolved, ok)
	}
}

func TestResolveInFSIndexFallback(t *testing.T) {
	files := build.VirtualFilesystem{
		"/src/components/index.tsx": "export default 1;",
	}
	resolved, ok := resolveInFS(files, "/src/components")
	if !ok || resolved != "/src/components/index.tsx" {
		t.Fatalf("expected index fallback, got %q ok=%v", resolved, ok)
	}
}

func TestResolveInFSNoMatch(t *testing.T) {
	files := build.VirtualFilesystem{"/src/a.ts": ""}
	if _, ok := resolveInFS(files, "/src/missing"); ok {
		t.Fatal("expected no match for missing file")
	}
}

func TestResolveEsmShAbsoluteURLPassthrough(t *testing.T) {
	c := NewCDNPlugin(0, "", 0)
	got, err := c.resolveEsmSh("https://esm.sh/react@18", "https://esm.sh/react@18/es2022/react.mjs")
	if err != nil {
		t.Fatalf("resolveEsmSh: %v", err)
	}
	if got != "https://esm.sh/react@18" {
		t.Fatalf("expected passthrough, got %q", got)
	}
}

func TestResolveEsmShVersionedSegmentRootsAtCDN(t *testing.T) {
	c := NewCDNPlugin(0, "", 0)
	got, err := c.resolveEsmSh("/react@18/es2022/react.mjs", "https://esm.sh/react@18")
	if err != nil {
		t.Fatalf("resolveEsmSh: %v", err)
	}
	if got != CDN+"/react@18/es2022/react.mjs" {
		t.Fatalf("expected CDN-rooted path, got %q", got)
	}
}

func TestResolveEsmShRelativeResolvesAgainstImporter(t *testing.T) {
	c := NewCDNPlugin(0, "", 0)
	got, err := c.resolveEsmSh("./scheduler.mjs", "https://esm.sh/react@18/es2022/react.mjs")
	if err != nil {
		t.Fatalf("resolveEsmSh: %v", err)
	}
	if got != "https://esm.sh/react@18/es2022/scheduler.mjs" {
		t.Fatalf("expected relative resolution, got %q", got)
	}
}

func TestRewriteRelativeImports(t *testing.T) {
	code := `import { x } from "/react@18/es2022/react.mjs";`
	got := rewriteRelativeImports(code, "https://esm.sh/react@18/es2022/react.mjs")
	want := `import { x } from "https://esm.sh/react@18/es2022/react.mjs";`
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
