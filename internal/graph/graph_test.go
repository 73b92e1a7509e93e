package graph

import "testing"

func TestAddFileCreatesBidirectionalEdges(t *testing.T) {
	g := New()
	g.AddFile("/src/main.ts", "import './lib'", []string{"/src/lib.ts"}, nil)

	main := g.Node("/src/main.ts")
	if main == nil {
		t.Fatal("expected main node to exist")
	}
	if _, ok := main.Imports["/src/lib.ts"]; !ok {
		t.Fatal("expected main to import lib")
	}

	lib := g.Node("/src/lib.ts")
	if lib == nil {
		t.Fatal("expected placeholder lib node to exist")
	}
	if _, ok := lib.ImportedBy["/src/main.ts"]; !ok {
		t.Fatal("expected lib.importedBy to contain main")
	}
	if lib.ContentHash != "" {
		t.Fatal("expected placeholder node to have empty content hash")
	}
}

func TestAddFileDiffsObsoleteImports(t *testing.T) {
	g := New()
	g.AddFile("/src/main.ts", "a", []string{"/src/a.ts", "/src/b.ts"}, nil)
	g.AddFile("/src/main.ts", "b", []string{"/src/b.ts"}, nil)

	a := g.Node("/src/a.ts")
	if _, ok := a.ImportedBy["/src/main.ts"]; ok {
		t.Fatal("expected obsolete reverse edge to main to be removed")
	}

	b := g.Node("/src/b.ts")
	if _, ok := b.ImportedBy["/src/main.ts"]; !ok {
		t.Fatal("expected b to still be imported by main")
	}
}

func TestRemoveFileClearsIncidentEdges(t *testing.T) {
	g := New()
	g.AddFile("/src/main.ts", "a", []string{"/src/lib.ts"}, nil)
	g.RemoveFile("/src/main.ts")

	if g.Node("/src/main.ts") != nil {
		t.Fatal("expected main node to be removed")
	}
	lib := g.Node("/src/lib.ts")
	if lib == nil {
		t.Fatal("expected lib placeholder to remain")
	}
	if _, ok := lib.ImportedBy["/src/main.ts"]; ok {
		t.Fatal("expected main to be removed from lib.importedBy")
	}
}

func TestHasFileChanged(t *testing.T) {
	g := New()
	if !g.HasFileChanged("/src/new.ts", "content") {
		t.Fatal("expected unknown file to report changed")
	}
	g.AddFile("/src/new.ts", "content", nil, nil)
	if g.HasFileChanged("/src/new.ts", "content") {
		t.Fatal("expected identical content to report unchanged")
	}
	if !g.HasFileChanged("/src/new.ts", "different") {
		t.Fatal("expected different content to report changed")
	}
}

func TestGetAffectedFilesTerminatesOnCycles(t *testing.T) {
	g := New()
	g.AddFile("/src/a.ts", "a", []string{"/src/b.ts"}, nil)
	g.AddFile("/src/b.ts", "b", []string{"/src/a.ts"}, nil)

	affected := g.GetAffectedFiles("/src/a.ts")
	if _, ok := affected["/src/a.ts"]; !ok {
		t.Fatal("expected seed to be in affected set")
	}
	if _, ok := affected["/src/b.ts"]; !ok {
		t.Fatal("expected cyclic dependent to be in affected set")
	}
	if len(affected) != 2 {
		t.Fatalf("expected exactly 2 affected files, got %d", len(affected))
	}
}

func TestGetAffectedFilesForChangesUnion(t *testing.T) {
	g := New()
	g.AddFile("/src/a.ts", "a", nil, nil)
	g.AddFile("/src/b.ts", "b", []string{"/src/a.ts"}, nil)
	g.AddFile("/src/c.ts", "c", nil, nil)

	affected := g.GetAffectedFilesForChanges([]string{"/src/a.ts", "/src/c.ts"})
	for _, want := range []string{"/src/a.ts", "/src/b.ts", "/src/c.ts"} {
		if _, ok := affected[want]; !ok {
			t.Fatalf("expected %s in affected union", want)
		}
	}
}

func TestHasNpmDependenciesChanged(t *testing.T) {
	g := New()
	g.AddFile("/src/main.ts", "a", nil, []string{"react", "lodash"})

	if g.HasNpmDependenciesChanged(map[string]struct{}{"react": {}, "lodash": {}}) {
		t.Fatal("expected identical npm set to report unchanged")
	}
	if !g.HasNpmDependenciesChanged(map[string]struct{}{"react": {}}) {
		t.Fatal("expected smaller npm set to report changed")
	}
	if !g.HasNpmDependenciesChanged(map[string]struct{}{"react": {}, "vue": {}}) {
		t.Fatal("expected different membership to report changed")
	}
}

func TestSerializeDeserializeRoundTrip(t *testing.T) {
	g := New()
	g.AddFile("/src/a.ts", "a", []string{"/src/b.ts"}, []string{"react"})

	snap := g.Serialize()
	g2 := Deserialize(snap)

	a := g2.Node("/src/a.ts")
	if a == nil {
		t.Fatal("expected node to survive round trip")
	}
	if _, ok := a.Imports["/src/b.ts"]; !ok {
		t.Fatal("expected import edge to survive round trip")
	}
	if _, ok := a.NPMDependencies["react"]; !ok {
		t.Fatal("expected npm dependency to survive round trip")
	}
}

func TestDeserializeVersionMismatchYieldsEmptyGraph(t *testing.T) {
	snap := Snapshot{Version: version + 1, Nodes: map[string]NodeSnapshot{
		"/src/a.ts": {Path: "/src/a.ts"},
	}}
	g := Deserialize(snap)
	if n, _ := g.Size(); n != 0 {
		t.Fatalf("expected empty graph on version mismatch, got %d nodes", n)
	}
}
