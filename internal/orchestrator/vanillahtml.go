package orchestrator

import (
	"fmt"
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/anvildev/anvil/build"
)

// buildVanillaHTML handles HTML-entry projects: CSS and JS referenced from
// the HTML are inlined into a single document, no worker call is made. The
// whole document is restructured, so this walks the parsed *html.Node tree
// rather than the raw tokenizer scan internal/compilers/vue.go uses for SFC
// block extraction.
func buildVanillaHTML(files build.VirtualFilesystem, entry string) (build.BuildOutput, error) {
	source, ok := files[entry]
	if !ok {
		return build.BuildOutput{}, fmt.Errorf("orchestrator: entry %q not found", entry)
	}

	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return build.BuildOutput{}, fmt.Errorf("orchestrator: parse %q: %w", entry, err)
	}

	var diagnostics []build.Diagnostic
	inlineReferencedAssets(doc, files, path.Dir(entry), &diagnostics)

	var out strings.Builder
	if err := html.Render(&out, doc); err != nil {
		return build.BuildOutput{}, fmt.Errorf("orchestrator: render %q: %w", entry, err)
	}

	return build.BuildOutput{
		Code:   out.String(),
		Errors: diagnostics,
	}, nil
}

func inlineReferencedAssets(n *html.Node, files build.VirtualFilesystem, entryDir string, diagnostics *[]build.Diagnostic) {
	if n.Type == html.ElementNode {
		switch n.DataAtom {
		case atom.Script:
			if src, ok := attr(n, "src"); ok {
				content, found := resolveAsset(files, entryDir, src)
				if !found {
					*diagnostics = append(*diagnostics, build.Diagnostic{Message: "script source not found: " + src})
				} else {
					removeAttr(n, "src")
					n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
				}
			}
		case atom.Link:
			if rel, _ := attr(n, "rel"); rel == "stylesheet" {
				if href, ok := attr(n, "href"); ok {
					content, found := resolveAsset(files, entryDir, href)
					if !found {
						*diagnostics = append(*diagnostics, build.Diagnostic{Message: "stylesheet not found: " + href})
					} else {
						n.Data = "style"
						n.DataAtom = atom.Style
						n.Attr = nil
						n.AppendChild(&html.Node{Type: html.TextNode, Data: content})
					}
				}
			}
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		inlineReferencedAssets(c, files, entryDir, diagnostics)
	}
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func removeAttr(n *html.Node, key string) {
	out := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Key != key {
			out = append(out, a)
		}
	}
	n.Attr = out
}

func resolveAsset(files build.VirtualFilesystem, entryDir, ref string) (string, bool) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return "", false
	}
	path := ref
	if !strings.HasPrefix(path, "/") {
		path = strings.TrimSuffix(entryDir, "/") + "/" + path
	}
	content, ok := files[path]
	return content, ok
}
