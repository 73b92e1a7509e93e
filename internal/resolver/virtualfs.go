package resolver

import (
	"fmt"
	"path"
	"strings"

	esbuild "github.com/evanw/esbuild/pkg/api"

	"github.com/anvildev/anvil/build"
)

const virtualNamespace = "virtual"

// extensionLadder is tried, in order, against a resolution candidate that
// has no extension of its own.
var extensionLadder = []string{".tsx", ".ts", ".jsx", ".js", ".mjs", ".json"}

// VirtualFSPlugin resolves `@/...` aliases and relative/absolute paths
// against an in-memory VirtualFilesystem via OnResolve+OnLoad pairs. The
// alias rule rewrites `@/` to `/src/`; everything lands in the "virtual"
// namespace so esbuild never consults the real filesystem.
func VirtualFSPlugin(files build.VirtualFilesystem) esbuild.Plugin {
	return esbuild.Plugin{
		Name: "virtual-fs",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: `^@/`},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if args.Namespace == esmShNamespace {
						return esbuild.OnResolveResult{}, nil
					}
					rewritten := "/src/" + strings.TrimPrefix(args.Path, "@/")
					resolved, ok := resolveInFS(files, rewritten)
					if !ok {
						return esbuild.OnResolveResult{}, fmt.Errorf("cannot resolve alias %q", args.Path)
					}
					return esbuild.OnResolveResult{Path: resolved, Namespace: virtualNamespace}, nil
				})

			build.OnResolve(esbuild.OnResolveOptions{Filter: `^\.\.?/`},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if args.Namespace == esmShNamespace {
						return esbuild.OnResolveResult{}, nil
					}
					dir := path.Dir(args.Importer)
					candidate := path.Join(dir, args.Path)
					resolved, ok := resolveInFS(files, candidate)
					if !ok {
						return esbuild.OnResolveResult{}, fmt.Errorf("cannot resolve %q from %q", args.Path, args.Importer)
					}
					return esbuild.OnResolveResult{Path: resolved, Namespace: virtualNamespace}, nil
				})

			// No namespace restriction: the synthetic stdin bootstrap imports
			// the entry by absolute path, and stdin sits outside the virtual
			// namespace.
			build.OnResolve(esbuild.OnResolveOptions{Filter: `^/`},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if args.Namespace == esmShNamespace {
						return esbuild.OnResolveResult{}, nil
					}
					resolved, ok := resolveInFS(files, args.Path)
					if !ok {
						return esbuild.OnResolveResult{}, fmt.Errorf("cannot resolve %q", args.Path)
					}
					return esbuild.OnResolveResult{Path: resolved, Namespace: virtualNamespace}, nil
				})

			build.OnLoad(esbuild.OnLoadOptions{Filter: `.*`, Namespace: virtualNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					content, ok := files[args.Path]
					if !ok {
						return esbuild.OnLoadResult{}, fmt.Errorf("virtual file %q vanished between resolve and load", args.Path)
					}
					loader := loaderForPath(args.Path)
					return esbuild.OnLoadResult{Contents: &content, Loader: loader}, nil
				})
		},
	}
}

// resolveInFS tries candidate as-is, then with each ladder extension
// appended, then with "/index" plus each ladder extension. First match
// wins.
func resolveInFS(files build.VirtualFilesystem, candidate string) (string, bool) {
	candidate = path.Clean(candidate)
	if !strings.HasPrefix(candidate, "/") {
		candidate = "/" + candidate
	}

	if _, ok := files[candidate]; ok {
		return candidate, true
	}
	for _, ext := range extensionLadder {
		if _, ok := files[candidate+ext]; ok {
			return candidate + ext, true
		}
	}
	indexBase := strings.TrimSuffix(candidate, "/") + "/index"
	for _, ext := range extensionLadder {
		if _, ok := files[indexBase+ext]; ok {
			return indexBase + ext, true
		}
	}
	return "", false
}

// loaderForPath chooses an esbuild loader from a path's extension.
func loaderForPath(p string) esbuild.Loader {
	ext := strings.ToLower(path.Ext(p))
	switch ext {
	case ".ts":
		return esbuild.LoaderTS
	case ".tsx":
		return esbuild.LoaderTSX
	case ".jsx":
		return esbuild.LoaderJSX
	case ".js", ".mjs":
		return esbuild.LoaderJS
	case ".css":
		return esbuild.LoaderCSS
	case ".json":
		return esbuild.LoaderJSON
	case ".svg":
		return esbuild.LoaderText
	case ".png", ".jpg", ".jpeg", ".gif", ".webp", ".avif", ".ico":
		return esbuild.LoaderDataURL
	default:
		return esbuild.LoaderText
	}
}

// ResolveImportPath resolves an import specifier observed in importer
// against the virtual filesystem: `@/` aliases, relative paths, and
// absolute paths all go through the same extension ladder the bundler
// plugin uses. Bare specifiers report false — they resolve through the CDN,
// not the filesystem.
func ResolveImportPath(files build.VirtualFilesystem, importer, spec string) (string, bool) {
	switch {
	case strings.HasPrefix(spec, "@/"):
		return resolveInFS(files, "/src/"+strings.TrimPrefix(spec, "@/"))
	case strings.HasPrefix(spec, "./") || strings.HasPrefix(spec, "../") || spec == "." || spec == "..":
		return resolveInFS(files, path.Join(path.Dir(importer), spec))
	case strings.HasPrefix(spec, "/"):
		return resolveInFS(files, spec)
	}
	return "", false
}
