package resolver

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	esbuild "github.com/evanw/esbuild/pkg/api"
	"golang.org/x/sync/singleflight"

	"github.com/anvildev/anvil/kit/typed"
)

// CDN is the default bare-specifier resolution target, used when
// NewCDNPlugin is given an empty baseURL (config.Config's
// ANVIL_CDN_BASE_URL override).
const CDN = "https://esm.sh"

// defaultMaxFetchAttempts is used when NewCDNPlugin is given a
// non-positive maxRetries (config.Config's ANVIL_HTTP_MAX_RETRIES
// override counts retries, not attempts, so the default of 3 retries
// becomes 4 total attempts here).
const defaultMaxFetchAttempts = 4

const esmShNamespace = "esm-sh"

const userAgent = "anvil-build-engine/1.0 (+https://github.com/anvildev/anvil)"

// fromImportRe catches CDN-internal navigation of the form
// `from "/..."` so the target can be rewritten to an absolute URL.
var fromImportRe = regexp.MustCompile(`from\s+["'](/(?:\.\./)*[^"']+)["']`)

var esmShPathRe = regexp.MustCompile(`/@?[^/@]+@`)

// CDNPlugin resolves bare specifiers against esm.sh and fetches their
// bodies. Concurrent requests for the same URL collapse onto one in-flight
// fetch via singleflight.Group; the resolved-body cache itself is a
// typed.SyncMap, so reads never block on the rarer concurrent write.
type CDNPlugin struct {
	client      *http.Client
	baseURL     string
	maxAttempts int
	sf          singleflight.Group

	cache typed.SyncMap[string, fetchedModule] // keyed by both requested and final URL
}

type fetchedModule struct {
	code string
	err  error
}

// NewCDNPlugin returns a plugin with an HTTP client bound to timeout,
// resolving bare specifiers against baseURL (falling back to CDN when
// empty) and retrying failed fetches up to maxRetries times (falling back
// to defaultMaxFetchAttempts-1 retries when non-positive) — both threaded
// through from config.Config's CDNBaseURL/HTTPMaxRetries.
func NewCDNPlugin(timeout time.Duration, baseURL string, maxRetries int) *CDNPlugin {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = CDN
	}
	maxAttempts := maxRetries + 1
	if maxRetries <= 0 {
		maxAttempts = defaultMaxFetchAttempts
	}
	return &CDNPlugin{
		client:      &http.Client{Timeout: timeout},
		baseURL:     baseURL,
		maxAttempts: maxAttempts,
	}
}

func (c *CDNPlugin) Plugin() esbuild.Plugin {
	return esbuild.Plugin{
		Name: "esm-sh",
		Setup: func(build esbuild.PluginBuild) {
			build.OnResolve(esbuild.OnResolveOptions{Filter: `^[^./]`},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					if args.Namespace == esmShNamespace && (strings.HasPrefix(args.Path, "http://") || strings.HasPrefix(args.Path, "https://")) {
						return esbuild.OnResolveResult{}, nil
					}
					return esbuild.OnResolveResult{
						Path:      c.baseURL + "/" + args.Path,
						Namespace: esmShNamespace,
					}, nil
				})

			build.OnResolve(esbuild.OnResolveOptions{Filter: `.*`, Namespace: esmShNamespace},
				func(args esbuild.OnResolveArgs) (esbuild.OnResolveResult, error) {
					resolved, err := c.resolveEsmSh(args.Path, args.Importer)
					if err != nil {
						return esbuild.OnResolveResult{}, err
					}
					return esbuild.OnResolveResult{Path: resolved, Namespace: esmShNamespace}, nil
				})

			build.OnLoad(esbuild.OnLoadOptions{Filter: `.*`, Namespace: esmShNamespace},
				func(args esbuild.OnLoadArgs) (esbuild.OnLoadResult, error) {
					code, err := c.load(args.Path)
					if err != nil {
						return esbuild.OnLoadResult{}, fmt.Errorf("esm.sh: %s: %w", args.Path, err)
					}
					loader := esbuild.LoaderJS
					return esbuild.OnLoadResult{Contents: &code, Loader: loader}, nil
				})
		},
	}
}

// resolveEsmSh resolves a path already inside the esm-sh namespace: a path
// starting with "/" or matching a versioned-package segment or containing
// "/es2022/" is rooted at the CDN origin; an absolute http(s) URL passes
// through; anything else resolves relative to the importer URL.
func (c *CDNPlugin) resolveEsmSh(p, importer string) (string, error) {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p, nil
	}
	if strings.HasPrefix(p, "/") || esmShPathRe.MatchString(p) || strings.Contains(p, "/es2022/") {
		return c.baseURL + p, nil
	}

	base, err := url.Parse(importer)
	if err != nil {
		return "", fmt.Errorf("cannot parse importer URL %q: %w", importer, err)
	}
	rel, err := url.Parse(p)
	if err != nil {
		return "", fmt.Errorf("cannot parse relative specifier %q: %w", p, err)
	}
	return base.ResolveReference(rel).String(), nil
}

func (c *CDNPlugin) load(requestURL string) (string, error) {
	if cached, ok := c.cache.Load(requestURL); ok {
		return cached.code, cached.err
	}

	v, err, _ := c.sf.Do(requestURL, func() (any, error) {
		code, finalURL, ferr := c.fetchWithRetry(requestURL)
		if ferr != nil {
			c.cache.Store(requestURL, fetchedModule{err: ferr})
			return "", ferr
		}

		rewritten := rewriteRelativeImports(code, finalURL)

		c.cache.Store(requestURL, fetchedModule{code: rewritten})
		c.cache.Store(finalURL, fetchedModule{code: rewritten})

		return rewritten, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// fetchWithRetry performs an exponential-backoff-with-jitter retry loop,
// honoring Retry-After on 429 responses, up to c.maxAttempts tries.
func (c *CDNPlugin) fetchWithRetry(requestURL string) (code string, finalURL string, err error) {
	var lastErr error
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(backoffDelay(attempt))
		}

		req, reqErr := http.NewRequestWithContext(context.Background(), http.MethodGet, requestURL, nil)
		if reqErr != nil {
			return "", "", reqErr
		}
		req.Header.Set("User-Agent", userAgent)

		resp, doErr := c.client.Do(req)
		if doErr != nil {
			lastErr = doErr
			continue
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := retryAfterDelay(resp.Header.Get("Retry-After"), attempt)
			resp.Body.Close()
			time.Sleep(delay)
			lastErr = fmt.Errorf("esm.sh rate-limited %s", requestURL)
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return "", "", fmt.Errorf("esm.sh returned %d for %s: %s", resp.StatusCode, requestURL, truncate(string(body), 200))
		}

		body, readErr := io.ReadAll(resp.Body)
		resolvedURL := resp.Request.URL.String()
		resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		return string(body), resolvedURL, nil
	}

	return "", "", fmt.Errorf("esm.sh fetch exhausted retries for %s: %w", requestURL, lastErr)
}

func backoffDelay(attempt int) time.Duration {
	base := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
	jitter := time.Duration(rand.Int64N(int64(50 * time.Millisecond)))
	return base + jitter
}

func retryAfterDelay(header string, attempt int) time.Duration {
	if header != "" {
		if secs, err := strconv.Atoi(header); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return backoffDelay(attempt + 1)
}

// rewriteRelativeImports replaces each `from "/..."` import target with an
// absolute URL resolved against finalURL (the post-redirect response URL),
// so the bundler sees concrete CDN URLs in subsequent resolves.
func rewriteRelativeImports(code, finalURL string) string {
	base, err := url.Parse(finalURL)
	if err != nil {
		return code
	}
	return fromImportRe.ReplaceAllStringFunc(code, func(match string) string {
		groups := fromImportRe.FindStringSubmatch(match)
		if len(groups) < 2 {
			return match
		}
		rel, err := url.Parse(groups[1])
		if err != nil {
			return match
		}
		resolved := base.ResolveReference(rel).String()
		return `from "` + resolved + `"`
	})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
