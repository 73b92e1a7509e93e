// Command anvildev is a demo driver for the engine: it watches a real
// on-disk directory, feeds every change into an Engine as a
// VirtualFilesystem edit, and broadcasts each build result to connected
// browser tabs over a websocket. It exercises the Incremental Planner the
// way a browser's editor keystrokes would, without a browser in the loop.
// None of this is part of the core engine — it is a stand-in for the outer
// plumbing a real embedding app would supply.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/anvildev/anvil/anvil"
	"github.com/anvildev/anvil/internal/config"
	"github.com/anvildev/anvil/internal/devharness"
	"github.com/anvildev/anvil/kit/genericsutil"
)

func main() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("anvildev: .env not loaded: %v", err)
	}

	root := "."
	if len(os.Args) > 1 {
		root = os.Args[1]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		log.Fatalf("anvildev: resolving watch root: %v", err)
	}

	port := genericsutil.OrDefault(os.Getenv("ANVIL_DEV_PORT"), "4173")

	graph, err := devharness.LoadGraph(devharness.DefaultCacheDir)
	if err != nil {
		log.Fatalf("anvildev: loading persisted graph: %v", err)
	}

	cfg := config.FromEnv()
	engine := anvil.New(cfg, anvil.WithGraph(graph))

	broadcaster := devharness.NewBroadcaster()
	defer broadcaster.Close()

	files, entry, err := loadTree(root)
	if err != nil {
		log.Fatalf("anvildev: loading %s: %v", root, err)
	}

	build := func() {
		broadcaster.BroadcastRebuilding()
		out := engine.Build(anvil.BuildOptions{Files: files, Entry: entry, Mode: anvil.ModeDevelopment})
		broadcaster.BroadcastBuild(out)
		printProgress(out)
	}
	build()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		log.Fatalf("anvildev: creating watcher: %v", err)
	}
	defer watcher.Close()
	if err := addRecursive(watcher, root); err != nil {
		log.Fatalf("anvildev: watching %s: %v", root, err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/__anvil_ws", broadcaster.Handler())
	srv := &http.Server{Addr: ":" + port, Handler: mux}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Printf("anvildev: websocket endpoint on :%s/__anvil_ws", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("anvildev: server error: %v", err)
		}
	}()

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				path := toVirtualPath(root, ev.Name)
				content, err := os.ReadFile(ev.Name)
				if err != nil {
					continue
				}
				files[path] = string(content)
				build()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("anvildev: watch error: %v", err)
			case <-ctx.Done():
				return
			}
		}
	}()

	<-ctx.Done()
	log.Println("anvildev: shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("anvildev: server shutdown: %v", err)
	}

	if err := devharness.SaveGraph(devharness.DefaultCacheDir, engine.Graph()); err != nil {
		log.Printf("anvildev: saving graph snapshot: %v", err)
	}
}

func loadTree(root string) (anvil.VirtualFilesystem, string, error) {
	files := anvil.VirtualFilesystem{}
	var entry string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" || info.Name() == ".anvil" || info.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		vpath := toVirtualPath(root, path)
		files[vpath] = string(content)
		if entry == "" && isEntryCandidate(vpath) {
			entry = vpath
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	if entry == "" {
		return nil, "", fmt.Errorf("no entry candidate (index.html/main.ts/main.tsx) found under %s", root)
	}
	return files, entry, nil
}

func isEntryCandidate(vpath string) bool {
	base := filepath.Base(vpath)
	switch base {
	case "index.html", "main.ts", "main.tsx", "main.jsx", "index.ts", "index.tsx":
		return true
	}
	return false
}

func toVirtualPath(root, abs string) string {
	rel, err := filepath.Rel(root, abs)
	if err != nil {
		rel = abs
	}
	return "/" + filepath.ToSlash(rel)
}

func addRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" || info.Name() == ".anvil" || info.Name() == ".git" {
				return filepath.SkipDir
			}
			return w.Add(path)
		}
		return nil
	})
}

func printProgress(out anvil.BuildOutput) {
	width := 60
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
			width = w
		}
	}

	status := "ok"
	if len(out.Errors) > 0 {
		status = fmt.Sprintf("%d error(s)", len(out.Errors))
	}
	line := fmt.Sprintf("build %s in %dms — %s", status, out.BuildTimeMs, out.Hash)
	if len(line) > width {
		line = line[:width]
	}
	fmt.Println(strings.TrimRight(line, " "))
}
