package orchestrator

import (
	"fmt"
	"strings"

	"github.com/anvildev/anvil/build"
)

// bootstrapFamily names the stub generator chosen for a project shape.
type bootstrapFamily string

const (
	bootstrapVanilla   bootstrapFamily = "vanilla"
	bootstrapReactLike bootstrapFamily = "react-like"
	bootstrapVue       bootstrapFamily = "vue"
)

// detectBootstrapFamily inspects the project shape — the entry extension
// and whether any .vue sources are present — to pick a stub family. A
// coarse heuristic, intentionally simple and stable, not a
// framework-detection engine.
func detectBootstrapFamily(files build.VirtualFilesystem, entry string) bootstrapFamily {
	for path := range files {
		if strings.HasSuffix(path, ".vue") {
			return bootstrapVue
		}
	}
	if strings.HasSuffix(entry, ".tsx") || strings.HasSuffix(entry, ".jsx") {
		return bootstrapReactLike
	}
	return bootstrapVanilla
}

// assembleBootstrap returns the synthetic stub source fed to esbuild as
// stdin: it imports the user's entry module and mounts it, in a form
// specific to the detected family.
func assembleBootstrap(family bootstrapFamily, entry string) string {
	switch family {
	case bootstrapVue:
		return fmt.Sprintf(`import { createApp } from "vue";
import App from %q;
const __root = document.getElementById("root") || document.body;
createApp(App).mount(__root);
`, entry)
	case bootstrapReactLike:
		return fmt.Sprintf(`import { createRoot } from "react-dom/client";
import App from %q;
const __root = document.getElementById("root") || document.body;
createRoot(__root).render(App.default ? App.default() : App());
`, entry)
	default:
		return fmt.Sprintf(`import %q;
`, entry)
	}
}
