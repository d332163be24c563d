package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/livefir/livespec"
)

// Render renders a spec file to HTML on stdout.
func Render(args []string) error {
	fs := flag.NewFlagSet("render", flag.ContinueOnError)
	catalogPath := fs.String("catalog", "", "component catalog manifest (yaml)")
	statePath := fs.String("state", "", "initial state file (json)")
	outPath := fs.String("out", "", "write HTML to file instead of stdout")
	minify := fs.Bool("minify", false, "minify the HTML output")
	asJSON := fs.Bool("json", false, "emit the rendered element tree as JSON instead of HTML")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("spec file required: lvs render [flags] <spec.json>")
	}

	spec, err := loadSpecFile(fs.Arg(0))
	if err != nil {
		return err
	}

	state := spec.State
	if *statePath != "" {
		data, err := os.ReadFile(*statePath)
		if err != nil {
			return fmt.Errorf("failed to read state file: %w", err)
		}
		if err := json.Unmarshal(data, &state); err != nil {
			return fmt.Errorf("failed to parse state file: %w", err)
		}
	}

	catalog, err := resolveCatalog(*catalogPath)
	if err != nil {
		return err
	}

	store := livespec.NewMemoryStore(state)
	computed := livespec.NewComputedRegistry()
	if catalog != nil {
		if err := catalog.RegisterComputed(computed); err != nil {
			return fmt.Errorf("failed to register catalog computed: %w", err)
		}
	}

	if *asJSON {
		renderer := livespec.NewRenderer(livespec.RendererConfig{
			State:    store,
			Computed: computed,
		})
		tree, err := renderer.Render(spec, false)
		if err != nil {
			return fmt.Errorf("render failed: %w", err)
		}
		data, err := json.MarshalIndent(tree, "", "  ")
		if err != nil {
			return err
		}
		return writeOutput(*outPath, append(data, '\n'))
	}

	var htmlOpts []livespec.HTMLOption
	if *minify {
		htmlOpts = append(htmlOpts, livespec.WithMinify())
	}
	html := livespec.NewHTMLRenderer(catalog, htmlOpts...)
	renderer := livespec.NewRenderer(livespec.RendererConfig{
		State:    store,
		Computed: computed,
		Registry: html.Registry(),
	})

	doc, err := html.RenderDocument(renderer, spec)
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return writeOutput(*outPath, []byte(doc+"\n"))
}

// loadSpecFile reads a spec payload (flat or nested) from a JSON file.
func loadSpecFile(path string) (*livespec.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spec file: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("failed to parse spec file: %w", err)
	}
	spec, changed := livespec.ApplyUpdate(livespec.NewSpec(), payload)
	if !changed {
		return nil, fmt.Errorf("spec file %s holds no recognizable spec payload", path)
	}
	if !spec.Renderable() {
		return nil, fmt.Errorf("spec in %s is not renderable: root %q missing from elements", path, spec.Root)
	}
	return spec, nil
}

func writeOutput(path string, data []byte) error {
	if path == "" {
		_, err := os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}
