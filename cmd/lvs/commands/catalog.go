package commands

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/livefir/livespec"
	"github.com/livefir/livespec/cmd/lvs/internal/config"
)

// Catalog handles component catalog commands.
func Catalog(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("command required: list, vet")
	}

	switch args[0] {
	case "list":
		return catalogList(args[1:])
	case "vet":
		return catalogVet(args[1:])
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// catalogList prints the components and computed functions of a manifest.
func catalogList(args []string) error {
	path, err := catalogArg(args)
	if err != nil {
		return err
	}

	cat, err := livespec.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	titler := cases.Title(language.English)

	fmt.Printf("%s (version %s)\n\n", cat.Name, cat.Version)
	fmt.Println("Components:")
	for _, name := range cat.ComponentNames() {
		comp, _ := cat.Component(name)
		title := titler.String(strings.ReplaceAll(name, "-", " "))
		desc := comp.Description
		if desc == "" {
			desc = "(no description)"
		}
		fmt.Printf("  %-20s %s - %s\n", name, title, desc)
		if len(comp.Events) > 0 {
			fmt.Printf("  %-20s events: %s\n", "", strings.Join(comp.Events, ", "))
		}
	}

	if len(cat.Computed) > 0 {
		fmt.Println("\nComputed functions:")
		for _, comp := range cat.Computed {
			fmt.Printf("  %-20s %s\n", comp.Name, comp.Expression)
		}
	}
	return nil
}

// catalogVet checks every element of a spec file against a manifest.
func catalogVet(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("spec file required: lvs catalog vet <spec.json> [manifest.yaml]")
	}

	spec, err := loadSpecFile(args[0])
	if err != nil {
		return err
	}

	path, err := catalogArg(args[1:])
	if err != nil {
		return err
	}
	cat, err := livespec.LoadCatalog(path)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}

	problems := cat.VetSpec(spec)
	if len(problems) == 0 {
		fmt.Printf("%s: %d elements, no problems\n", filepath.Base(args[0]), len(spec.Elements))
		return nil
	}
	for _, p := range problems {
		fmt.Printf("  %v\n", p)
	}
	return fmt.Errorf("%d problems found", len(problems))
}

// catalogArg resolves the manifest path from args or the configured default.
func catalogArg(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	cfg, err := config.LoadConfig()
	if err != nil {
		return "", err
	}
	if cfg.DefaultCatalog == "" {
		return "", fmt.Errorf("no catalog given and no default_catalog configured")
	}
	return cfg.DefaultCatalog, nil
}

// resolveCatalog loads a manifest when path or a configured default names
// one; both absent is not an error, rendering just falls back to divs.
func resolveCatalog(path string) (*livespec.Catalog, error) {
	if path == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, err
		}
		path = cfg.DefaultCatalog
	}
	if path == "" {
		return nil, nil
	}
	cat, err := livespec.LoadCatalog(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	return cat, nil
}
