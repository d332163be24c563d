package commands

import (
	"fmt"

	"github.com/livefir/livespec/cmd/lvs/internal/config"
)

// Config handles configuration management commands
func Config(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("command required: get, set, list, add-catalog-path, remove-catalog-path, validate")
	}

	switch args[0] {
	case "get":
		return configGet(args[1:])
	case "set":
		return configSet(args[1:])
	case "list":
		return configList()
	case "add-catalog-path":
		return configAddCatalogPath(args[1:])
	case "remove-catalog-path":
		return configRemoveCatalogPath(args[1:])
	case "validate":
		return configValidate()
	default:
		return fmt.Errorf("unknown command: %s", args[0])
	}
}

// configGet retrieves a configuration value
func configGet(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("key required: lvs config get <key>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "default_catalog":
		printOrNone(cfg.DefaultCatalog)
	case "journal_path":
		printOrNone(cfg.JournalPath)
	case "catalog_paths":
		if len(cfg.CatalogPaths) == 0 {
			fmt.Println("(none)")
		} else {
			for _, path := range cfg.CatalogPaths {
				fmt.Println(path)
			}
		}
	default:
		return fmt.Errorf("unknown key: %s (expected: default_catalog, journal_path, catalog_paths)", args[0])
	}

	return nil
}

// configSet sets a configuration value
func configSet(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("key and value required: lvs config set <key> <value>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	switch args[0] {
	case "default_catalog":
		cfg.DefaultCatalog = args[1]
	case "journal_path":
		cfg.JournalPath = args[1]
	default:
		return fmt.Errorf("unknown key: %s (expected: default_catalog, journal_path)", args[0])
	}

	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("%s set to %s\n", args[0], args[1])
	return nil
}

// configList shows the full configuration
func configList() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	configPath, err := config.GetConfigPath()
	if err != nil {
		return err
	}

	fmt.Printf("Configuration file: %s\n\n", configPath)
	fmt.Printf("default_catalog: %s\n", orNoneValue(cfg.DefaultCatalog))
	fmt.Printf("journal_path:    %s\n", orNoneValue(cfg.JournalPath))
	fmt.Println("catalog_paths:")
	if len(cfg.CatalogPaths) == 0 {
		fmt.Println("  (none)")
	} else {
		for _, path := range cfg.CatalogPaths {
			fmt.Printf("  %s\n", path)
		}
	}
	return nil
}

func configAddCatalogPath(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("path required: lvs config add-catalog-path <path>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.AddCatalogPath(args[0]); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("added catalog path: %s\n", args[0])
	return nil
}

func configRemoveCatalogPath(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("path required: lvs config remove-catalog-path <path>")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.RemoveCatalogPath(args[0]); err != nil {
		return err
	}
	if err := config.SaveConfig(cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("removed catalog path: %s\n", args[0])
	return nil
}

func configValidate() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Println("configuration is valid")
	return nil
}

func printOrNone(v string) {
	fmt.Println(orNoneValue(v))
}

func orNoneValue(v string) string {
	if v == "" {
		return "(none)"
	}
	return v
}
