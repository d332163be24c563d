package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"github.com/livefir/livespec/cmd/lvs/commands"
)

// Version information (can be overridden at build time with -ldflags)
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error

	switch command {
	case "render":
		err = commands.Render(args)
	case "replay":
		err = commands.Replay(args)
	case "serve":
		err = commands.Serve(args)
	case "catalog":
		err = commands.Catalog(args)
	case "config":
		err = commands.Config(args)
	case "version", "--version", "-v":
		printVersion()
		return
	case "help", "--help", "-h":
		printUsage()
		return
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printVersion() {
	fmt.Printf("lvs version %s\n", version)

	if info, ok := debug.ReadBuildInfo(); ok {
		var vcsRevision, vcsTime, vcsModified string
		for _, setting := range info.Settings {
			switch setting.Key {
			case "vcs.revision":
				vcsRevision = setting.Value
			case "vcs.time":
				vcsTime = setting.Value
			case "vcs.modified":
				vcsModified = setting.Value
			}
		}

		if commit != "unknown" {
			fmt.Printf("commit: %s\n", commit)
		} else if vcsRevision != "" {
			if len(vcsRevision) > 12 {
				vcsRevision = vcsRevision[:12]
			}
			fmt.Printf("commit: %s\n", vcsRevision)
		}

		if date != "unknown" {
			fmt.Printf("built: %s\n", date)
		} else if vcsTime != "" {
			if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
				fmt.Printf("commit date: %s\n", t.Format("2006-01-02 15:04:05 MST"))
			}
		}

		if vcsModified == "true" {
			fmt.Printf("modified: true (uncommitted changes)\n")
		}

		fmt.Printf("go: %s\n", info.GoVersion)
	}
}

func printUsage() {
	fmt.Println("Livespec CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  lvs render <spec.json>                    Render a spec file to HTML")
	fmt.Println("  lvs replay <stream.ndjson>                Fold a patch stream and report stats")
	fmt.Println("  lvs serve <spec.json>                     Serve a spec over HTTP/WebSocket")
	fmt.Println("  lvs catalog <command>                     Inspect component catalogs")
	fmt.Println("  lvs config <command>                      Manage CLI configuration")
	fmt.Println("  lvs version                               Show version information")
	fmt.Println()
	fmt.Println("Render Examples:")
	fmt.Println("  lvs render ui.json")
	fmt.Println("  lvs render ui.json --catalog core.yaml --minify")
	fmt.Println("  lvs render ui.json --state state.json --json")
	fmt.Println()
	fmt.Println("Replay Examples:")
	fmt.Println("  lvs replay stream.ndjson                  Fold an NDJSON file, print the result")
	fmt.Println("  lvs replay stream.ndjson --tui            Step through it interactively")
	fmt.Println("  lvs replay --journal app.db               List recorded streams")
	fmt.Println("  lvs replay --journal app.db --stream <id> Replay one recorded stream")
	fmt.Println()
	fmt.Println("Serve Examples:")
	fmt.Println("  lvs serve ui.json")
	fmt.Println("  lvs serve ui.json --addr :3000 --catalog core.yaml --journal app.db")
	fmt.Println()
	fmt.Println("Catalog Commands:")
	fmt.Println("  lvs catalog list [manifest.yaml]          List components and computed functions")
	fmt.Println("  lvs catalog vet <spec.json> [manifest]    Check a spec against a catalog")
	fmt.Println()
	fmt.Println("Config Commands:")
	fmt.Println("  lvs config list                           Show the full configuration")
	fmt.Println("  lvs config get <key>                      Show one value")
	fmt.Println("  lvs config set <key> <value>              Set default_catalog or journal_path")
	fmt.Println("  lvs config add-catalog-path <path>        Add a catalog search path")
	fmt.Println("  lvs config remove-catalog-path <path>     Remove a catalog search path")
	fmt.Println("  lvs config validate                       Check configured paths exist")
}
