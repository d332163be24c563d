package commands

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/livefir/livespec"
	"github.com/livefir/livespec/cmd/lvs/internal/config"
	"github.com/livefir/livespec/internal/journal"
)

// Serve mounts a spec file on an HTTP/WebSocket endpoint.
func Serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	addr := fs.String("addr", ":8080", "listen address")
	specPath := fs.String("spec", "", "spec file to serve (json)")
	catalogPath := fs.String("catalog", "", "component catalog manifest (yaml)")
	journalPath := fs.String("journal", "", "sqlite journal recording applied streams")
	ttl := fs.Duration("ttl", 24*time.Hour, "session group lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *specPath == "" && fs.NArg() > 0 {
		*specPath = fs.Arg(0)
	}
	if *specPath == "" {
		return fmt.Errorf("spec file required: lvs serve [flags] <spec.json>")
	}

	data, err := os.ReadFile(*specPath)
	if err != nil {
		return fmt.Errorf("failed to read spec file: %w", err)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("failed to parse spec file: %w", err)
	}

	catalog, err := resolveCatalog(*catalogPath)
	if err != nil {
		return err
	}

	logger := log.New(os.Stderr, "lvs ", log.LstdFlags)
	computed := livespec.NewComputedRegistry()
	if catalog != nil {
		if err := catalog.RegisterComputed(computed); err != nil {
			return fmt.Errorf("failed to register catalog computed: %w", err)
		}
	}

	html := livespec.NewHTMLRenderer(catalog)
	cfg := livespec.MountConfig{
		Session: livespec.SessionConfig{
			Computed: computed,
			Registry: html.Registry(),
			Logger:   logger,
		},
		InitialSpec: payload,
		HTML:        html,
		GroupTTL:    *ttl,
		Logger:      logger,
	}

	if *journalPath == "" {
		appCfg, err := config.LoadConfig()
		if err != nil {
			return err
		}
		*journalPath = appCfg.JournalPath
	}
	if *journalPath != "" {
		j, err := journal.Open(*journalPath)
		if err != nil {
			return fmt.Errorf("failed to open journal: %w", err)
		}
		defer j.Close()
		cfg.Journal = func(streamID string, seq int, line string) {
			if err := j.Append(streamID, seq, line); err != nil {
				logger.Printf("journal append failed: %v", err)
			}
		}
	}

	handler, err := livespec.Mount(cfg)
	if err != nil {
		return fmt.Errorf("mount failed: %w", err)
	}

	// Expired groups are torn down in the background so long-running
	// serves do not accumulate abandoned sessions.
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for range ticker.C {
			if n := handler.CleanupExpired(); n > 0 {
				logger.Printf("cleaned up %d expired session groups", n)
			}
		}
	}()

	fmt.Printf("serving %s on %s\n", *specPath, *addr)
	return http.ListenAndServe(*addr, handler)
}
