package commands

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/livefir/livespec"
	"github.com/livefir/livespec/cmd/lvs/internal/config"
	"github.com/livefir/livespec/cmd/lvs/internal/ui"
	"github.com/livefir/livespec/internal/journal"
)

// Replay folds a recorded patch stream and reports what it builds. With
// --tui the stream is stepped through interactively.
func Replay(args []string) error {
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	journalPath := fs.String("journal", "", "sqlite journal to read streams from")
	streamID := fs.String("stream", "", "stream id inside the journal")
	tui := fs.Bool("tui", false, "step through the stream interactively")
	interval := fs.Duration("interval", 200*time.Millisecond, "tui playback interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	lines, source, err := replayLines(fs.Args(), *journalPath, *streamID)
	if err != nil {
		return err
	}
	if lines == nil {
		// A journal with no stream selected lists what it holds.
		return nil
	}

	if *tui {
		return ui.RunReplay(lines, *interval)
	}

	spec, stats, err := livespec.FoldStream(strings.NewReader(strings.Join(lines, "\n")))
	if err != nil {
		return fmt.Errorf("fold failed: %w", err)
	}

	fmt.Printf("%s: %d lines, %d applied, %d skipped, %d malformed\n",
		source, stats.Lines, stats.Applied, stats.Skipped, stats.Malformed)
	fmt.Printf("spec: root=%s elements=%d renderable=%v\n",
		orNoneValue(spec.Root), len(spec.Elements), spec.Renderable())

	keys := make([]string, 0, len(spec.Elements))
	for k := range spec.Elements {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		el := spec.Elements[k]
		fmt.Printf("  %-20s %s (%d children)\n", k, el.Type, len(el.Children))
	}
	return nil
}

// replayLines loads the stream from an NDJSON file argument or from the
// journal. A nil slice with nil error means the command already printed a
// stream listing.
func replayLines(args []string, journalPath, streamID string) ([]string, string, error) {
	if len(args) > 0 {
		lines, err := readLines(args[0])
		return lines, args[0], err
	}

	if journalPath == "" {
		cfg, err := config.LoadConfig()
		if err != nil {
			return nil, "", err
		}
		journalPath = cfg.JournalPath
	}
	if journalPath == "" {
		return nil, "", fmt.Errorf("nothing to replay: give an NDJSON file or --journal")
	}

	j, err := journal.Open(journalPath)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open journal: %w", err)
	}
	defer j.Close()

	if streamID == "" {
		streams, err := j.Streams()
		if err != nil {
			return nil, "", err
		}
		if len(streams) == 0 {
			fmt.Println("journal is empty")
			return nil, "", nil
		}
		fmt.Println("streams in journal (pass --stream <id>):")
		for _, s := range streams {
			fmt.Printf("  %-40s %5d lines  last seen %s\n",
				s.StreamID, s.Lines, s.LastSeen.Format(time.RFC3339))
		}
		return nil, "", nil
	}

	entries, err := j.Replay(streamID)
	if err != nil {
		return nil, "", err
	}
	if len(entries) == 0 {
		return nil, "", fmt.Errorf("stream %s not found in journal", streamID)
	}
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.Line
	}
	return lines, streamID, nil
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open stream file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stream file: %w", err)
	}
	return lines, nil
}
