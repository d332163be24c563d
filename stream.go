package livespec

import (
	"bufio"
	"context"
	"io"
	"log"
	"sync"

	"github.com/google/uuid"
)

// StreamStats summarizes one consumed patch stream.
type StreamStats struct {
	StreamID  string `json:"stream_id"`
	Lines     int    `json:"lines"`
	Applied   int    `json:"applied"`
	Skipped   int    `json:"skipped"`
	Malformed int    `json:"malformed"`
}

// LineObserver sees every applied raw line, in order. The journal hooks
// in here to persist streams for replay.
type LineObserver func(streamID string, seq int, line string)

// Streamer feeds NDJSON patch lines into a session. One streamer serves
// one session; starting a new stream aborts the previous one, matching
// the rule that a fresh generation request supersedes an in-flight one.
type Streamer struct {
	session  *Session
	observer LineObserver
	logger   *log.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	gen    int
}

// StreamerOption configures a Streamer.
type StreamerOption func(*Streamer)

// WithLineObserver registers a per-line observer.
func WithLineObserver(fn LineObserver) StreamerOption {
	return func(s *Streamer) { s.observer = fn }
}

// WithStreamLogger redirects streamer diagnostics.
func WithStreamLogger(logger *log.Logger) StreamerOption {
	return func(s *Streamer) { s.logger = logger }
}

// NewStreamer creates a streamer feeding session.
func NewStreamer(session *Session, opts ...StreamerOption) *Streamer {
	s := &Streamer{session: session}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Consume reads the stream to completion, applying each parsed line to
// the session as it arrives; every applied line is immediately reflected
// in a render pass, which is what makes the output feel incremental.
// Blank lines and // comments are skipped silently; malformed JSON is
// counted and skipped. A previous Consume still in flight is aborted
// first. Cancelling ctx stops consumption with ctx.Err(); the session's
// stream is marked ended on that path too, so diagnostics do not stay
// silenced behind a stream that will never finish.
func (s *Streamer) Consume(ctx context.Context, r io.Reader) (StreamStats, error) {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.gen++
	gen := s.gen
	s.mu.Unlock()
	defer cancel()

	stats := StreamStats{StreamID: uuid.NewString()}
	s.session.BeginStream()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			s.endStream(gen)
			return stats, err
		}
		line := scanner.Text()
		stats.Lines++

		payload, err := DecodePatchLine(line)
		if err != nil {
			stats.Malformed++
			s.logf("stream %s line %d: %v", stats.StreamID, stats.Lines, err)
			continue
		}
		if payload == nil {
			stats.Skipped++
			continue
		}
		if s.session.Apply(payload) {
			stats.Applied++
			if s.observer != nil {
				s.observer(stats.StreamID, stats.Applied, line)
			}
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		s.endStream(gen)
		return stats, err
	}
	if err := ctx.Err(); err != nil {
		s.endStream(gen)
		return stats, err
	}

	s.endStream(gen)
	return stats, nil
}

// endStream marks the session's stream finished, unless a newer Consume
// has already begun a fresh one. Without this, an aborted stream would
// leave the session streaming forever, silencing missing-element
// diagnostics it should be raising.
func (s *Streamer) endStream(gen int) {
	s.mu.Lock()
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		s.session.EndStream()
	}
}

// Abort cancels an in-flight Consume, if any.
func (s *Streamer) Abort() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Streamer) logf(format string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// FoldStream reduces a whole NDJSON stream into a spec without a session,
// for offline replay and tests. The same ordered lines always fold to the
// same spec.
func FoldStream(r io.Reader) (*Spec, StreamStats, error) {
	stats := StreamStats{}
	spec := NewSpec()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		stats.Lines++
		payload, err := DecodePatchLine(scanner.Text())
		if err != nil {
			stats.Malformed++
			continue
		}
		if payload == nil {
			stats.Skipped++
			continue
		}
		next, changed := ApplyUpdate(spec, payload)
		if changed {
			spec = next
			stats.Applied++
		} else {
			stats.Skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return spec, stats, err
	}
	return spec, stats, nil
}
