package livespec

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/livefir/livespec/internal/memory"
	"github.com/livefir/livespec/internal/metrics"
	isession "github.com/livefir/livespec/internal/session"
	"github.com/livefir/livespec/internal/token"
)

// MountConfig configures the live mount handler.
type MountConfig struct {
	// Session is the template every session group is created from.
	Session SessionConfig

	// InitialSpec, when set, seeds every new session group's spec, for
	// mounts serving a fixed UI rather than a live stream. The payload
	// takes the same shapes Session.Apply accepts.
	InitialSpec map[string]interface{}

	// Authenticate extracts the user identity and auth payload from an
	// incoming request. A nil func means anonymous connections.
	Authenticate func(r *http.Request) (userID string, auth interface{})

	// HTML, when set, serves GET requests as rendered HTML instead of
	// the JSON node tree.
	HTML *HTMLRenderer

	// Journal observes every applied stream line for replay.
	Journal LineObserver

	Upgrader          *websocket.Upgrader
	GroupTTL          time.Duration // session group lifetime, default 24h
	WebSocketDisabled bool
	Logger            *log.Logger

	// MemoryBudget caps total session memory; nil uses defaults.
	MemoryBudget *memory.Config

	// SessionEstimate is the per-group memory reservation in bytes.
	// Zero means 256KB.
	SessionEstimate int64
}

const defaultSessionEstimate = 256 * 1024

// Mount creates an http.Handler serving the live protocol: WebSocket
// clients exchange stream payloads and UI events for rendered node trees;
// plain HTTP clients get a rendered snapshot per request.
//
// Connections carrying the same group cookie share one Session, so every
// tab of a browser sees the same state. Resume tokens let a client
// reattach to its group after a dropped socket.
func Mount(cfg MountConfig) (*LiveHandler, error) {
	if cfg.Upgrader == nil {
		cfg.Upgrader = &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		}
	}
	tokens, err := token.New(nil)
	if err != nil {
		return nil, err
	}
	return &LiveHandler{
		cfg:     cfg,
		groups:  isession.NewManager(cfg.GroupTTL),
		conns:   NewConnectionRegistry(),
		tokens:  tokens,
		metrics: metrics.NewCollector(),
		memory:  memory.NewManager(cfg.MemoryBudget),
	}, nil
}

// LiveHandler serves both WebSocket and plain HTTP for one mount. It
// implements http.Handler.
type LiveHandler struct {
	cfg     MountConfig
	groups  *isession.Manager
	conns   *ConnectionRegistry
	tokens  *token.Service
	metrics *metrics.Collector
	memory  *memory.Manager
}

// mountGroup is the per-group runtime: the shared session and its stream
// feed.
type mountGroup struct {
	session  *Session
	streamer *Streamer
}

// wsMessage is one inbound client frame.
type wsMessage struct {
	Type    string                 `json:"type"` // "event", "patch", "begin", "end"
	Event   string                 `json:"event,omitempty"`
	Element string                 `json:"element,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
	Patch   map[string]interface{} `json:"patch,omitempty"`
}

// UpdateResponse is one outbound frame: a rendered update plus request
// metadata.
type UpdateResponse struct {
	Update
	Meta *ResponseMetadata `json:"meta,omitempty"`
}

// ResponseMetadata carries the outcome of the triggering event.
type ResponseMetadata struct {
	Success     bool              `json:"success"`
	Errors      map[string]string `json:"errors,omitempty"`
	Event       string            `json:"event,omitempty"`
	ResumeToken string            `json:"resumeToken,omitempty"`
}

// Metrics returns the mount's metrics collector.
func (h *LiveHandler) Metrics() *metrics.Collector { return h.metrics }

// Group returns a session group's runtime, for servers that feed streams
// into client sessions from their own goroutines.
func (h *LiveHandler) Group(groupID string) (*Session, *Streamer, bool) {
	group, ok := h.groups.Get(groupID)
	if !ok {
		return nil, nil, false
	}
	mg := group.Value.(*mountGroup)
	return mg.session, mg.streamer, true
}

// CleanupExpired drops session groups idle past their TTL, closing their
// sessions and returning their memory reservations. Callers run it on a
// timer.
func (h *LiveHandler) CleanupExpired() int {
	removed := h.groups.RemoveExpired()
	for _, group := range removed {
		if mg, ok := group.Value.(*mountGroup); ok {
			mg.streamer.Abort()
			mg.session.Close()
		}
		h.memory.ReleaseSession(group.ID)
		h.metrics.IncrementSessionClosed()
	}
	return len(removed)
}

func (h *LiveHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.cfg.WebSocketDisabled {
		w.Header().Set("X-Livespec-WebSocket", "disabled")
	} else {
		w.Header().Set("X-Livespec-WebSocket", "enabled")
	}

	if websocket.IsWebSocketUpgrade(r) {
		if h.cfg.WebSocketDisabled {
			http.Error(w, "WebSocket is disabled on this endpoint", http.StatusBadRequest)
			return
		}
		h.handleWebSocket(w, r)
		return
	}
	h.handleHTTP(w, r)
}

// resolveGroup finds the caller's session group from a resume token, the
// group cookie or the group header, creating one when nothing matches.
func (h *LiveHandler) resolveGroup(r *http.Request) (string, *mountGroup, bool, error) {
	if resume := r.URL.Query().Get("resume"); resume != "" {
		claims, err := h.tokens.Verify(resume)
		if err != nil {
			h.metrics.IncrementTokenFailure()
			return "", nil, false, err
		}
		h.metrics.IncrementTokenVerified()
		if group, ok := h.groups.Get(claims.GroupID); ok {
			return claims.GroupID, group.Value.(*mountGroup), false, nil
		}
		// Token outlived the group; fall through to a fresh one.
	}

	groupID := groupIDFrom(r)
	if groupID != "" {
		if group, ok := h.groups.Get(groupID); ok {
			return groupID, group.Value.(*mountGroup), false, nil
		}
	}

	groupID, mg, err := h.createGroup(r)
	return groupID, mg, true, err
}

func (h *LiveHandler) createGroup(r *http.Request) (string, *mountGroup, error) {
	estimate := h.cfg.SessionEstimate
	if estimate == 0 {
		estimate = defaultSessionEstimate
	}

	sessionCfg := h.cfg.Session
	if h.cfg.Authenticate != nil {
		_, auth := h.cfg.Authenticate(r)
		sessionCfg.Auth = auth
	}
	if sessionCfg.Logger == nil {
		sessionCfg.Logger = h.cfg.Logger
	}

	session := NewSession(sessionCfg)
	if h.cfg.InitialSpec != nil {
		session.Apply(h.cfg.InitialSpec)
	}
	var streamOpts []StreamerOption
	if h.cfg.Journal != nil {
		streamOpts = append(streamOpts, WithLineObserver(h.cfg.Journal))
	}
	if h.cfg.Logger != nil {
		streamOpts = append(streamOpts, WithStreamLogger(h.cfg.Logger))
	}
	mg := &mountGroup{session: session, streamer: NewStreamer(session, streamOpts...)}

	group, err := h.groups.Create(mg)
	if err != nil {
		session.Close()
		return "", nil, err
	}
	if err := h.memory.AllocateSession(group.ID, estimate); err != nil {
		session.Close()
		h.groups.Delete(group.ID)
		return "", nil, err
	}

	h.metrics.IncrementSessionCreated()
	status := h.memory.GetStatus()
	h.metrics.UpdateMemoryUsage(status.CurrentUsage, status.AverageSessionMemory)

	go h.pump(group.ID, session)
	return group.ID, mg, nil
}

// CloseGroup tears down one session group: the session closes, which ends
// its pump, and the memory reservation is returned.
func (h *LiveHandler) CloseGroup(groupID string) {
	group, ok := h.groups.Get(groupID)
	if !ok {
		return
	}
	mg := group.Value.(*mountGroup)
	mg.streamer.Abort()
	mg.session.Close()
	h.groups.Delete(groupID)
	h.memory.ReleaseSession(groupID)
	h.metrics.IncrementSessionClosed()
}

// pump broadcasts every session update to all connections of the group.
// It exits when the session closes.
func (h *LiveHandler) pump(groupID string, session *Session) {
	for update := range session.Updates() {
		h.metrics.IncrementRenderCompleted()
		if update.Err != "" {
			h.metrics.IncrementRenderFault()
		}
		data, err := json.Marshal(UpdateResponse{Update: update})
		if err != nil {
			h.logf("marshal update for group %s: %v", groupID, err)
			continue
		}
		for _, conn := range h.conns.GetByGroup(groupID) {
			if err := conn.Send(websocket.TextMessage, data); err != nil {
				h.logf("write to group %s: %v", groupID, err)
			}
		}
	}
}

func (h *LiveHandler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	groupID, mg, _, err := h.resolveGroup(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}

	var userID string
	if h.cfg.Authenticate != nil {
		userID, _ = h.cfg.Authenticate(r)
	}

	ws, err := h.cfg.Upgrader.Upgrade(w, r, http.Header{
		"Set-Cookie": []string{groupCookie(groupID).String()},
	})
	if err != nil {
		h.logf("WebSocket upgrade failed: %v", err)
		return
	}
	defer ws.Close()

	conn := &Connection{Conn: ws, GroupID: groupID, UserID: userID, Session: mg.session}
	h.conns.Register(conn)
	defer h.conns.Unregister(conn)

	// The initial frame carries the current tree and a resume token, so
	// a reconnecting client can reattach to the same group.
	streamID := mg.session.ID
	resume, err := h.tokens.Issue(groupID, streamID)
	if err == nil {
		h.metrics.IncrementTokenIssued()
	} else {
		h.logf("issue resume token: %v", err)
	}
	if err := h.sendSnapshot(conn, mg, "", nil, resume); err != nil {
		h.logf("initial frame failed: %v", err)
		return
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logf("WebSocket error: %v", err)
			}
			break
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.logf("failed to parse message: %v", err)
			continue
		}
		h.dispatch(r.Context(), conn, mg, msg)
	}
}

// dispatch handles one inbound frame. Patch and stream-control frames
// answer through the group pump; events additionally answer the sender
// directly with field errors.
func (h *LiveHandler) dispatch(ctx context.Context, conn *Connection, mg *mountGroup, msg wsMessage) {
	switch msg.Type {
	case "begin":
		mg.session.BeginStream()
		h.metrics.IncrementStreamStarted()
	case "end":
		mg.session.EndStream()
	case "patch":
		if msg.Patch == nil {
			return
		}
		if mg.session.Apply(msg.Patch) {
			h.metrics.IncrementPatchApplied()
		} else {
			h.metrics.IncrementPatchIgnored()
		}
	case "event":
		h.metrics.IncrementActionExecuted()
		errs := h.runEvent(ctx, mg, msg)
		if errs != nil {
			h.metrics.IncrementActionFailure()
		}
		if err := h.sendSnapshot(conn, mg, msg.Event, errs, ""); err != nil {
			h.logf("event response failed: %v", err)
		}
	default:
		h.logf("unknown message type %q", msg.Type)
	}
}

// runEvent executes a UI event and folds its error into field errors,
// mirroring how validation failures surface next to their inputs.
func (h *LiveHandler) runEvent(ctx context.Context, mg *mountGroup, msg wsMessage) map[string]string {
	err := mg.session.HandleEvent(ctx, msg.Element, msg.Event, msg.Payload)
	if err == nil {
		return nil
	}
	errs := make(map[string]string)
	switch e := err.(type) {
	case FieldError:
		errs[e.Field] = e.Message
	case MultiError:
		for _, fe := range e {
			errs[fe.Field] = fe.Message
		}
	default:
		errs["_general"] = err.Error()
	}
	return errs
}

// sendSnapshot renders the group's current tree and writes it to one
// connection with metadata.
func (h *LiveHandler) sendSnapshot(conn *Connection, mg *mountGroup, event string, errs map[string]string, resume string) error {
	tree, err := mg.session.Render()
	update := Update{Kind: UpdateState, Tree: tree, Streaming: mg.session.Streaming()}
	if err != nil {
		update.Err = err.Error()
	}
	response := UpdateResponse{
		Update: update,
		Meta: &ResponseMetadata{
			Success:     len(errs) == 0 && err == nil,
			Errors:      errs,
			Event:       event,
			ResumeToken: resume,
		},
	}
	data, err := json.Marshal(response)
	if err != nil {
		return err
	}
	return conn.Send(websocket.TextMessage, data)
}

func (h *LiveHandler) handleHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		return
	}

	groupID, mg, created, err := h.resolveGroup(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	if created {
		http.SetCookie(w, groupCookie(groupID))
	}

	switch r.Method {
	case http.MethodGet:
		h.serveSnapshot(w, mg, "", nil)
	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		msg, err := parseEventMessage(body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		errs := h.runEvent(r.Context(), mg, wsMessage{
			Event: msg.Event, Element: msg.Element, Payload: msg.Payload,
		})
		h.serveSnapshot(w, mg, msg.Event, errs)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// serveSnapshot writes the group's current rendered tree: HTML when the
// mount carries an HTML renderer and the session registry targets it,
// JSON otherwise.
func (h *LiveHandler) serveSnapshot(w http.ResponseWriter, mg *mountGroup, event string, errs map[string]string) {
	tree, err := mg.session.Render()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if h.cfg.HTML != nil {
		if doc, ok := tree.(string); ok {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(doc))
			return
		}
	}

	response := UpdateResponse{
		Update: Update{Kind: UpdateState, Tree: tree, Streaming: mg.session.Streaming()},
		Meta:   &ResponseMetadata{Success: len(errs) == 0, Errors: errs, Event: event},
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *LiveHandler) logf(format string, args ...interface{}) {
	if h.cfg.Logger != nil {
		h.cfg.Logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

func groupCookie(groupID string) *http.Cookie {
	return &http.Cookie{
		Name:     "livespec-group",
		Value:    groupID,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

// groupIDFrom extracts the caller's group id from cookie or header.
func groupIDFrom(r *http.Request) string {
	if cookie, err := r.Cookie("livespec-group"); err == nil {
		return cookie.Value
	}
	return r.Header.Get("X-Livespec-Group")
}

