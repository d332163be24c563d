package livespec

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// ActionBinding declares one event-to-action wiring on an element. Params
// hold dynamic values resolved at execution time, not at render time.
type ActionBinding struct {
	Action         string                 `json:"action"`
	Params         map[string]interface{} `json:"params,omitempty"`
	Confirm        *ActionConfirm         `json:"confirm,omitempty"`
	PreventDefault bool                   `json:"preventDefault,omitempty"`
}

// ActionConfirm describes the confirmation prompt gating an action.
type ActionConfirm struct {
	Title   string `json:"title,omitempty"`
	Message string `json:"message,omitempty"`
	Confirm string `json:"confirm,omitempty"`
	Cancel  string `json:"cancel,omitempty"`
}

// ResolvedAction is a binding with every dynamic param substituted to a
// literal, ready to hand to a handler.
type ResolvedAction struct {
	Name           string
	Params         map[string]interface{}
	Confirm        *ActionConfirm
	PreventDefault bool
}

// decodeBindings turns an On[event] value into its binding list. The wire
// carries either one binding object or an array of them.
func decodeBindings(raw interface{}) ([]ActionBinding, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		bindings := make([]ActionBinding, 0, len(v))
		for _, item := range v {
			b, err := decodeAs[ActionBinding](item)
			if err != nil {
				return nil, fmt.Errorf("decode action binding: %w", err)
			}
			bindings = append(bindings, *b)
		}
		return bindings, nil
	default:
		b, err := decodeAs[ActionBinding](raw)
		if err != nil {
			return nil, fmt.Errorf("decode action binding: %w", err)
		}
		return []ActionBinding{*b}, nil
	}
}

// ResolveBinding substitutes the binding's dynamic params against ctx,
// producing a fully concrete action.
func ResolveBinding(binding ActionBinding, ctx *EvalContext) (ResolvedAction, error) {
	resolved := ResolvedAction{
		Name:           binding.Action,
		Confirm:        binding.Confirm,
		PreventDefault: binding.PreventDefault,
	}
	if binding.Params != nil {
		v, err := ResolveValue(binding.Params, ctx)
		if err != nil {
			return ResolvedAction{}, err
		}
		params, _ := v.(map[string]interface{})
		resolved.Params = params
	}
	return resolved, nil
}

// ActionData wraps a resolved param set or event payload with utilities
// for binding and validation.
type ActionData struct {
	raw   map[string]interface{}
	bytes []byte // Cached JSON for efficient binding
}

func newActionData(data map[string]interface{}) *ActionData {
	if data == nil {
		data = make(map[string]interface{})
	}
	return &ActionData{raw: data}
}

// Bind unmarshals the data into a struct
func (a *ActionData) Bind(v interface{}) error {
	if a.bytes == nil {
		var err error
		a.bytes, err = json.Marshal(a.raw)
		if err != nil {
			return fmt.Errorf("failed to marshal data: %w", err)
		}
	}
	return json.Unmarshal(a.bytes, v)
}

// BindAndValidate binds data to struct and validates it in one step
func (a *ActionData) BindAndValidate(v interface{}, validate *validator.Validate) error {
	if err := a.Bind(v); err != nil {
		return err
	}
	if err := validate.Struct(v); err != nil {
		return ValidationToMultiError(err)
	}
	return nil
}

// Raw returns the underlying map for direct access
func (a *ActionData) Raw() map[string]interface{} {
	return a.raw
}

// GetString extracts a string value
func (a *ActionData) GetString(key string) string {
	if v, ok := a.raw[key].(string); ok {
		return v
	}
	return ""
}

// GetInt extracts an int value (JSON numbers are float64)
func (a *ActionData) GetInt(key string) int {
	switch v := a.raw[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

// GetBool extracts a bool value
func (a *ActionData) GetBool(key string) bool {
	if v, ok := a.raw[key].(bool); ok {
		return v
	}
	return false
}

// Has checks if a key exists
func (a *ActionData) Has(key string) bool {
	_, exists := a.raw[key]
	return exists
}

// Get returns the raw value for a key
func (a *ActionData) Get(key string) interface{} {
	return a.raw[key]
}

// ActionContext carries one handler invocation: the resolved action name
// and params, the raw UI event payload that fired the chain, and the live
// store. Reads through State observe the writes of earlier chain steps.
type ActionContext struct {
	Name   string
	Params *ActionData
	Event  *ActionData
	State  StateStore
}

// Bind is a convenience method that delegates to Params.Bind
func (c *ActionContext) Bind(v interface{}) error {
	return c.Params.Bind(v)
}

// BindAndValidate is a convenience method
func (c *ActionContext) BindAndValidate(v interface{}, validate *validator.Validate) error {
	return c.Params.BindAndValidate(v, validate)
}

// GetString is a convenience method
func (c *ActionContext) GetString(key string) string {
	return c.Params.GetString(key)
}

// GetInt is a convenience method
func (c *ActionContext) GetInt(key string) int {
	return c.Params.GetInt(key)
}

// HandlerFunc handles one named action.
type HandlerFunc func(ctx *ActionContext) error

// Handlers is an explicit name-to-handler map. Unknown names never reach a
// handler: built-ins run first, then this map, then a logged no-op.
type Handlers map[string]HandlerFunc

// Confirmer answers confirmation-gated actions. Execution blocks until it
// decides; false cancels the chain before the gated step mutates anything.
type Confirmer interface {
	Confirm(ctx context.Context, prompt *ActionConfirm) bool
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, prompt *ActionConfirm) bool

// Confirm implements Confirmer.
func (f ConfirmFunc) Confirm(ctx context.Context, prompt *ActionConfirm) bool {
	return f(ctx, prompt)
}

// Executor resolves and runs action chains against one store. The
// zero-configured executor knows only the built-ins (setState, pushState,
// removeState); handlers and a confirmer are wired through options.
type Executor struct {
	store     StateStore
	handlers  Handlers
	confirmer Confirmer
	logger    *log.Logger

	mu      sync.Mutex
	loading map[string]int
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithHandlers registers a handler map.
func WithHandlers(handlers Handlers) ExecutorOption {
	return func(e *Executor) {
		for name, fn := range handlers {
			e.handlers[name] = fn
		}
	}
}

// WithHandler registers a single named handler.
func WithHandler(name string, fn HandlerFunc) ExecutorOption {
	return func(e *Executor) {
		e.handlers[name] = fn
	}
}

// WithConfirmer sets the confirmation gate. Without one, confirmation
// prompts are granted automatically.
func WithConfirmer(c Confirmer) ExecutorOption {
	return func(e *Executor) {
		e.confirmer = c
	}
}

// WithActionLogger redirects executor diagnostics.
func WithActionLogger(logger *log.Logger) ExecutorOption {
	return func(e *Executor) {
		e.logger = logger
	}
}

// NewExecutor creates an executor bound to store.
func NewExecutor(store StateStore, opts ...ExecutorOption) *Executor {
	e := &Executor{
		store:    store,
		handlers: make(Handlers),
		loading:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Loading reports whether a named action currently has a handler in
// flight. Components use this to render busy/disabled states.
func (e *Executor) Loading(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading[name] > 0
}

func (e *Executor) markLoading(name string) {
	e.mu.Lock()
	e.loading[name]++
	e.mu.Unlock()
}

func (e *Executor) clearLoading(name string) {
	e.mu.Lock()
	if e.loading[name] > 1 {
		e.loading[name]--
	} else {
		delete(e.loading, name)
	}
	e.mu.Unlock()
}

func (e *Executor) logf(format string, args ...interface{}) {
	if e.logger != nil {
		e.logger.Printf(format, args...)
		return
	}
	log.Printf(format, args...)
}

// Execute runs a chain of bindings fired from one event, strictly in
// declaration order. Each step resolves its params immediately before it
// runs, against the live store: a step always observes the writes of every
// earlier step in the same chain, never a snapshot from chain start.
// Cancellation of a confirmation prompt stops the chain with
// ErrActionCancelled; nothing runs for the gated step or after it.
func (e *Executor) Execute(ctx context.Context, bindings []ActionBinding, evalCtx *EvalContext, event map[string]interface{}) error {
	live := &EvalContext{State: e.store}
	if evalCtx != nil {
		live.Scope = evalCtx.Scope
		live.Computed = evalCtx.Computed
		live.Auth = evalCtx.Auth
	}
	eventData := newActionData(event)

	for _, binding := range bindings {
		if err := ctx.Err(); err != nil {
			return err
		}
		resolved, err := ResolveBinding(binding, live)
		if err != nil {
			return fmt.Errorf("resolve action %q: %w", binding.Action, err)
		}
		if resolved.Confirm != nil && !e.confirm(ctx, resolved.Confirm) {
			return ErrActionCancelled
		}
		if err := e.run(ctx, resolved, eventData); err != nil {
			return err
		}
	}
	return nil
}

func (e *Executor) confirm(ctx context.Context, prompt *ActionConfirm) bool {
	if e.confirmer == nil {
		return true
	}
	return e.confirmer.Confirm(ctx, prompt)
}

func (e *Executor) run(ctx context.Context, action ResolvedAction, event *ActionData) error {
	switch action.Name {
	case "setState":
		return e.setState(action.Params)
	case "pushState":
		return e.pushState(action.Params)
	case "removeState":
		return e.removeState(action.Params)
	}

	handler, exists := e.handlers[action.Name]
	if !exists {
		e.logf("unknown action: %s", action.Name)
		return nil
	}

	e.markLoading(action.Name)
	defer e.clearLoading(action.Name)

	return handler(&ActionContext{
		Name:   action.Name,
		Params: newActionData(action.Params),
		Event:  event,
		State:  e.store,
	})
}

// setState writes params.value at params.statePath.
func (e *Executor) setState(params map[string]interface{}) error {
	path, _ := params["statePath"].(string)
	if path == "" {
		return fmt.Errorf("setState requires statePath")
	}
	e.store.Set(path, params["value"])
	return nil
}

// pushState appends params.value to the array at params.statePath,
// creating the array if absent, then clears params.clearStatePath if
// given. Value was already resolved against live state by Execute.
func (e *Executor) pushState(params map[string]interface{}) error {
	path, _ := params["statePath"].(string)
	if path == "" {
		return fmt.Errorf("pushState requires statePath")
	}
	cur, _ := e.store.Get(path)
	arr, _ := cur.([]interface{})
	next := make([]interface{}, 0, len(arr)+1)
	next = append(next, arr...)
	next = append(next, params["value"])

	changes := []StateChange{{Path: path, Value: next}}
	if clear, ok := params["clearStatePath"].(string); ok && clear != "" {
		changes = append(changes, StateChange{Path: clear, Value: ""})
	}
	e.store.Update(changes)
	return nil
}

// removeState splices the element at params.index out of the array at
// params.statePath. Out-of-range indices are a no-op.
func (e *Executor) removeState(params map[string]interface{}) error {
	path, _ := params["statePath"].(string)
	if path == "" {
		return fmt.Errorf("removeState requires statePath")
	}
	f, ok := toFloat(params["index"])
	if !ok {
		return fmt.Errorf("removeState requires a numeric index")
	}
	index := int(f)
	cur, _ := e.store.Get(path)
	arr, ok := cur.([]interface{})
	if !ok || index < 0 || index >= len(arr) {
		return nil
	}
	next := make([]interface{}, 0, len(arr)-1)
	next = append(next, arr[:index]...)
	next = append(next, arr[index+1:]...)
	e.store.Set(path, next)
	return nil
}

// FieldError represents a validation error for a specific field
type FieldError struct {
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewFieldError creates a field-specific error
func NewFieldError(field string, err error) FieldError {
	return FieldError{Field: field, Message: err.Error()}
}

// MultiError is a collection of field errors (implements error interface)
type MultiError []FieldError

func (m MultiError) Error() string {
	if len(m) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range m {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ValidationToMultiError converts go-playground/validator errors to MultiError
func ValidationToMultiError(err error) MultiError {
	var fieldErrors MultiError

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fieldErrors
	}

	for _, e := range validationErrs {
		fieldName := strings.ToLower(e.Field())

		var message string
		switch e.Tag() {
		case "required":
			message = fmt.Sprintf("%s is required", e.Field())
		case "min":
			message = fmt.Sprintf("%s must be at least %s characters", e.Field(), e.Param())
		case "max":
			message = fmt.Sprintf("%s must be at most %s characters", e.Field(), e.Param())
		case "email":
			message = fmt.Sprintf("%s must be a valid email", e.Field())
		case "url":
			message = fmt.Sprintf("%s must be a valid URL", e.Field())
		default:
			message = fmt.Sprintf("%s is invalid", e.Field())
		}

		fieldErrors = append(fieldErrors, FieldError{
			Field:   fieldName,
			Message: message,
		})
	}

	return fieldErrors
}

// eventMessage is a UI event from a connected client (internal protocol).
type eventMessage struct {
	Event   string                 `json:"event"`
	Element string                 `json:"element"`
	Payload map[string]interface{} `json:"payload"`
}

// parseEventMessage parses a UI event from WebSocket message bytes.
func parseEventMessage(data []byte) (eventMessage, error) {
	var msg eventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return eventMessage{}, fmt.Errorf("failed to parse event: %w", err)
	}
	if msg.Payload == nil {
		msg.Payload = make(map[string]interface{})
	}
	return msg, nil
}
