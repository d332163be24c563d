package livespec

import (
	"reflect"
	"regexp"
	"sync"
	"unicode/utf8"
)

// ValidationConfig declares the check list for one bound field and when it
// runs. ValidateOn defaults to "change"; "blur" and "submit" defer it.
type ValidationConfig struct {
	Checks     []ValidationCheck `json:"checks"`
	ValidateOn string            `json:"validateOn,omitempty"`
}

// ValidationCheck is one declarative rule. Args may carry dynamic
// expressions ({$state: path}) resolved against current state right before
// the comparison runs.
type ValidationCheck struct {
	Type    string                 `json:"type"`
	Message string                 `json:"message,omitempty"`
	Args    map[string]interface{} `json:"args,omitempty"`
}

// ValidationResult is a first-class value, never an error: invalid input
// is an expected state of a form, not a fault.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// FieldState tracks one registered field between validations.
type FieldState struct {
	Touched   bool
	Validated bool
	Result    ValidationResult
}

type fieldEntry struct {
	config *ValidationConfig
	state  FieldState
}

// Validator runs declarative field checks against live state. Field state
// is keyed by the bound state path and survives re-renders; registration
// happens on every render of a bound input, so it must be cheap and
// idempotent.
type Validator struct {
	mu     sync.Mutex
	state  StateReader
	fields map[string]*fieldEntry
}

// NewValidator creates a validator reading live values from state.
func NewValidator(state StateReader) *Validator {
	return &Validator{
		state:  state,
		fields: make(map[string]*fieldEntry),
	}
}

// RegisterField registers a field's config and returns the canonical
// config pointer. Re-registering with a structurally equal config keeps
// the existing identity and field state untouched, so render loops that
// re-register every pass never churn. A changed config replaces the old
// one and resets the validated flag.
func (v *Validator) RegisterField(path string, config *ValidationConfig) *ValidationConfig {
	v.mu.Lock()
	defer v.mu.Unlock()

	entry, exists := v.fields[path]
	if exists {
		if reflect.DeepEqual(entry.config, config) {
			return entry.config
		}
		entry.config = config
		entry.state.Validated = false
		entry.state.Result = ValidationResult{}
		return config
	}
	v.fields[path] = &fieldEntry{config: config}
	return config
}

// UnregisterField drops a field and its state.
func (v *Validator) UnregisterField(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.fields, path)
}

// Touch marks a field as touched (typically on blur).
func (v *Validator) Touch(path string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if entry, exists := v.fields[path]; exists {
		entry.state.Touched = true
	}
}

// Field returns the tracked state for a path.
func (v *Validator) Field(path string) (FieldState, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, exists := v.fields[path]
	if !exists {
		return FieldState{}, false
	}
	return entry.state, true
}

// ShouldValidate reports whether a field's config asks for validation on
// the given trigger ("change", "blur", "submit"). Submit always validates.
func (v *Validator) ShouldValidate(path, trigger string) bool {
	if trigger == "submit" {
		return true
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	entry, exists := v.fields[path]
	if !exists || entry.config == nil {
		return false
	}
	on := entry.config.ValidateOn
	if on == "" {
		on = "change"
	}
	return on == trigger
}

// Validate runs a field's checks against the live state value at path. A
// non-nil config is registered first (idempotently) and becomes the
// field's last-known config for ValidateAll. Checks run in declared order
// and every failure message accumulates.
func (v *Validator) Validate(path string, config *ValidationConfig) ValidationResult {
	if config != nil {
		config = v.RegisterField(path, config)
	} else {
		v.mu.Lock()
		if entry, exists := v.fields[path]; exists {
			config = entry.config
		}
		v.mu.Unlock()
	}

	result := ValidationResult{Valid: true}
	if config != nil {
		value, _ := v.state.Get(path)
		for _, check := range config.Checks {
			if msg, failed := v.runCheck(check, value); failed {
				result.Valid = false
				result.Errors = append(result.Errors, msg)
			}
		}
	}

	v.mu.Lock()
	entry, exists := v.fields[path]
	if !exists {
		entry = &fieldEntry{config: config}
		v.fields[path] = entry
	}
	entry.state.Validated = true
	entry.state.Result = result
	v.mu.Unlock()

	return result
}

// ValidateAll re-runs every registered field's last-known config and
// reports overall validity. Used to gate form submission.
func (v *Validator) ValidateAll() bool {
	v.mu.Lock()
	paths := make([]string, 0, len(v.fields))
	for path := range v.fields {
		paths = append(paths, path)
	}
	v.mu.Unlock()

	valid := true
	for _, path := range paths {
		if result := v.Validate(path, nil); !result.Valid {
			valid = false
		}
	}
	return valid
}

// Results returns the last result per validated field.
func (v *Validator) Results() map[string]ValidationResult {
	v.mu.Lock()
	defer v.mu.Unlock()
	out := make(map[string]ValidationResult, len(v.fields))
	for path, entry := range v.fields {
		if entry.state.Validated {
			out[path] = entry.state.Result
		}
	}
	return out
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// runCheck evaluates one rule. Unknown check types are skipped for
// forward compatibility.
func (v *Validator) runCheck(check ValidationCheck, value interface{}) (string, bool) {
	fail := func(fallback string) (string, bool) {
		if check.Message != "" {
			return check.Message, true
		}
		return fallback, true
	}

	// Emptiness belongs to required/requiredIf; every other check passes
	// on an empty value so optional fields stay valid until filled.
	switch check.Type {
	case "required", "requiredIf":
	default:
		if isEmptyValue(value) {
			return "", false
		}
	}

	switch check.Type {
	case "required":
		if isEmptyValue(value) {
			return fail("This field is required")
		}
	case "pattern":
		pattern, _ := v.argString(check.Args, "pattern")
		if pattern == "" {
			return "", false
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fail("Invalid validation pattern")
		}
		if !re.MatchString(stringifyValue(value)) {
			return fail("Invalid format")
		}
	case "minLength":
		n, ok := v.argFloat(check.Args, "value")
		if ok && valueLength(value) < int(n) {
			return fail("Too short")
		}
	case "maxLength":
		n, ok := v.argFloat(check.Args, "value")
		if ok && valueLength(value) > int(n) {
			return fail("Too long")
		}
	case "min":
		n, ok := v.argFloat(check.Args, "value")
		if f, isNum := toFloat(value); ok && isNum && f < n {
			return fail("Too small")
		}
	case "max":
		n, ok := v.argFloat(check.Args, "value")
		if f, isNum := toFloat(value); ok && isNum && f > n {
			return fail("Too large")
		}
	case "numeric":
		if _, isNum := toFloat(value); !isNum {
			return fail("Must be a number")
		}
	case "email":
		if !emailPattern.MatchString(stringifyValue(value)) {
			return fail("Must be a valid email")
		}
	case "equalTo":
		other, ok := v.resolveArg(check.Args, "value")
		if ok && !equalValues(value, other) {
			return fail("Values do not match")
		}
	case "lessThan":
		other, ok := v.resolveArg(check.Args, "value")
		if of, isNum := toFloat(other); ok && isNum {
			if f, valNum := toFloat(value); !valNum || f >= of {
				return fail("Value too large")
			}
		}
	case "greaterThan":
		other, ok := v.resolveArg(check.Args, "value")
		if of, isNum := toFloat(other); ok && isNum {
			if f, valNum := toFloat(value); !valNum || f <= of {
				return fail("Value too small")
			}
		}
	case "requiredIf":
		// Required when the condition arg (or, absent that, the value
		// arg) resolves truthy against current state.
		cond, ok := v.resolveArg(check.Args, "condition")
		if !ok {
			cond, ok = v.resolveArg(check.Args, "value")
		}
		if ok && isTruthy(cond) && isEmptyValue(value) {
			return fail("This field is required")
		}
	}
	return "", false
}

// resolveArg reads one check arg, resolving dynamic expressions against
// the live state first.
func (v *Validator) resolveArg(args map[string]interface{}, key string) (interface{}, bool) {
	if args == nil {
		return nil, false
	}
	raw, exists := args[key]
	if !exists {
		return nil, false
	}
	resolved, err := ResolveValue(raw, &EvalContext{State: v.state})
	if err != nil {
		return raw, true
	}
	return resolved, true
}

func (v *Validator) argString(args map[string]interface{}, key string) (string, bool) {
	raw, ok := v.resolveArg(args, key)
	if !ok {
		return "", false
	}
	s, ok := raw.(string)
	return s, ok
}

func (v *Validator) argFloat(args map[string]interface{}, key string) (float64, bool) {
	raw, ok := v.resolveArg(args, key)
	if !ok {
		return 0, false
	}
	return toFloat(raw)
}

func isEmptyValue(value interface{}) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []interface{}:
		return len(v) == 0
	default:
		return false
	}
}

func valueLength(value interface{}) int {
	switch v := value.(type) {
	case string:
		return utf8.RuneCountInString(v)
	case []interface{}:
		return len(v)
	default:
		return 0
	}
}
