package livespec

import (
	"reflect"
	"testing"
)

func newTestValidator(state map[string]interface{}) (*Validator, *MemoryStore) {
	store := NewMemoryStore(state)
	return NewValidator(store), store
}

func TestValidateChecks(t *testing.T) {
	tests := []struct {
		name    string
		state   map[string]interface{}
		check   ValidationCheck
		valid   bool
		message string
	}{
		{
			name:  "required present",
			state: map[string]interface{}{"f": "x"},
			check: ValidationCheck{Type: "required"},
			valid: true,
		},
		{
			name:    "required empty string",
			state:   map[string]interface{}{"f": ""},
			check:   ValidationCheck{Type: "required"},
			valid:   false,
			message: "This field is required",
		},
		{
			name:    "required missing",
			state:   nil,
			check:   ValidationCheck{Type: "required", Message: "name it"},
			valid:   false,
			message: "name it",
		},
		{
			name:  "minLength ok",
			state: map[string]interface{}{"f": "hello"},
			check: ValidationCheck{Type: "minLength", Args: map[string]interface{}{"value": float64(3)}},
			valid: true,
		},
		{
			name:    "minLength short",
			state:   map[string]interface{}{"f": "hi"},
			check:   ValidationCheck{Type: "minLength", Args: map[string]interface{}{"value": float64(3)}},
			valid:   false,
			message: "Too short",
		},
		{
			name:  "minLength counts runes",
			state: map[string]interface{}{"f": "héllo"},
			check: ValidationCheck{Type: "minLength", Args: map[string]interface{}{"value": float64(5)}},
			valid: true,
		},
		{
			name:  "maxLength on array",
			state: map[string]interface{}{"f": []interface{}{1, 2, 3}},
			check: ValidationCheck{Type: "maxLength", Args: map[string]interface{}{"value": float64(2)}},
			valid: false,
		},
		{
			name:  "empty value passes non-required checks",
			state: map[string]interface{}{"f": ""},
			check: ValidationCheck{Type: "minLength", Args: map[string]interface{}{"value": float64(3)}},
			valid: true,
		},
		{
			name:  "pattern match",
			state: map[string]interface{}{"f": "abc123"},
			check: ValidationCheck{Type: "pattern", Args: map[string]interface{}{"pattern": "^[a-z0-9]+$"}},
			valid: true,
		},
		{
			name:  "pattern mismatch",
			state: map[string]interface{}{"f": "ABC"},
			check: ValidationCheck{Type: "pattern", Args: map[string]interface{}{"pattern": "^[a-z]+$"}},
			valid: false,
		},
		{
			name:  "min ok",
			state: map[string]interface{}{"f": float64(5)},
			check: ValidationCheck{Type: "min", Args: map[string]interface{}{"value": float64(3)}},
			valid: true,
		},
		{
			name:  "max exceeded",
			state: map[string]interface{}{"f": float64(9)},
			check: ValidationCheck{Type: "max", Args: map[string]interface{}{"value": float64(5)}},
			valid: false,
		},
		{
			name:  "numeric string ok",
			state: map[string]interface{}{"f": "12.5"},
			check: ValidationCheck{Type: "numeric"},
			valid: true,
		},
		{
			name:  "numeric junk",
			state: map[string]interface{}{"f": "12x"},
			check: ValidationCheck{Type: "numeric"},
			valid: false,
		},
		{
			name:  "email ok",
			state: map[string]interface{}{"f": "a@b.co"},
			check: ValidationCheck{Type: "email"},
			valid: true,
		},
		{
			name:  "email bad",
			state: map[string]interface{}{"f": "not-an-email"},
			check: ValidationCheck{Type: "email"},
			valid: false,
		},
		{
			name:  "unknown check skipped",
			state: map[string]interface{}{"f": "anything"},
			check: ValidationCheck{Type: "futureRule"},
			valid: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := newTestValidator(tt.state)
			result := v.Validate("/f", &ValidationConfig{Checks: []ValidationCheck{tt.check}})
			if result.Valid != tt.valid {
				t.Fatalf("Valid = %v, want %v (errors %v)", result.Valid, tt.valid, result.Errors)
			}
			if tt.message != "" && (len(result.Errors) == 0 || result.Errors[0] != tt.message) {
				t.Errorf("errors = %v, want %q", result.Errors, tt.message)
			}
		})
	}
}

func TestValidateDynamicArgs(t *testing.T) {
	// equalTo reads the comparison value from live state at check time.
	v, store := newTestValidator(map[string]interface{}{
		"password": "secret1",
		"confirm":  "secret1",
	})

	config := &ValidationConfig{Checks: []ValidationCheck{{
		Type: "equalTo",
		Args: map[string]interface{}{"value": map[string]interface{}{"$state": "/password"}},
	}}}

	if result := v.Validate("/confirm", config); !result.Valid {
		t.Fatalf("matching passwords invalid: %v", result.Errors)
	}

	store.Set("/password", "changed")
	if result := v.Validate("/confirm", config); result.Valid {
		t.Error("stale comparison value: check should re-read state")
	}
}

func TestValidateRequiredIf(t *testing.T) {
	v, store := newTestValidator(map[string]interface{}{
		"wantsInvoice": true,
		"vat":          "",
	})

	config := &ValidationConfig{Checks: []ValidationCheck{{
		Type: "requiredIf",
		Args: map[string]interface{}{"condition": map[string]interface{}{"$state": "/wantsInvoice"}},
	}}}

	if result := v.Validate("/vat", config); result.Valid {
		t.Error("conditionally required empty field should fail")
	}

	store.Set("/wantsInvoice", false)
	if result := v.Validate("/vat", config); !result.Valid {
		t.Errorf("condition off, field should pass: %v", result.Errors)
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	v, _ := newTestValidator(map[string]interface{}{"f": "x"})

	result := v.Validate("/f", &ValidationConfig{Checks: []ValidationCheck{
		{Type: "minLength", Args: map[string]interface{}{"value": float64(3)}, Message: "short"},
		{Type: "email", Message: "not email"},
	}})

	if result.Valid {
		t.Fatal("expected failure")
	}
	if !reflect.DeepEqual(result.Errors, []string{"short", "not email"}) {
		t.Errorf("errors = %v, want both in declared order", result.Errors)
	}
}

func TestRegisterFieldIdempotent(t *testing.T) {
	v, _ := newTestValidator(map[string]interface{}{"f": "hello"})

	config := &ValidationConfig{Checks: []ValidationCheck{{Type: "required"}}}
	v.Validate("/f", config)

	before, _ := v.Field("/f")
	if !before.Validated {
		t.Fatal("field not marked validated")
	}

	// Structurally equal re-registration keeps state.
	equal := &ValidationConfig{Checks: []ValidationCheck{{Type: "required"}}}
	v.RegisterField("/f", equal)
	after, _ := v.Field("/f")
	if !after.Validated {
		t.Error("equal config reset field state")
	}

	// A changed config resets the validated flag.
	changed := &ValidationConfig{Checks: []ValidationCheck{{Type: "email"}}}
	v.RegisterField("/f", changed)
	after, _ = v.Field("/f")
	if after.Validated {
		t.Error("changed config should reset validated flag")
	}
}

func TestShouldValidateTriggers(t *testing.T) {
	v, _ := newTestValidator(nil)
	v.RegisterField("/change", &ValidationConfig{Checks: []ValidationCheck{{Type: "required"}}})
	v.RegisterField("/blur", &ValidationConfig{ValidateOn: "blur", Checks: []ValidationCheck{{Type: "required"}}})

	if !v.ShouldValidate("/change", "change") {
		t.Error("default trigger is change")
	}
	if v.ShouldValidate("/change", "blur") {
		t.Error("change-field should not fire on blur")
	}
	if !v.ShouldValidate("/blur", "blur") {
		t.Error("blur-field should fire on blur")
	}
	if !v.ShouldValidate("/blur", "submit") || !v.ShouldValidate("/unknown", "submit") {
		t.Error("submit always validates")
	}
	if v.ShouldValidate("/unknown", "change") {
		t.Error("unregistered field should not validate on change")
	}
}

func TestValidateAll(t *testing.T) {
	v, store := newTestValidator(map[string]interface{}{
		"name":  "ada",
		"email": "bad",
	})

	v.Validate("/name", &ValidationConfig{Checks: []ValidationCheck{{Type: "required"}}})
	v.Validate("/email", &ValidationConfig{Checks: []ValidationCheck{{Type: "email"}}})

	if v.ValidateAll() {
		t.Error("invalid email should fail ValidateAll")
	}

	store.Set("/email", "a@b.co")
	if !v.ValidateAll() {
		t.Error("all fields valid, ValidateAll should pass")
	}

	results := v.Results()
	if len(results) != 2 || !results["/email"].Valid {
		t.Errorf("results = %v", results)
	}
}

func TestTouchAndUnregister(t *testing.T) {
	v, _ := newTestValidator(nil)
	v.RegisterField("/f", &ValidationConfig{})

	v.Touch("/f")
	state, ok := v.Field("/f")
	if !ok || !state.Touched {
		t.Error("touch not recorded")
	}

	v.UnregisterField("/f")
	if _, ok := v.Field("/f"); ok {
		t.Error("field survived unregister")
	}

	v.Touch("/gone") // no-op, must not panic
}
