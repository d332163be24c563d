package livespec

import (
	"errors"
	"fmt"
)

// ErrActionCancelled reports a confirmation-gated action chain that the
// user cancelled before the handler ran. No state mutation occurred.
var ErrActionCancelled = errors.New("action cancelled by user")

// ErrComponentNotFound is returned when an element's type has no renderer
// registered and no fallback is configured.
type ErrComponentNotFound struct {
	Type string
}

func (e ErrComponentNotFound) Error() string {
	return fmt.Sprintf("component not found: %s", e.Type)
}

// ErrComputedNotFound is returned when a $computed expression names an
// unregistered function. Unlike missing children or unknown component
// types, this is a hard error: it means the catalog and the runtime
// registry disagree.
type ErrComputedNotFound struct {
	Name string
}

func (e ErrComputedNotFound) Error() string {
	return fmt.Sprintf("computed function not found: %s", e.Name)
}

// ErrInvalidManifest is returned when a catalog manifest fails validation
type ErrInvalidManifest struct {
	Field  string
	Reason string
	Index  *int // Optional index for array fields
}

func (e ErrInvalidManifest) Error() string {
	if e.Index != nil {
		return fmt.Sprintf("invalid manifest: %s[%d]: %s", e.Field, *e.Index, e.Reason)
	}
	return fmt.Sprintf("invalid manifest: %s: %s", e.Field, e.Reason)
}

// ErrManifestParse is returned when a catalog manifest file cannot be parsed
type ErrManifestParse struct {
	Path string
	Err  error
}

func (e ErrManifestParse) Error() string {
	return fmt.Sprintf("failed to parse manifest at %s: %v", e.Path, e.Err)
}

func (e ErrManifestParse) Unwrap() error {
	return e.Err
}

// ErrPropsInvalid is returned when element props fail the catalog's prop
// schema during registration-time or vet-time validation.
type ErrPropsInvalid struct {
	Type string
	Err  error
}

func (e ErrPropsInvalid) Error() string {
	return fmt.Sprintf("props invalid for component %s: %v", e.Type, e.Err)
}

func (e ErrPropsInvalid) Unwrap() error {
	return e.Err
}
