package llm

import "github.com/kalambet/uniguide/internal/engine"

// Capability errors. Both match engine.ErrUnavailable under errors.Is.
var (
	ErrGenerationUnavailable  error = &capabilityError{name: "generation"}
	ErrTranslationUnavailable error = &capabilityError{name: "translation"}
)

type capabilityError struct {
	name string
}

func (e *capabilityError) Error() string { return e.name + " capability unavailable" }

func (e *capabilityError) Unwrap() error { return engine.ErrUnavailable }
