package engine

import "fmt"

// CodeError is an engine failure reported as an encoded numeric
// identifier rather than a message. Callers translate the code with
// Engine.ErrorMessage before surfacing it.
type CodeError struct {
	Code int
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("engine error code %d", e.Code)
}
