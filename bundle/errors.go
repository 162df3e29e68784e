package bundle

import (
	"errors"
	"fmt"

	"github.com/proxyre/prebundle/engine"
)

// Error kinds. Every failure in this package wraps one of these, with
// the artifact name, entry name or chunk index attached, so callers
// can both match the kind and diagnose the site.
var (
	// ErrMissingArtifact reports a mandatory buffer or object absent
	// at its point of use.
	ErrMissingArtifact = errors.New("missing artifact")

	// ErrEngineRejected reports that the engine refused a buffer.
	ErrEngineRejected = errors.New("engine rejected artifact")

	// ErrEntryMissing reports an expected archive entry absent.
	ErrEntryMissing = errors.New("archive entry missing")

	// ErrTransferFailed reports a worker error or an inconsistent
	// chunk set during chunked transfer.
	ErrTransferFailed = errors.New("transfer failed")

	// ErrEmptyIndexList reports bootstrap reconstruction attempted
	// with zero recovered indices.
	ErrEmptyIndexList = errors.New("empty bootstrap index list")
)

// engineErr wraps an engine failure for one artifact, translating
// encoded numeric identifiers through the engine's message lookup.
func engineErr(eng engine.Engine, artifact string, err error) error {
	var code *engine.CodeError
	if errors.As(err, &code) {
		return fmt.Errorf("%w: %s: %s", ErrEngineRejected, artifact, eng.ErrorMessage(code.Code))
	}
	return fmt.Errorf("%w: %s: %v", ErrEngineRejected, artifact, err)
}
