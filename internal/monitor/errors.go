package monitor

import "errors"

// Error taxonomy for the pipeline. Stages wrap these sentinels so callers
// can classify failures with errors.Is without depending on stage internals.
var (
	// ErrNetwork covers timeouts, refused connections and non-2xx replies.
	ErrNetwork = errors.New("network error")
	// ErrValidation covers downloads that completed but failed structural checks.
	ErrValidation = errors.New("validation error")
	// ErrArchive covers archives that cannot be opened at all.
	ErrArchive = errors.New("archive error")
	// ErrParse covers tabular sources without a usable header row.
	ErrParse = errors.New("parse error")
)
