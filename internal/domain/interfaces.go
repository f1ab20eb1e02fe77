package domain

import "context"

// TextRunSource decodes one container format into per-page text runs.
// A single bad page must never return an error from Pages; it surfaces
// as a zero-run page at that index instead.
type TextRunSource interface {
	// Pages decodes the document into ordered pages. The only error this
	// may return is an input-kind error when the bytes are unreadable as
	// a whole.
	Pages(ctx context.Context, doc Document) ([]Page, error)
}

// OCRClient turns an image-only page into recognized text. It is an
// opaque external collaborator; a timeout or failure is treated as the
// page contributing no text, never as a job failure.
type OCRClient interface {
	Recognize(ctx context.Context, doc Document, pageIndex int) (string, error)
}

// EntityEngine is one independent extraction pass over normalized text.
// Engines are registered into an explicit list at startup; a panic or
// error inside Scan is converted to zero votes by the orchestrator.
type EntityEngine interface {
	// ID identifies the engine in votes and the allowlist.
	ID() string
	// Scan emits votes over the shared read-only normalized text.
	Scan(ctx context.Context, text string) ([]EngineVote, error)
}
