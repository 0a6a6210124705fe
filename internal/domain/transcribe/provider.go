package transcribe

import (
	"context"
)

// Transcriber is the single capability the orchestration layer needs
// from a speech-to-text collaborator. Alternate providers plug in
// without touching orchestration logic.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, language, model string) (string, error)
}

// TranscribeFunc adapts a function to the Transcriber interface.
type TranscribeFunc func(ctx context.Context, audio []byte, language, model string) (string, error)

func (f TranscribeFunc) Transcribe(ctx context.Context, audio []byte, language, model string) (string, error) {
	return f(ctx, audio, language, model)
}
