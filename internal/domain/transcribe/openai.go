package transcribe

import (
	"bytes"
	"context"
	stderrors "errors"
	"net"

	openai "github.com/sashabaranov/go-openai"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
)

// OpenAIProvider transcribes audio through the OpenAI speech-to-text
// API and maps provider error categories onto the retry taxonomy.
type OpenAIProvider struct {
	client       *openai.Client
	defaultModel string
}

// NewOpenAIProvider builds the provider from configuration.
func NewOpenAIProvider(cfg config.ProviderConfig) (*OpenAIProvider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New(errors.KindConfig, "openai.new", "api key required")
	}

	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	model := cfg.Model
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAIProvider{
		client:       openai.NewClientWithConfig(clientCfg),
		defaultModel: model,
	}, nil
}

// Transcribe sends one chunk to the provider.
func (p *OpenAIProvider) Transcribe(ctx context.Context, audio []byte, language, model string) (string, error) {
	if model == "" {
		model = p.defaultModel
	}

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    model,
		FilePath: "chunk.wav",
		Reader:   bytes.NewReader(audio),
		Language: language,
	})
	if err != nil {
		return "", classifyProviderError(err)
	}
	return resp.Text, nil
}

// classifyProviderError decides which provider failures the
// orchestrator may retry. Rate limits, server errors and transport
// problems are transient; auth failures and rejected content are not.
func classifyProviderError(err error) error {
	var apiErr *openai.APIError
	if stderrors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return errors.NewTransient("openai.transcribe", "provider rate limited", err)
		case apiErr.HTTPStatusCode >= 500:
			return errors.NewTransient("openai.transcribe", "provider server error", err)
		case apiErr.HTTPStatusCode == 401 || apiErr.HTTPStatusCode == 403:
			return errors.Wrap(errors.KindProvider, "openai.transcribe", "authentication rejected", err)
		default:
			// 400/413/415/422: the content itself was rejected and a
			// retry would fail the same way.
			return errors.Wrap(errors.KindProvider, "openai.transcribe", "request rejected", err)
		}
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTransient("openai.transcribe", "attempt timed out", err)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) {
		return errors.NewTransient("openai.transcribe", "transport error", err)
	}
	return errors.Wrap(errors.KindProvider, "openai.transcribe", "transcription failed", err)
}
