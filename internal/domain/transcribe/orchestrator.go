package transcribe

import (
	"context"
	stderrors "errors"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/audio"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
)

// Config bounds concurrency and retry behavior for one job.
type Config struct {
	MaxConcurrency int
	MaxAttempts    int
	AttemptTimeout time.Duration
	Backoff        BackoffPolicy
}

// BackoffPolicy drives the delay between retries of a transient
// failure.
type BackoffPolicy struct {
	Initial    time.Duration
	Multiplier float64
	Max        time.Duration
}

func (c Config) normalized() Config {
	if c.MaxConcurrency < 1 {
		c.MaxConcurrency = 1
	}
	if c.MaxAttempts < 1 {
		c.MaxAttempts = 1
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = 60 * time.Second
	}
	if c.Backoff.Initial <= 0 {
		c.Backoff.Initial = time.Second
	}
	if c.Backoff.Multiplier < 1 {
		c.Backoff.Multiplier = 2
	}
	if c.Backoff.Max <= 0 {
		c.Backoff.Max = 30 * time.Second
	}
	return c
}

// ChunkResult is the terminal outcome for one chunk. Exactly one of
// Text and Err is meaningful.
type ChunkResult struct {
	Index    int
	Text     string
	Err      error
	Attempts int
}

// Status summarizes a job.
type Status string

const (
	StatusSuccess        Status = "success"
	StatusPartialSuccess Status = "partial_success"
	StatusFailure        Status = "failure"
)

// JobOutcome aggregates chunk results in index order. Failed chunks
// leave an empty placeholder in OrderedText so successful neighbors
// keep their positions.
type JobOutcome struct {
	OrderedText    []string
	Results        []ChunkResult
	SucceededCount int
	FailedIndices  []int
	Status         Status
}

// Text joins the ordered chunk texts into the final transcript.
func (o JobOutcome) Text() string {
	parts := make([]string, 0, len(o.OrderedText))
	for _, part := range o.OrderedText {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, " ")
}

// ChunkFunc transcribes one materialized chunk.
type ChunkFunc func(ctx context.Context, artifact audio.ChunkArtifact) (string, error)

// Orchestrator drives bounded-concurrency transcription of a job's
// chunks. One chunk failing terminally never aborts the others: a
// large transcript losing one chunk is still worth returning.
type Orchestrator struct {
	logger *logging.Logger
}

// NewOrchestrator builds an Orchestrator.
func NewOrchestrator(logger *logging.Logger) *Orchestrator {
	return &Orchestrator{logger: logger}
}

// Run dispatches artifacts in index order onto a worker pool of size
// MaxConcurrency and reassembles results by index regardless of
// completion order. Cancellation stops new attempts but keeps every
// result already produced.
func (o *Orchestrator) Run(ctx context.Context, artifacts []audio.ChunkArtifact, fn ChunkFunc, cfg Config) JobOutcome {
	cfg = cfg.normalized()

	size := 0
	for _, artifact := range artifacts {
		if artifact.Descriptor.Index >= size {
			size = artifact.Descriptor.Index + 1
		}
	}

	results := make([]ChunkResult, 0, len(artifacts))
	var resultsMu sync.Mutex

	sem := semaphore.NewWeighted(int64(cfg.MaxConcurrency))
	var wg sync.WaitGroup

	for _, artifact := range artifacts {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: stop scheduling, record the rest as
			// failed without touching the provider.
			resultsMu.Lock()
			results = append(results, ChunkResult{
				Index: artifact.Descriptor.Index,
				Err:   err,
			})
			resultsMu.Unlock()
			continue
		}

		wg.Add(1)
		go func(artifact audio.ChunkArtifact) {
			defer wg.Done()
			defer sem.Release(1)

			text, attempts, err := runAttempts(ctx, cfg, func(attemptCtx context.Context) (string, error) {
				return fn(attemptCtx, artifact)
			})
			if err != nil {
				o.logger.WarnTag("ORCH", "chunk %d failed after %d attempt(s): %v",
					artifact.Descriptor.Index, attempts, err)
			}

			resultsMu.Lock()
			results = append(results, ChunkResult{
				Index:    artifact.Descriptor.Index,
				Text:     text,
				Err:      err,
				Attempts: attempts,
			})
			resultsMu.Unlock()
		}(artifact)
	}

	wg.Wait()
	return assemble(results, size)
}

// chunkState is the retry state machine for a single chunk.
type chunkState int

const (
	statePending chunkState = iota
	stateAttempting
	stateBackoff
	stateTerminal
)

// runAttempts executes one chunk's attempt loop: Pending, Attempting,
// Backoff, Terminal. Only transient failures re-enter Attempting, and
// cancellation during backoff goes straight to Terminal.
func runAttempts(ctx context.Context, cfg Config, attempt func(context.Context) (string, error)) (string, int, error) {
	var (
		state    = statePending
		attempts = 0
		delay    = cfg.Backoff.Initial
		text     string
		lastErr  error
	)

	for state != stateTerminal {
		switch state {
		case statePending:
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				state = stateTerminal
				break
			}
			state = stateAttempting

		case stateAttempting:
			attempts++
			attemptCtx, cancel := context.WithTimeout(ctx, cfg.AttemptTimeout)
			result, err := attempt(attemptCtx)
			cancel()

			if err == nil {
				text = result
				lastErr = nil
				state = stateTerminal
				break
			}

			lastErr = err
			if !retryable(ctx, err) || attempts >= cfg.MaxAttempts {
				state = stateTerminal
				break
			}
			state = stateBackoff

		case stateBackoff:
			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
				state = stateAttempting
			case <-ctx.Done():
				timer.Stop()
				lastErr = ctx.Err()
				state = stateTerminal
			}
			delay = time.Duration(float64(delay) * cfg.Backoff.Multiplier)
			if delay > cfg.Backoff.Max {
				delay = cfg.Backoff.Max
			}
		}
	}

	return text, attempts, lastErr
}

// retryable treats classified transient errors and per-attempt
// timeouts as retryable, but never retries once the job context itself
// is gone.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	if errors.IsTransient(err) {
		return true
	}
	return stderrors.Is(err, context.DeadlineExceeded)
}

func assemble(results []ChunkResult, size int) JobOutcome {
	outcome := JobOutcome{
		OrderedText: make([]string, size),
		Results:     results,
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Index < results[j].Index })

	for _, result := range results {
		if result.Err != nil {
			outcome.FailedIndices = append(outcome.FailedIndices, result.Index)
			continue
		}
		outcome.SucceededCount++
		if result.Index < size {
			outcome.OrderedText[result.Index] = result.Text
		}
	}

	switch {
	case len(results) == 0 || len(outcome.FailedIndices) == 0:
		outcome.Status = StatusSuccess
	case outcome.SucceededCount == 0:
		outcome.Status = StatusFailure
	default:
		outcome.Status = StatusPartialSuccess
	}
	return outcome
}
