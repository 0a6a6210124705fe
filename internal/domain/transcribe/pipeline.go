package transcribe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/radubobirnac/vocallocal-sub003/internal/domain/audio"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/events"
	"github.com/radubobirnac/vocallocal-sub003/internal/domain/usage"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/config"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
)

// DurationResolver resolves how long an asset plays for.
// *audio.Resolver satisfies it.
type DurationResolver interface {
	Resolve(ctx context.Context, asset *audio.Asset) (float64, audio.Method, error)
}

// ChunkExtractor materializes one segment of an asset into a workspace.
// *audio.Extractor satisfies it.
type ChunkExtractor interface {
	Extract(ctx context.Context, asset *audio.Asset, desc audio.SegmentDescriptor, ws *audio.Workspace) (audio.ChunkArtifact, error)
}

// Pipeline runs the full transcription flow: admission, duration
// resolution, segmentation, extraction, orchestrated transcription and
// the final charge.
type Pipeline struct {
	resolver     DurationResolver
	extractor    ChunkExtractor
	orchestrator *Orchestrator
	meter        *usage.Meter
	provider     Transcriber
	logger       *logging.Logger
	cfg          config.PipelineConfig
}

// NewPipeline wires the pipeline from its collaborators.
func NewPipeline(
	cfg config.PipelineConfig,
	resolver DurationResolver,
	extractor ChunkExtractor,
	meter *usage.Meter,
	provider Transcriber,
	logger *logging.Logger,
) *Pipeline {
	return &Pipeline{
		resolver:     resolver,
		extractor:    extractor,
		orchestrator: NewOrchestrator(logger),
		meter:        meter,
		provider:     provider,
		logger:       logger,
		cfg:          cfg,
	}
}

// FileRequest describes one full-file transcription job.
type FileRequest struct {
	UserID   string
	Plan     string
	Asset    *audio.Asset
	Language string
	Model    string

	// TestMode bypasses the usage meter; used by the sandbox variant.
	TestMode bool
}

// ChunkRequest describes a single pre-chunked upload.
type ChunkRequest struct {
	UserID     string
	Plan       string
	Audio      []byte
	Language   string
	Model      string
	ChunkIndex int
	TestMode   bool
}

func (p *Pipeline) orchestratorConfig() Config {
	return Config{
		MaxConcurrency: p.cfg.MaxConcurrency,
		MaxAttempts:    p.cfg.MaxAttempts,
		AttemptTimeout: p.cfg.AttemptTimeout,
		Backoff: BackoffPolicy{
			Initial:    p.cfg.Backoff.Initial,
			Multiplier: p.cfg.Backoff.Multiplier,
			Max:        p.cfg.Backoff.Max,
		},
	}
}

// release refunds a reservation on a context detached from the job: by
// the time a job has failed its own context may already be cancelled or
// past its deadline, and the refund must still reach the store.
func (p *Pipeline) release(userID string, credits float64) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p.meter.Release(ctx, userID, usage.ServiceTranscription, credits)
}

// ProcessFile runs the whole pipeline for one asset. Admission-time
// and input-validation failures propagate as errors; chunk-level
// failures are absorbed into the JobOutcome instead.
func (p *Pipeline) ProcessFile(ctx context.Context, req FileRequest) (JobOutcome, error) {
	if req.Asset == nil || (req.Asset.Path == "" && len(req.Asset.Data) == 0) {
		return JobOutcome{}, errors.New(errors.KindInvalidInput, "pipeline.process_file", "empty audio asset")
	}

	if p.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.JobTimeout)
		defer cancel()
	}

	jobID := uuid.NewString()
	sizeBytes := req.Asset.SizeBytes()

	// One resolved duration drives admission, planning and the final
	// charge; recomputing it later would let the two drift apart.
	seconds, method, err := p.resolver.Resolve(ctx, req.Asset)
	billedMinutes := seconds / 60
	if method == audio.MethodFailed {
		p.logger.WarnTag("PIPELINE", "job %s duration unresolved, using size estimate: %v", jobID, err)
		billedMinutes = 0
		seconds = p.meter.EstimateMinutesFromSize(sizeBytes) * 60
	}

	estimated := p.meter.Credits(req.Plan, billedMinutes)
	if billedMinutes == 0 {
		estimated = p.meter.Credits(req.Plan, p.meter.EstimateMinutesFromSize(sizeBytes))
	}
	if !req.TestMode {
		if err := p.meter.CheckAdmission(ctx, req.UserID, usage.ServiceTranscription, req.Plan, estimated); err != nil {
			return JobOutcome{}, err
		}
	}

	outcome, err := p.runJob(ctx, jobID, req, seconds)
	if err != nil {
		if !req.TestMode {
			p.release(req.UserID, estimated)
		}
		return JobOutcome{}, err
	}

	if !req.TestMode {
		if outcome.SucceededCount > 0 {
			if _, err := p.meter.Charge(ctx, req.UserID, usage.ServiceTranscription, req.Plan, billedMinutes, sizeBytes); err != nil {
				p.logger.Error("job %s charge failed: %v", jobID, err)
			}
		} else {
			// Nothing was delivered; hand the reservation back.
			p.release(req.UserID, estimated)
		}
	}

	events.Publish(events.EventJobCompleted, events.JobEventData{
		JobID:      jobID,
		UserID:     req.UserID,
		ChunkCount: len(outcome.OrderedText),
		Status:     string(outcome.Status),
	})

	if outcome.Status == StatusFailure {
		return outcome, errors.New(errors.KindProvider, "pipeline.process_file", "could not process audio")
	}
	return outcome, nil
}

// runJob performs planning, extraction and orchestration inside a
// job-scoped workspace.
func (p *Pipeline) runJob(ctx context.Context, jobID string, req FileRequest, seconds float64) (JobOutcome, error) {
	descriptors, err := audio.Plan(seconds, p.cfg.SegmentSeconds)
	if err != nil {
		return JobOutcome{}, err
	}

	ws, err := audio.NewWorkspace(p.cfg.WorkspaceRoot)
	if err != nil {
		return JobOutcome{}, err
	}
	defer ws.Close()

	events.Publish(events.EventJobStarted, events.JobEventData{
		JobID:           jobID,
		UserID:          req.UserID,
		DurationSeconds: seconds,
		ChunkCount:      len(descriptors),
	})
	p.logger.InfoTag("PIPELINE", "job %s: %.1fs of audio in %d chunk(s)", jobID, seconds, len(descriptors))

	// Extraction failures are structural input problems: the chunk is
	// failed immediately, without retry, while its siblings continue.
	artifacts := make([]audio.ChunkArtifact, 0, len(descriptors))
	extractErrs := make(map[int]error)
	for _, desc := range descriptors {
		artifact, err := p.extractor.Extract(ctx, req.Asset, desc, ws)
		if err != nil {
			p.logger.WarnTag("PIPELINE", "job %s chunk %d extraction failed: %v", jobID, desc.Index, err)
			extractErrs[desc.Index] = err
			artifacts = append(artifacts, audio.ChunkArtifact{Descriptor: desc})
			continue
		}
		artifacts = append(artifacts, artifact)
	}

	fn := func(attemptCtx context.Context, artifact audio.ChunkArtifact) (string, error) {
		if err, failed := extractErrs[artifact.Descriptor.Index]; failed {
			return "", err
		}
		data, err := readArtifact(artifact)
		if err != nil {
			return "", err
		}
		return p.provider.Transcribe(attemptCtx, data, req.Language, req.Model)
	}

	outcome := p.orchestrator.Run(ctx, artifacts, fn, p.orchestratorConfig())
	p.publishChunkEvents(jobID, outcome)
	return outcome, nil
}

func (p *Pipeline) publishChunkEvents(jobID string, outcome JobOutcome) {
	for _, result := range outcome.Results {
		data := events.ChunkEventData{
			JobID:    jobID,
			Index:    result.Index,
			Attempts: result.Attempts,
		}
		if result.Err != nil {
			data.Error = result.Err.Error()
			events.Publish(events.EventChunkFailed, data)
			continue
		}
		events.Publish(events.EventChunkCompleted, data)
	}
}

// ProcessChunk transcribes a single pre-chunked upload with the same
// retry policy and metering as full jobs.
func (p *Pipeline) ProcessChunk(ctx context.Context, req ChunkRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", errors.New(errors.KindInvalidInput, "pipeline.process_chunk", "empty audio payload")
	}

	sizeBytes := int64(len(req.Audio))
	seconds, method, _ := p.resolver.Resolve(ctx, &audio.Asset{Data: req.Audio, ContentType: "audio/mpeg"})
	billedMinutes := seconds / 60
	if method == audio.MethodFailed {
		billedMinutes = 0
	}

	estimated := p.meter.Credits(req.Plan, billedMinutes)
	if billedMinutes == 0 {
		estimated = p.meter.Credits(req.Plan, p.meter.EstimateMinutesFromSize(sizeBytes))
	}
	if !req.TestMode {
		if err := p.meter.CheckAdmission(ctx, req.UserID, usage.ServiceTranscription, req.Plan, estimated); err != nil {
			return "", err
		}
	}

	text, attempts, err := runAttempts(ctx, p.orchestratorConfig(), func(attemptCtx context.Context) (string, error) {
		return p.provider.Transcribe(attemptCtx, req.Audio, req.Language, req.Model)
	})
	if err != nil {
		if !req.TestMode {
			p.release(req.UserID, estimated)
		}
		return "", fmt.Errorf("chunk %d failed after %d attempt(s): %w", req.ChunkIndex, attempts, err)
	}

	if !req.TestMode {
		if _, err := p.meter.Charge(ctx, req.UserID, usage.ServiceTranscription, req.Plan, billedMinutes, sizeBytes); err != nil {
			p.logger.Error("chunk charge failed for %s: %v", req.UserID, err)
		}
	}
	return text, nil
}

func readArtifact(artifact audio.ChunkArtifact) ([]byte, error) {
	asset := audio.Asset{Path: artifact.Path}
	data, err := asset.Bytes()
	if err != nil {
		return nil, errors.Wrap(errors.KindExtraction, "pipeline.read_artifact",
			fmt.Sprintf("chunk %d artifact unreadable", artifact.Descriptor.Index), err)
	}
	return data, nil
}
