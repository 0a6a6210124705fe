package audio

import (
	"context"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
)

// ChunkArtifact is one materialized segment, owned by the extractor
// until handed to the orchestrator. Its file lives inside the job
// workspace and disappears with it.
type ChunkArtifact struct {
	Descriptor SegmentDescriptor
	Path       string
	SizeBytes  int64
}

// Extractor slices a source asset into standalone chunk files with
// ffmpeg. Extraction failures indicate a structural input problem and
// are never retried.
type Extractor struct {
	runner           commandRunner
	logger           *logging.Logger
	toleranceSeconds float64
}

// NewExtractor builds an Extractor. toleranceSeconds bounds the allowed
// drift between a chunk's planned and measured duration before a
// warning is logged.
func NewExtractor(logger *logging.Logger, toleranceSeconds float64) *Extractor {
	if toleranceSeconds <= 0 {
		toleranceSeconds = 0.5
	}
	return &Extractor{
		runner:           execRunner{},
		logger:           logger,
		toleranceSeconds: toleranceSeconds,
	}
}

// Extract materializes one segment descriptor into the workspace.
// Output is mono 16 kHz wav, which every supported provider accepts.
func (e *Extractor) Extract(ctx context.Context, asset *Asset, desc SegmentDescriptor, ws *Workspace) (ChunkArtifact, error) {
	source, err := ws.MaterializeSource(asset)
	if err != nil {
		return ChunkArtifact{}, err
	}

	outPath := ws.Path(fmt.Sprintf("chunk_%03d.wav", desc.Index))
	_, stderr, err := e.runner.Run(ctx, "ffmpeg",
		"-y",
		"-i", source,
		"-ss", formatSeconds(desc.StartSeconds),
		"-to", formatSeconds(desc.EndSeconds),
		"-ac", "1",
		"-ar", "16000",
		outPath,
	)
	if err != nil {
		diag := strings.TrimSpace(string(stderr))
		if diag == "" {
			diag = err.Error()
		}
		return ChunkArtifact{}, errors.Wrap(errors.KindExtraction, "extractor.extract",
			fmt.Sprintf("chunk %d extraction failed: %s", desc.Index, diag), err)
	}

	info, err := os.Stat(outPath)
	if err != nil {
		return ChunkArtifact{}, errors.Wrap(errors.KindExtraction, "extractor.extract",
			fmt.Sprintf("chunk %d output missing", desc.Index), err)
	}

	e.verifyDuration(ctx, outPath, desc)

	return ChunkArtifact{
		Descriptor: desc,
		Path:       outPath,
		SizeBytes:  info.Size(),
	}, nil
}

// verifyDuration probes the produced chunk and warns when it drifts
// beyond tolerance from the planned length. Drift is not fatal:
// downstream transcription copes with minor boundary movement.
func (e *Extractor) verifyDuration(ctx context.Context, path string, desc SegmentDescriptor) {
	stdout, _, err := e.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return
	}
	measured, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return
	}
	if drift := math.Abs(measured - desc.Length()); drift > e.toleranceSeconds {
		e.logger.WarnTag("EXTRACT", "chunk %d duration drift %.2fs (planned %.2fs, measured %.2fs)",
			desc.Index, drift, desc.Length(), measured)
	}
}

func formatSeconds(seconds float64) string {
	return strconv.FormatFloat(seconds, 'f', 3, 64)
}
