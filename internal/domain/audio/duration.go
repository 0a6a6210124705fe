package audio

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
	"github.com/radubobirnac/vocallocal-sub003/internal/platform/logging"
)

// Method records which strategy produced a duration.
type Method string

const (
	MethodPrecise     Method = "precise"
	MethodApproximate Method = "approximate"
	MethodEstimated   Method = "estimated"
	MethodFailed      Method = "failed"
)

const minEstimatedMinutes = 0.1

// Resolver determines an asset's duration through an ordered fallback
// chain: ffprobe metadata read, full decode, and for text assets a
// words-per-minute estimate. Callers must treat a MethodFailed result
// as "duration unknown", never as zero.
type Resolver struct {
	runner         commandRunner
	logger         *logging.Logger
	probeTimeout   time.Duration
	wordsPerMinute float64
}

// NewResolver builds a Resolver. probeTimeout bounds the ffprobe call;
// wordsPerMinute drives the text estimator.
func NewResolver(logger *logging.Logger, probeTimeout time.Duration, wordsPerMinute float64) *Resolver {
	if probeTimeout <= 0 {
		probeTimeout = 10 * time.Second
	}
	if wordsPerMinute <= 0 {
		wordsPerMinute = 150
	}
	return &Resolver{
		runner:         execRunner{},
		logger:         logger,
		probeTimeout:   probeTimeout,
		wordsPerMinute: wordsPerMinute,
	}
}

// Resolve returns the asset duration in seconds and the method used.
// On total failure it returns (0, MethodFailed, err).
func (r *Resolver) Resolve(ctx context.Context, asset *Asset) (float64, Method, error) {
	if asset.IsText() {
		return r.estimateFromText(asset)
	}

	if asset.Path != "" {
		if seconds, err := r.probe(ctx, asset.Path); err == nil {
			return seconds, MethodPrecise, nil
		} else {
			r.logger.Debug("ffprobe failed for %s: %v", asset.Path, err)
		}
	}

	if seconds, err := r.decode(asset); err == nil {
		return seconds, MethodApproximate, nil
	} else {
		r.logger.Debug("decode fallback failed: %v", err)
	}

	return 0, MethodFailed, errors.New(errors.KindDuration, "duration.resolve", "all duration strategies failed")
}

// probe reads the container metadata with ffprobe under a bounded
// timeout. Timeouts, non-zero exits and unparsable output are ordinary
// failures that advance the chain.
func (r *Resolver) probe(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()

	stdout, _, err := r.runner.Run(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, err
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(stdout)), 64)
	if err != nil {
		return 0, errors.Wrap(errors.KindDuration, "duration.probe", "unparsable ffprobe output", err)
	}
	if seconds <= 0 {
		return 0, errors.New(errors.KindDuration, "duration.probe", "non-positive duration")
	}
	return seconds, nil
}

// decode measures duration by decoding the whole asset and counting
// samples. Expensive for large files, but works when the container
// metadata is damaged.
func (r *Resolver) decode(asset *Asset) (seconds float64, err error) {
	defer func() {
		// go-mp3 panics on some malformed frames; treat that as an
		// ordinary decode failure.
		if rec := recover(); rec != nil {
			seconds = 0
			err = errors.New(errors.KindDuration, "duration.decode", "decoder panic on malformed input")
		}
	}()

	raw, err := asset.Bytes()
	if err != nil {
		return 0, err
	}

	decoder, err := mp3.NewDecoder(bytes.NewReader(raw))
	if err != nil {
		return 0, errors.Wrap(errors.KindDuration, "duration.decode", "decode failed", err)
	}

	// Length reports decoded bytes: 16-bit stereo, 4 bytes per sample.
	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return 0, errors.New(errors.KindDuration, "duration.decode", "invalid sample rate")
	}
	seconds = float64(decoder.Length()) / float64(sampleRate*4)
	if seconds <= 0 {
		return 0, errors.New(errors.KindDuration, "duration.decode", "empty audio stream")
	}
	return seconds, nil
}

// estimateFromText converts word count into speech time for billing a
// synthesis request before any audio exists. Floored at 0.1 minutes so
// trivial inputs never bill zero.
func (r *Resolver) estimateFromText(asset *Asset) (float64, Method, error) {
	raw, err := asset.Bytes()
	if err != nil {
		return 0, MethodFailed, errors.Wrap(errors.KindDuration, "duration.estimate", "unreadable text asset", err)
	}

	words := len(strings.Fields(string(raw)))
	minutes := float64(words) / r.wordsPerMinute
	if minutes < minEstimatedMinutes {
		minutes = minEstimatedMinutes
	}
	return minutes * 60, MethodEstimated, nil
}
