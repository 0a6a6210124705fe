package audio

import (
	"math"

	"github.com/radubobirnac/vocallocal-sub003/internal/platform/errors"
)

// SegmentDescriptor is one time-bounded slice of an asset. Descriptors
// for an asset form a dense 0..N-1 index range with contiguous,
// gap-free offsets.
type SegmentDescriptor struct {
	Index        int
	StartSeconds float64
	EndSeconds   float64
}

// Length returns the segment duration in seconds.
func (d SegmentDescriptor) Length() float64 {
	return d.EndSeconds - d.StartSeconds
}

// Plan partitions a duration into ceil(duration/segment) descriptors.
// The final segment absorbs the remainder and may be shorter than the
// nominal length. Pure function: identical inputs yield identical
// plans, which resumability and test reproducibility depend on.
func Plan(durationSeconds, segmentSeconds float64) ([]SegmentDescriptor, error) {
	if durationSeconds <= 0 {
		return nil, errors.New(errors.KindInvalidInput, "planner.plan", "duration must be positive")
	}
	if segmentSeconds <= 0 {
		return nil, errors.New(errors.KindInvalidInput, "planner.plan", "segment length must be positive")
	}

	count := int(math.Ceil(durationSeconds / segmentSeconds))
	descriptors := make([]SegmentDescriptor, 0, count)
	for i := 0; i < count; i++ {
		start := float64(i) * segmentSeconds
		end := start + segmentSeconds
		if end > durationSeconds {
			end = durationSeconds
		}
		descriptors = append(descriptors, SegmentDescriptor{
			Index:        i,
			StartSeconds: start,
			EndSeconds:   end,
		})
	}
	return descriptors, nil
}
