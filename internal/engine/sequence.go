package engine

import (
	"fmt"
)

// SequenceValidator validates source sequences per partition. Fill streams
// are strictly contiguous per tournament. Commands without an upstream
// sequence (admin and judge calls arriving over HTTP, price captures)
// carry sequence 0 and skip validation entirely.
// Not thread-safe — only accessed from the single-threaded engine loop.
type SequenceValidator struct {
	expectedNextSeq map[string]int64 // partition -> next expected sequence
}

func NewSequenceValidator() *SequenceValidator {
	return &SequenceValidator{
		expectedNextSeq: make(map[string]int64),
	}
}

// ValidateSequence checks strict source sequence ordering for a partition.
func (sv *SequenceValidator) ValidateSequence(
	partition string,
	sourceSequence int64,
	isDuplicate bool,
) error {
	if sourceSequence == 0 {
		// Unsequenced command
		return nil
	}

	expected := sv.expectedNextSeq[partition]
	if expected == 0 {
		// First command on this partition establishes the stream origin
		sv.expectedNextSeq[partition] = sourceSequence + 1
		return nil
	}

	if sourceSequence < expected {
		if isDuplicate {
			// Already processed - expected on redelivery
			return nil
		}
		return fmt.Errorf("out-of-order command: partition=%s, expected=%d, got=%d",
			partition, expected, sourceSequence)
	}

	if sourceSequence == expected {
		sv.expectedNextSeq[partition] = expected + 1
		return nil
	}

	// sourceSequence > expected - gap detected
	return fmt.Errorf("sequence gap: partition=%s, expected=%d, got=%d",
		partition, expected, sourceSequence)
}

// Partitions exports all partition cursors (for snapshots).
func (sv *SequenceValidator) Partitions() map[string]int64 {
	out := make(map[string]int64, len(sv.expectedNextSeq))
	for k, v := range sv.expectedNextSeq {
		out[k] = v
	}
	return out
}

// RestorePartition re-seeds a partition cursor during recovery.
func (sv *SequenceValidator) RestorePartition(partition string, nextSeq int64) {
	sv.expectedNextSeq[partition] = nextSeq
}
