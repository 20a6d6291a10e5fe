// Package planner computes part sizes and part lists for multipart
// uploads. It is pure computation; no I/O happens here.
package planner

import (
	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

const (
	// DefaultPartSize is the starting part size (5 MiB) used when the
	// caller does not configure a floor.
	DefaultPartSize int64 = 5 * 1024 * 1024

	// DefaultMaxParts is the protocol-imposed upper bound on the number
	// of parts in one upload session.
	DefaultMaxParts = 10000
)

// PartSize returns the part size to use for a source of totalSize bytes:
// the configured floor, doubled until the resulting part count fits within
// maxParts. Doubling guarantees termination and a monotonically
// non-decreasing result. Non-positive floor or maxParts fall back to the
// defaults.
func PartSize(totalSize, floor int64, maxParts int) int64 {
	partSize := floor
	if partSize <= 0 {
		partSize = DefaultPartSize
	}
	if maxParts <= 0 {
		maxParts = DefaultMaxParts
	}

	for NumParts(totalSize, partSize) > maxParts {
		partSize *= 2
	}
	return partSize
}

// NumParts returns how many parts of partSize bytes cover totalSize bytes
// (ceiling division). Zero-byte sources need zero parts; callers must
// special-case their completion without entering the part-upload path.
func NumParts(totalSize, partSize int64) int {
	if totalSize == 0 {
		return 0
	}
	return int((totalSize + partSize - 1) / partSize)
}

// Plan partitions [0, totalSize) into contiguous, non-overlapping byte
// ranges of partSize bytes (the final part may be shorter), numbered 1..N
// in order, all owned by the given upload session.
func Plan(totalSize, partSize int64, sessionID string) []uploadtypes.PartDescriptor {
	count := NumParts(totalSize, partSize)
	parts := make([]uploadtypes.PartDescriptor, 0, count)

	for i := 0; i < count; i++ {
		offset := int64(i) * partSize
		size := partSize
		if offset+size > totalSize {
			size = totalSize - offset
		}
		parts = append(parts, uploadtypes.PartDescriptor{
			PartNumber: int32(i + 1),
			Offset:     offset,
			Size:       size,
			SessionID:  sessionID,
		})
	}
	return parts
}
