package upload

import (
	"context"
	"sort"

	"github.com/awslabs/visual-asset-management-system-sub005/uploadtypes"
)

// inflightPart pairs a launched part with the cancellation handle for its
// network operation, so pause and cancel can abort exactly that call
// without affecting siblings.
type inflightPart struct {
	desc   uploadtypes.PartDescriptor
	cancel context.CancelFunc
}

// transferQueue tracks the three disjoint part collections of one task:
// queued (not yet started), inProgress (executing, each with its own
// cancellation handle), and completed (receipts). It is not
// self-synchronizing; the owning task's mutex guards every method.
type transferQueue struct {
	queued     []uploadtypes.PartDescriptor
	inProgress map[int32]*inflightPart
	completed  map[int32]uploadtypes.CompletedPart

	loaded int64
	total  int64
}

func newTransferQueue(total int64) *transferQueue {
	return &transferQueue{
		inProgress: make(map[int32]*inflightPart),
		completed:  make(map[int32]uploadtypes.CompletedPart),
		total:      total,
	}
}

// enqueue appends parts to the back of the pending queue.
func (q *transferQueue) enqueue(parts ...uploadtypes.PartDescriptor) {
	q.queued = append(q.queued, parts...)
}

// requeueFront moves descriptors back to the front of the pending queue,
// ordered by part number, so they are retried first on resume.
func (q *transferQueue) requeueFront(parts []uploadtypes.PartDescriptor) {
	if len(parts) == 0 {
		return
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})

	combined := make([]uploadtypes.PartDescriptor, 0, len(parts)+len(q.queued))
	combined = append(combined, parts...)
	combined = append(combined, q.queued...)
	q.queued = combined
}

// next pops the head of the pending queue.
func (q *transferQueue) next() (uploadtypes.PartDescriptor, bool) {
	if len(q.queued) == 0 {
		return uploadtypes.PartDescriptor{}, false
	}
	desc := q.queued[0]
	q.queued = q.queued[1:]
	return desc, true
}

// removeQueued removes a descriptor by part number from the pending
// queue. It handles the part whose upload succeeded after a pause had
// already requeued it.
func (q *transferQueue) removeQueued(partNumber int32) {
	for i, desc := range q.queued {
		if desc.PartNumber == partNumber {
			q.queued = append(q.queued[:i], q.queued[i+1:]...)
			return
		}
	}
}

// track records a launched part with its cancellation handle.
func (q *transferQueue) track(entry *inflightPart) {
	q.inProgress[entry.desc.PartNumber] = entry
}

// untrack removes a launched part from the in-progress set, reporting
// whether this exact launch was still tracked. A part drained by pause or
// cancel, or relaunched by a newer run, is no longer tracked when the old
// handler runs.
func (q *transferQueue) untrack(entry *inflightPart) bool {
	if q.inProgress[entry.desc.PartNumber] != entry {
		return false
	}
	delete(q.inProgress, entry.desc.PartNumber)
	return true
}

// drainInFlight aborts every in-progress part's network operation, clears
// the in-progress set, and returns the drained descriptors.
func (q *transferQueue) drainInFlight() []uploadtypes.PartDescriptor {
	descs := make([]uploadtypes.PartDescriptor, 0, len(q.inProgress))
	for _, part := range q.inProgress {
		part.cancel()
		descs = append(descs, part.desc)
	}
	q.inProgress = make(map[int32]*inflightPart)
	return descs
}

// capacity reports how many additional launches fit under limit.
func (q *transferQueue) capacity(limit int) int {
	return limit - len(q.inProgress)
}

// complete records a receipt and adds size to the bytes-loaded
// accounting.
func (q *transferQueue) complete(part uploadtypes.CompletedPart, size int64) {
	q.completed[part.PartNumber] = part
	q.loaded += size
}

// isCompleted reports whether a receipt exists for the part number.
func (q *transferQueue) isCompleted(partNumber int32) bool {
	_, ok := q.completed[partNumber]
	return ok
}

// settled reports whether nothing is pending or in flight.
func (q *transferQueue) settled() bool {
	return len(q.queued) == 0 && len(q.inProgress) == 0
}

// receipts returns the completed-part receipts sorted ascending by part
// number, as the finalize call requires.
func (q *transferQueue) receipts() []uploadtypes.CompletedPart {
	parts := make([]uploadtypes.CompletedPart, 0, len(q.completed))
	for _, part := range q.completed {
		parts = append(parts, part)
	}
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
	return parts
}
