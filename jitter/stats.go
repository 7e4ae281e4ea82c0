package jitter

// Stats is a read-only snapshot of the buffer's drop/wrap counters.
type Stats struct {
	DupDrops    uint64
	LateDrops   uint64
	ParseErrors uint64
	SeqWraps    uint64
}
