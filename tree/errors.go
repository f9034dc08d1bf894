package tree

import "errors"

var (
	// ErrStructureLocked is returned by mutations attempted while an evaluation pass holds the
	// structural lock. Callers retry once the lock is released.
	ErrStructureLocked = errors.New("tree structure is locked")

	// ErrResourceExhausted is returned when an allocation would exceed max nodes or the memory
	// ceiling of the primary tier. Refinement must stop for the current round.
	ErrResourceExhausted = errors.New("tree resources exhausted")

	// ErrDoubleRefine is returned when refining a slot that already has a child.
	ErrDoubleRefine = errors.New("slot already refined")

	// ErrOrphaned is returned when merging a node that was already dropped by an earlier merge.
	ErrOrphaned = errors.New("node already merged")

	ErrTierFull        = errors.New("memory tier full")
	ErrRewardShape     = errors.New("reward array does not match ledger layout")
	ErrVersionMismatch = errors.New("unsupported tree format version")
	ErrCorrupt         = errors.New("tree record corrupt")
)
