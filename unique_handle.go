package arena

import "sync/atomic"

// UniqueHandle is the non-shared, single-owner handle variant spec.md names
// as an external collaborator: a block it acquires is always exactly
// one-owner, so there is no reference count to maintain, only the same
// acquire/release bit protocol SharedHandle uses underneath. Its backing
// Page is tagged pageKindUnique so Block.release dispatches through the
// same interfaces.BlockReleaser machinery SharedHandle uses, demonstrating
// the page-kind polymorphism spec.md §4.3 describes without duplicating the
// bitfield protocol in a second Page implementation.
type UniqueHandle[T any] struct {
	block   *Block[T]
	dropped atomic.Bool
}

// newUniqueHandle constructs the sole handle to a freshly-acquired unique
// block. As with SharedHandle, acquiring a block whose counter is already
// nonzero is a programming error, not a runtime condition.
func newUniqueHandle[T any](block *Block[T]) *UniqueHandle[T] {
	if atomic.LoadUint64(&block.counter) != 0 {
		panic("arena: acquiring a unique block whose reference counter is not zero")
	}
	atomic.StoreUint64(&block.counter, 1)
	return &UniqueHandle[T]{block: block}
}

// Value returns a pointer to the owned value. Because a UniqueHandle is, by
// construction, the only handle that will ever exist for this block, taking
// a mutable view through it is sound without any interior-mutability
// primitive on T.
func (h *UniqueHandle[T]) Value() *T {
	return &h.block.value
}

// Release drops the handle, running the block's destructor and returning it
// to its page via the same primitive SharedHandle's last-drop uses.
func (h *UniqueHandle[T]) Release() {
	if h.dropped.Swap(true) {
		panic("arena: double release of UniqueHandle")
	}
	atomic.StoreUint64(&h.block.counter, 0)
	h.block.release()
	h.block = nil
}
