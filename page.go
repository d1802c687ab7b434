package arena

import (
	"math/bits"
	"sync/atomic"
	"unsafe"
	"weak"
)

const (
	bitfieldWidth = 64
	// BlocksPerPage is the number of Block[T] slots carried by one Page:
	// one bit per block, with the top bit of the bitfield reserved for the
	// arena-retention flag.
	BlocksPerPage = bitfieldWidth - 1
	maskArenaBit  = uint64(1) << (bitfieldWidth - 1)
)

// pendingFreeList is the arena-owned stack of pages that currently have at
// least one free block. Pages reach it only through a weak.Pointer: once an
// Arena tears itself down it flips alive to false and lets go of its own
// strong reference, so a page racing to rejoin the list after the arena is
// gone observes either alive == false or (once the struct is actually
// collected) pending.Value() == nil, and skips the push either way.
type pendingFreeList[T any] struct {
	head  atomic.Pointer[Page[T]]
	alive atomic.Bool
}

// Page is a fixed-capacity container of BlocksPerPage Block[T] values, a
// single atomic bitfield tracking which blocks are free (and whether the
// arena still holds a stake in the page), and the linkage fields an arena
// uses to thread pages onto its all-pages and pending-free lists.
//
// Bits 0..BlocksPerPage-1 of bitfield are 1 when the corresponding block is
// free. The top bit is the inverted arena-retention bit: 1 while the arena
// holds the page, 0 once it has released it. bitfield is only ever touched
// through the sync/atomic package-level functions below, never field
// access, matching how the teacher's BufMgr treats its own plain uint32
// counters.
type Page[T any] struct {
	bitfield uint64
	blocks   [BlocksPerPage]Block[T]

	next       atomic.Pointer[Page[T]]
	nextFree   atomic.Pointer[Page[T]]
	inFreeList atomic.Bool

	pending weak.Pointer[pendingFreeList[T]]

	// onDeallocate, if set, is invoked synchronously the instant this page's
	// bitfield protocol determines both the arena and every handle have let
	// go of it. Production code leaves this nil; tests use it as the
	// "custom allocator probe" spec.md's S4 scenario calls for, since Go's
	// own garbage collector reclaims the struct on its own schedule and
	// can't be used for a deterministic assertion.
	onDeallocate func()
}

func newPage[T any](pending weak.Pointer[pendingFreeList[T]], next *Page[T], kind pageKind) *Page[T] {
	p := &Page[T]{bitfield: ^uint64(0)}
	p.next.Store(next)
	p.nextFree.Store(next)
	p.inFreeList.Store(true)
	p.pending = pending

	for idx := range p.blocks {
		p.blocks[idx].owner = encodeTaggedPageRef(unsafe.Pointer(p), uint8(idx), kind)
	}
	return p
}

// makeChain allocates n pages, all free, all still retained by the arena,
// linked through next (and, initially, nextFree) from head to tail, and
// returns the head and tail so the arena can splice the chain into its own
// lists. No T destructor ever runs here: the blocks' value fields are their
// zero value, nothing has been allocated out of them yet.
//
// kind tags every block in the chain with the page-kind dispatched by
// Block.release: pageKindShared for pages that back SharedHandle,
// pageKindUnique for pages that back UniqueHandle.
func makeChain[T any](n int, pending *pendingFreeList[T], kind pageKind) (head, tail *Page[T]) {
	if n <= 0 {
		panic("arena: makeChain requires n > 0")
	}

	weakPending := weak.Make(pending)

	tail = newPage[T](weakPending, nil, kind)
	previous := tail
	for i := 0; i < n-1; i++ {
		previous = newPage[T](weakPending, previous, kind)
	}
	return previous, tail
}

// AcquireFreeBlock is the contention-critical primitive: find a free block
// (trailing_zeros over the bitfield never returns the inverted retention bit
// as a free slot before every real block is taken) and race to claim it with
// a fetch-and. Every failed iteration corresponds to some other goroutine's
// successful acquisition, so the loop is lock-free but never starves anyone.
func (p *Page[T]) AcquireFreeBlock() (*Block[T], bool) {
	for {
		bitfield := atomic.LoadUint64(&p.bitfield)
		idx := bits.TrailingZeros64(bitfield)
		if idx >= BlocksPerPage {
			return nil, false
		}

		bit := uint64(1) << uint(idx)
		previous := atomic.AndUint64(&p.bitfield, ^bit)
		if previous&bit != 0 {
			return &p.blocks[idx], true
		}
		// Another goroutine claimed this bit first; retry from the top.
	}
}

// ReleaseBlockAt implements interfaces.BlockReleaser for both page kinds.
// It is invoked once per acquisition, from the last handle drop: flip the
// block's bit back to free, rejoin the pending-free list if this page is not
// already on it, and deallocate the page if that was the last stake anyone
// held in it.
func (p *Page[T]) ReleaseBlockAt(index uint8) {
	bit := uint64(1) << index
	// Exactly one goroutine ever frees a given block between two
	// acquisitions of it, so a plain additive fetch-add is safe here and
	// cheaper than a fetch-and-based read-modify-write loop. AddUint64
	// returns the post-add value, so the bit is already free in the page's
	// publicly-visible state by the time anything below observes it —
	// rejoining the pending-free list only after that point means an
	// allocator that pops this page off the list always finds the bit it
	// is looking for, instead of racing a push that still points at a
	// bitfield with no free bits yet.
	newBitfield := atomic.AddUint64(&p.bitfield, bit)

	// Every release calls rejoinPendingFreeIfNeeded, not just the one that
	// transitions the page from no free blocks to one: a concurrent
	// popExhaustedPage can unlink this page and clear inFreeList after this
	// release already observed inFreeList == true and skipped the rejoin,
	// which would otherwise orphan the page's newly-freed block off the
	// pending-free list until Shutdown. rejoinPendingFreeIfNeeded's own
	// inFreeList guard makes the redundant calls this causes harmless.
	p.rejoinPendingFreeIfNeeded()

	if newBitfield == ^maskArenaBit {
		p.deallocate()
	}
}

func (p *Page[T]) rejoinPendingFreeIfNeeded() {
	if p.inFreeList.Load() {
		return
	}
	if p.inFreeList.Swap(true) {
		// Another release on this page already won the race to reinsert.
		return
	}

	pl := p.pending.Value()
	if pl == nil || !pl.alive.Load() {
		// The arena is gone; this page now exists only to service its
		// outstanding handles and will self-deallocate on the final free.
		return
	}

	for {
		current := pl.head.Load()
		p.nextFree.Store(current)
		if pl.head.CompareAndSwap(current, p) {
			return
		}
	}
}

// dropPage is the arena's formal release of its own stake in this page:
// clear the retention bit, and if every block was already free at that
// instant, this call is the one that deallocates the page. Otherwise
// outstanding handles will eventually trigger the same deallocation through
// ReleaseBlockAt. Exactly one of the two paths performs the final
// transition.
func (p *Page[T]) dropPage() {
	// MASK_ARENA_BIT is its own additive inverse mod 2^64 (it is exactly the
	// top bit), so adding it again is the fetch_sub spec.md's §4.2 asks for.
	// AddUint64 returns the post-add value: the retention bit is already
	// cleared in old, so the "every block free, arena gone" state is
	// old == ^maskArenaBit (all BlocksPerPage free-bits set, retention bit
	// clear), the same target ReleaseBlockAt checks against.
	old := atomic.AddUint64(&p.bitfield, maskArenaBit)
	if old == ^maskArenaBit {
		p.deallocate()
	}
}

func (p *Page[T]) deallocate() {
	if p.onDeallocate != nil {
		p.onDeallocate()
	}
}

// Drop intentionally panics: pages are reclaimed only through the bitfield
// protocol in ReleaseBlockAt/dropPage, never by falling out of scope. This
// guards against a Page ending up owned by value on some goroutine's stack.
func (p *Page[T]) Drop() {
	panic("arena: Page dropped by value; pages are reclaimed only via the bitfield protocol")
}
