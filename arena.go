package arena

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/ryogrid/sharedarena/internal/rawpage"
)

// errShutdown is returned (wrapped in an ArenaError) by AllocShared and
// AllocUnique once Shutdown has been called.
var errShutdown = errors.New("arena has been shut down")

// ArenaError reports a request made after shutdown, the one fallible
// condition AllocShared and AllocUnique return as an error. A failed
// page-chain allocation is not reported through it: allocateChain's error is
// passed to lo.Must2, which panics. It follows the teacher's BLTErr
// convention of naming the failing operation alongside the cause.
type ArenaError struct {
	Op  string
	Err error
}

func (e *ArenaError) Error() string { return fmt.Sprintf("arena: %s: %v", e.Op, e.Err) }
func (e *ArenaError) Unwrap() error { return e.Err }

// ArenaConfig controls how an Arena seeds and grows its page chain.
type ArenaConfig struct {
	// InitialPages is how many pages NewArena carves out up front.
	InitialPages int
	// GrowthPages is how many additional pages are carved out each time
	// AllocShared/AllocUnique find the pending-free list empty. Defaults to
	// InitialPages when left at zero.
	GrowthPages int
	// Logger receives structured log records about page-chain growth and
	// shutdown. Defaults to slog.Default().
	Logger *slog.Logger
}

// Option configures an ArenaConfig; see WithInitialPages, WithGrowthPages
// and WithLogger.
type Option func(*ArenaConfig)

func WithInitialPages(n int) Option { return func(c *ArenaConfig) { c.InitialPages = n } }
func WithGrowthPages(n int) Option  { return func(c *ArenaConfig) { c.GrowthPages = n } }
func WithLogger(l *slog.Logger) Option {
	return func(c *ArenaConfig) { c.Logger = l }
}

// Arena owns the list of Pages it has carved out, refills that list on
// demand, and is the entry point callers use instead of touching Page and
// Block directly: alloc_shared(value), in spec.md §1's words.
//
// Arena is explicitly the "external collaborator" spec.md's core leaves
// unspecified beyond its contract (§6); everything it does beyond that
// contract — page-chain growth policy, logging, configuration — is this
// module's own addition, built in the teacher's idiom rather than handed
// down by spec.md.
type Arena[T any] struct {
	id     uuid.UUID
	cfg    ArenaConfig
	logger *slog.Logger

	// mu serializes growth and the all-pages bookkeeping it updates; the
	// exhausted-page unlink (popExhaustedPage) is a plain CAS and does not
	// take it. It is never held across a Page/Block primitive,
	// which stay fully lock-free per spec.md's concurrency model. The
	// Arena front-end itself is explicitly out of that scope (spec.md §1).
	mu      sync.Mutex
	allHead *Page[T]
	allTail *Page[T]

	// pending and uniquePending are separate stacks: a released block must
	// rejoin the list matching its page's kind tag, or AllocShared could
	// hand out a block a UniqueHandle still thinks it owns exclusively.
	pending       *pendingFreeList[T]
	uniquePending *pendingFreeList[T]
	down          atomic.Bool
}

func allocateChain[T any](n int, pending *pendingFreeList[T], kind pageKind) (head, tail *Page[T], err error) {
	if n <= 0 {
		return nil, nil, fmt.Errorf("page count must be positive, got %d", n)
	}
	head, tail = makeChain[T](n, pending, kind)
	return head, tail, nil
}

// NewArena constructs an Arena with its initial page chain already carved
// out and linked into both the all-pages and pending-free lists.
func NewArena[T any](opts ...Option) *Arena[T] {
	cfg := ArenaConfig{InitialPages: 1}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.InitialPages <= 0 {
		cfg.InitialPages = 1
	}
	cfg.GrowthPages = lo.Ternary(cfg.GrowthPages > 0, cfg.GrowthPages, cfg.InitialPages)
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	a := &Arena[T]{
		id:            uuid.New(),
		cfg:           cfg,
		logger:        cfg.Logger,
		pending:       &pendingFreeList[T]{},
		uniquePending: &pendingFreeList[T]{},
	}
	a.pending.alive.Store(true)
	a.uniquePending.alive.Store(true)

	head, tail := lo.Must2(allocateChain[T](cfg.InitialPages, a.pending, pageKindShared))
	a.allHead, a.allTail = head, tail
	a.pending.head.Store(head)

	if hint, err := rawpage.SizeHint(); err == nil {
		a.logger.Debug("arena created",
			"arena_id", a.id,
			"blocks_per_page", BlocksPerPage,
			"block_bytes", int(unsafe.Sizeof(Block[T]{})),
			"host_block_size_hint", hint,
			"initial_pages", cfg.InitialPages,
		)
	} else {
		a.logger.Debug("arena created", "arena_id", a.id, "initial_pages", cfg.InitialPages)
	}

	return a
}

// grow carves out cfg.GrowthPages more pages tagged kind and splices them
// onto pending. The nil check is only an optimization to skip redundant
// growth when a concurrent release already refilled the list; the splice
// itself is a plain CAS append, safe regardless. Shared by AllocShared and
// AllocUnique's growth paths, which differ only in which pending list and
// page kind they operate on.
func (a *Arena[T]) grow(pending *pendingFreeList[T], kind pageKind, label string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if pending.head.Load() != nil {
		return
	}

	head, tail := lo.Must2(allocateChain[T](a.cfg.GrowthPages, pending, kind))

	for {
		current := pending.head.Load()
		tail.nextFree.Store(current)
		if pending.head.CompareAndSwap(current, head) {
			break
		}
	}

	if a.allTail != nil {
		a.allTail.next.Store(head)
	} else {
		a.allHead = head
	}
	a.allTail = tail

	a.logger.Info("arena grew", "arena_id", a.id, "pool", label, "added_pages", a.cfg.GrowthPages)
}

// popExhaustedPage unlinks page from pending once it has no free blocks
// left. It is a plain CAS, not a mutex: if the head has already moved on
// (another goroutine beat us to it, or a release pushed a fresh page in
// front of it) we simply leave page where it is and let whoever observes it
// next retry. As with the core's own pending-free push, this accepts the
// same ABA tradeoff spec.md's ABA-considerations section accepts for it,
// deferred to the arena implementation by design.
func (a *Arena[T]) popExhaustedPage(pending *pendingFreeList[T], page *Page[T]) {
	next := page.nextFree.Load()
	if pending.head.CompareAndSwap(page, next) {
		page.inFreeList.Store(false)
	}
}

// AllocShared acquires a free block from the pending-free list (growing the
// arena if it is empty), writes value into it, and returns a SharedHandle
// with an initial reference count of one.
func (a *Arena[T]) AllocShared(value T) (*SharedHandle[T], error) {
	if a.down.Load() {
		return nil, &ArenaError{Op: "AllocShared", Err: errShutdown}
	}

	for {
		page := a.pending.head.Load()
		if page == nil {
			a.grow(a.pending, pageKindShared, "shared")
			continue
		}

		block, ok := page.AcquireFreeBlock()
		if !ok {
			a.popExhaustedPage(a.pending, page)
			continue
		}

		block.value = value
		return newSharedHandle(page, block), nil
	}
}

// AllocUnique is AllocShared's single-owner counterpart: it carves its page
// chain tagged pageKindUnique and draws from its own pending-free stack,
// since a block's page-kind tag is fixed for the page's lifetime and must
// not cross into the pageKindShared pool.
func (a *Arena[T]) AllocUnique(value T) (*UniqueHandle[T], error) {
	if a.down.Load() {
		return nil, &ArenaError{Op: "AllocUnique", Err: errShutdown}
	}

	for {
		page := a.uniquePending.head.Load()
		if page == nil {
			a.grow(a.uniquePending, pageKindUnique, "unique")
			continue
		}

		block, ok := page.AcquireFreeBlock()
		if !ok {
			a.popExhaustedPage(a.uniquePending, page)
			continue
		}

		block.value = value
		return newUniqueHandle(block), nil
	}
}

// Shutdown releases the arena's own stake in every page it owns (spec.md
// §4.2's drop_page, applied across the whole all-pages list) and marks the
// pending-free list dead so any page still servicing outstanding handles
// skips rejoining it. Safe to call more than once; only the first call has
// an effect.
func (a *Arena[T]) Shutdown() {
	if a.down.Swap(true) {
		return
	}
	a.pending.alive.Store(false)
	a.uniquePending.alive.Store(false)

	for page := a.allHead; page != nil; {
		// next must be read before dropPage: a fully-idle page's dropPage
		// call may be the one that lets it become unreachable.
		next := page.next.Load()
		page.dropPage()
		page = next
	}
	a.allHead, a.allTail = nil, nil

	a.logger.Info("arena shut down", "arena_id", a.id)
}

// WriteDiagnostics writes a point-in-time, best-effort report of how many
// pages this arena owns and how many currently have a free block. It takes
// no lock and is only approximate under concurrent allocation traffic,
// exactly like the teacher's own commented-out diagnostic log lines.
//
// The report is staged through a rawpage.Region — an OS-page-aligned
// scratch buffer — before being handed to w, the way an operator piping
// diagnostics into an O_DIRECT-backed log file would need it staged. A
// report too large for one region, or a host that can't hand out an
// aligned region at all, falls back to writing directly.
func (a *Arena[T]) WriteDiagnostics(w io.Writer) error {
	totalPages := 0
	for page := a.allHead; page != nil; page = page.next.Load() {
		totalPages++
	}

	pendingPages := 0
	for page := a.pending.head.Load(); page != nil; page = page.nextFree.Load() {
		pendingPages++
	}
	for page := a.uniquePending.head.Load(); page != nil; page = page.nextFree.Load() {
		pendingPages++
	}

	report := fmt.Sprintf("arena %s: %d pages, %d with a free block\n", a.id, totalPages, pendingPages)

	region, err := rawpage.NewRegion()
	if err != nil || len(report) > len(region.Bytes()) {
		_, err := io.WriteString(w, report)
		return err
	}
	if !region.Aligned() {
		a.logger.Warn("diagnostics staging region unexpectedly unaligned", "arena_id", a.id)
	}

	n := copy(region.Bytes(), report)
	_, err = w.Write(region.Bytes()[:n])
	return err
}
