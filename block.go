package arena

import (
	"github.com/ryogrid/sharedarena/interfaces"
)

// Block holds storage for one T plus its reference counter and its
// back-reference to the owning page. Blocks are never constructed directly
// by callers; a Page hands out a free Block via AcquireFreeBlock and it is
// returned via SharedHandle/UniqueHandle release.
//
// counter == 0 iff this block's bit in its page's bitfield is 1 (free);
// while counter > 0, value holds a live T. Both invariants are maintained
// entirely by Page and the handle types in this package.
type Block[T any] struct {
	value   T
	counter uint64
	owner   taggedPageRef
}

func closeIfCloser[T any](v T) {
	if c, ok := any(v).(interface{ Close() }); ok {
		c.Close()
	}
}

// releaser decodes the block's owner back-reference and returns it as the
// interfaces.BlockReleaser that produced it. The page-kind tag carried in
// owner is what lets this stay a single dispatch point regardless of
// whether a SharedHandle or a UniqueHandle acquired the block.
func (b *Block[T]) releaser() interfaces.BlockReleaser {
	switch b.owner.kind() {
	case pageKindShared, pageKindUnique:
		return (*Page[T])(b.owner.pagePtr())
	default:
		panic("arena: block owner carries an unrecognized page kind")
	}
}

// release runs the value destructor and the bit-free protocol for this
// block. It is called exactly once per acquisition, from the last handle
// drop.
func (b *Block[T]) release() {
	var zero T
	closeIfCloser(b.value)
	b.value = zero
	b.releaser().ReleaseBlockAt(b.owner.index())
}
