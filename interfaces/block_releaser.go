// Package interfaces holds the small contracts that sit at the boundary
// between the core allocator (Block, Page, SharedHandle, UniqueHandle) and
// whatever owns a Page: the shared-arena Page kind and any alternative,
// single-owner page kind a host might add. It plays the role the teacher's
// own interfaces package (ParentBufMgr/ParentPage) played at the boundary
// between the buffer manager and its host B-tree.
package interfaces

// BlockReleaser is implemented by every page kind that can own Blocks. A
// decoded TaggedPageRef carries a kind tag; Block.release switches on that
// tag to reach the right BlockReleaser without needing a shared concrete
// page type, mirroring the page-kind dispatch spec.md §4.3 describes for
// the shared-arena Page versus the non-shared (UniqueHandle) variant.
type BlockReleaser interface {
	// ReleaseBlockAt runs the page side of the release protocol for the
	// block at index: flip its bitfield bit free and (for page kinds that
	// participate in a pending-free list) rejoin that list if needed. The
	// caller, Block.release, has already dropped the block's value.
	ReleaseBlockAt(index uint8)
}
