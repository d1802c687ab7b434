// Package arena implements a concurrent, page-based slab allocator that
// hands out reference-counted handles to values of a caller-chosen type T.
//
// Fixed-capacity Pages of T-sized Blocks are carved out in batches; a single
// atomic word per Page tracks which Blocks are free and whether the arena
// that owns the Page still holds a stake in it. SharedHandle is a
// shared-ownership handle into one Block: Clone bumps a reference count,
// Release drops it, and the last Release returns the Block to its Page. A
// Page's backing memory is freed exactly when both the owning arena and
// every outstanding handle have released their stake in it.
package arena
