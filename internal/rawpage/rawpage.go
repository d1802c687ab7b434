// Package rawpage gives the arena front-end a way to reason about the
// host's raw page/alignment granularity. It plays the role the teacher's
// storage/page package played wrapping the host B-tree's page type, except
// there is no host type to wrap here — only the direct-I/O block size
// ncw/directio exposes, which the teacher's go.mod already depended on.
package rawpage

import (
	"fmt"

	"github.com/ncw/directio"
)

// SizeHint returns the host's direct-I/O block size, used purely as a
// sizing signal: Arena logs it at construction so an operator can compare
// it against BlocksPerPage*sizeof(Block[T]) and judge whether a Page is
// landing on a cache/TLB-friendly boundary. It never backs a live
// allocation itself.
func SizeHint() (int, error) {
	size := directio.BlockSize
	if size <= 0 {
		return 0, fmt.Errorf("rawpage: host reported a non-positive direct-I/O block size: %d", size)
	}
	return size, nil
}

// Region is a page-aligned byte buffer allocated through directio. It is
// exposed for workloads that want a verifiably OS-page-aligned scratch
// region (for example, to stage serialized block contents before handing
// them to something that requires O_DIRECT-aligned buffers); it does not
// itself participate in Page[T]'s GC-backed block storage.
type Region struct {
	buf []byte
}

// NewRegion allocates one host-block-sized, aligned Region.
func NewRegion() (*Region, error) {
	size, err := SizeHint()
	if err != nil {
		return nil, err
	}
	return &Region{buf: directio.AlignedBlock(size)}, nil
}

// Bytes returns the region's backing storage.
func (r *Region) Bytes() []byte {
	return r.buf
}

// Aligned reports whether the region is still aligned to the host's
// direct-I/O block size.
func (r *Region) Aligned() bool {
	return directio.IsAligned(r.buf)
}
