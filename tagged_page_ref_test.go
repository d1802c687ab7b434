package arena

import (
	"testing"
	"unsafe"
)

func TestEncodeTaggedPageRef_RoundTrip(t *testing.T) {
	var dummy uint64
	ptr := unsafe.Pointer(&dummy)

	type args struct {
		index uint8
		kind  pageKind
	}
	tests := []struct {
		name string
		args args
	}{
		{name: "shared, index 0", args: args{index: 0, kind: pageKindShared}},
		{name: "shared, max index", args: args{index: BlocksPerPage - 1, kind: pageKindShared}},
		{name: "unique, mid index", args: args{index: 31, kind: pageKindUnique}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ref := encodeTaggedPageRef(ptr, tt.args.index, tt.args.kind)
			if got := ref.pagePtr(); got != ptr {
				t.Errorf("pagePtr() = %v, want %v", got, ptr)
			}
			if got := ref.index(); got != tt.args.index {
				t.Errorf("index() = %d, want %d", got, tt.args.index)
			}
			if got := ref.kind(); got != tt.args.kind {
				t.Errorf("kind() = %v, want %v", got, tt.args.kind)
			}
		})
	}
}

func TestEncodeTaggedPageRef_NilPointerPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Errorf("encodeTaggedPageRef(nil, ...) did not panic")
		}
	}()
	encodeTaggedPageRef(nil, 0, pageKindShared)
}

func TestEncodeTaggedPageRef_IndexOutOfRangePanics(t *testing.T) {
	var dummy uint64
	defer func() {
		if recover() == nil {
			t.Errorf("encodeTaggedPageRef with an out-of-range index did not panic")
		}
	}()
	// The tag field only has room for 6 bits of index (0-63); 64 is the
	// first value that overflows it, regardless of BlocksPerPage.
	encodeTaggedPageRef(unsafe.Pointer(&dummy), 64, pageKindShared)
}

func TestPageKind_String(t *testing.T) {
	tests := []struct {
		name string
		kind pageKind
		want string
	}{
		{name: "shared", kind: pageKindShared, want: "shared"},
		{name: "unique", kind: pageKindUnique, want: "unique"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.kind.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}
