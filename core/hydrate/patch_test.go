package hydrate

import (
	"bytes"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	fuzz "github.com/google/gofuzz"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func patterned(n int) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(0xa0 + i)
	}
	return b
}

// TestSpliceEveryOffset covers every offset of a buffer spanning several
// machine and EVM words, for both replacement widths, so regions start at
// every residue modulo 8 and 32 and straddle word boundaries.
func TestSpliceEveryOffset(t *testing.T) {
	const size = 3*32 + 7
	for _, width := range []int{common.AddressLength, 32} {
		repl := bytes.Repeat([]byte{0x5a}, width)
		for off := 0; off+width <= size; off++ {
			before := patterned(size)
			buf := patterned(size)
			if err := Splice(buf, uint64(off), repl); err != nil {
				t.Fatalf("width %d offset %d: %v", width, off, err)
			}
			if len(buf) != size {
				t.Fatalf("width %d offset %d: length changed to %d", width, off, len(buf))
			}
			if !bytes.Equal(buf[:off], before[:off]) {
				t.Fatalf("width %d offset %d: prefix modified", width, off)
			}
			if !bytes.Equal(buf[off:off+width], repl) {
				t.Fatalf("width %d offset %d: region not written", width, off)
			}
			if !bytes.Equal(buf[off+width:], before[off+width:]) {
				t.Fatalf("width %d offset %d: suffix modified", width, off)
			}
		}
	}
}

func TestSpliceBoundsRejection(t *testing.T) {
	repl := bytes.Repeat([]byte{0xff}, 32)
	tests := []struct {
		name   string
		size   int
		offset uint64
		want   error
	}{
		{"one past end", 64, 33, ErrPatchBounds},
		{"start at end", 64, 64, ErrPatchBounds},
		{"start past end", 64, 1000, ErrPatchBounds},
		{"short buffer", 31, 0, ErrPatchBounds},
		{"empty buffer", 0, 0, ErrPatchBounds},
		{"wraps", 64, math.MaxUint64 - 10, ErrPatchOverflow},
		{"max offset", 64, math.MaxUint64, ErrPatchOverflow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := patterned(tt.size)
			before := patterned(tt.size)
			err := Splice(buf, tt.offset, repl)
			require.ErrorIs(t, err, tt.want)
			require.Equal(t, before, buf)
		})
	}
}

func TestSpliceExactFit(t *testing.T) {
	buf := make([]byte, 32)
	require.NoError(t, PatchWord(buf, 0, uint256.NewInt(1)))
	require.Equal(t, byte(1), buf[31])

	require.NoError(t, Splice(buf, 32, nil), "empty replacement at end is a no-op")
}

func TestSpliceAliasVisibility(t *testing.T) {
	backing := make([]byte, 64)
	whole := backing[:]
	tail := backing[10:40]

	addr := common.HexToAddress("0x00112233445566778899aabbccddeeff00112233")
	require.NoError(t, PatchAddress(tail, 3, addr))

	require.Equal(t, addr.Bytes(), whole[13:33])
	require.Equal(t, addr.Bytes(), backing[13:33])
	require.Equal(t, make([]byte, 13), whole[:13])
	require.Equal(t, make([]byte, 31), whole[33:])
}

func TestPatchWordBigEndian(t *testing.T) {
	buf := make([]byte, 36)
	require.NoError(t, PatchWord(buf, 4, uint256.NewInt(1000)))
	want := make([]byte, 36)
	want[34], want[35] = 0x03, 0xe8
	require.Equal(t, want, buf)
}

// TestSpliceRandomized checks the locality property on random buffers,
// offsets and payloads.
func TestSpliceRandomized(t *testing.T) {
	f := fuzz.New().NilChance(0).NumElements(0, 200)
	for i := 0; i < 2000; i++ {
		var (
			buf    []byte
			repl   []byte
			offset uint16
		)
		f.Fuzz(&buf)
		f.Fuzz(&repl)
		f.Fuzz(&offset)
		before := append([]byte(nil), buf...)

		err := Splice(buf, uint64(offset), repl)
		end := int(offset) + len(repl)
		if end > len(buf) {
			require.ErrorIs(t, err, ErrPatchBounds)
			require.Equal(t, before, buf)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, before[:offset], buf[:offset])
		require.Equal(t, repl, buf[offset:end])
		require.Equal(t, before[end:], buf[end:])
	}
}

func FuzzSplice(f *testing.F) {
	f.Add(make([]byte, 36), uint64(4), make([]byte, 32))
	f.Add(make([]byte, 20), uint64(1), make([]byte, 20))
	f.Fuzz(func(t *testing.T, buf []byte, offset uint64, repl []byte) {
		before := append([]byte(nil), buf...)
		if err := Splice(buf, offset, repl); err != nil {
			if !bytes.Equal(before, buf) {
				t.Fatalf("failed splice modified the buffer")
			}
			return
		}
		end := offset + uint64(len(repl))
		if !bytes.Equal(buf[:offset], before[:offset]) || !bytes.Equal(buf[end:], before[end:]) {
			t.Fatalf("bytes outside the region changed")
		}
		if !bytes.Equal(buf[offset:end], repl) {
			t.Fatalf("region not written")
		}
	})
}
