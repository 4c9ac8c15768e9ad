package hydrate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Splice overwrites len(repl) bytes of buf starting at offset. The write goes
// to buf's backing array, so every slice sharing that array observes it. The
// length of buf never changes and no byte outside [offset, offset+len(repl))
// is touched. On error buf is left as it was.
func Splice(buf []byte, offset uint64, repl []byte) error {
	n := uint64(len(repl))
	end := offset + n
	if end < offset {
		return fmt.Errorf("%w: offset %d length %d", ErrPatchOverflow, offset, n)
	}
	if end > uint64(len(buf)) {
		return fmt.Errorf("%w: [%d, %d) in buffer of %d bytes", ErrPatchBounds, offset, end, len(buf))
	}
	copy(buf[offset:end], repl)
	return nil
}

// PatchAddress writes the 20 raw bytes of addr at offset.
func PatchAddress(buf []byte, offset uint64, addr common.Address) error {
	return Splice(buf, offset, addr[:])
}

// PatchWord writes v as a 32-byte big-endian word at offset.
func PatchWord(buf []byte, offset uint64, v *uint256.Int) error {
	word := v.Bytes32()
	return Splice(buf, offset, word[:])
}
