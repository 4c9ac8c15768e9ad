package hydrate

import (
	"encoding/binary"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Op is the flag byte that opens every hydrate command.
type Op byte

const (
	OpSelfAddress Op = iota
	OpCallerAddress
	OpOriginAddress
	OpSelfBalance
	OpCallerBalance
	OpOriginBalance
	OpAccountBalance
	OpSelfTokenBalance
	OpCallerTokenBalance
	OpOriginTokenBalance
	OpAccountTokenBalance
	OpTargetCaller
	OpTargetOrigin
	OpValueSelfBalance
)

const (
	flagLen   = 1
	indexLen  = 1
	offsetLen = 2
	addrLen   = common.AddressLength
)

var opNames = [...]string{
	OpSelfAddress:         "SELF_ADDRESS",
	OpCallerAddress:       "CALLER_ADDRESS",
	OpOriginAddress:       "ORIGIN_ADDRESS",
	OpSelfBalance:         "SELF_BALANCE",
	OpCallerBalance:       "CALLER_BALANCE",
	OpOriginBalance:       "ORIGIN_BALANCE",
	OpAccountBalance:      "ACCOUNT_BALANCE",
	OpSelfTokenBalance:    "SELF_TOKEN_BALANCE",
	OpCallerTokenBalance:  "CALLER_TOKEN_BALANCE",
	OpOriginTokenBalance:  "ORIGIN_TOKEN_BALANCE",
	OpAccountTokenBalance: "ACCOUNT_TOKEN_BALANCE",
	OpTargetCaller:        "TARGET_CALLER",
	OpTargetOrigin:        "TARGET_ORIGIN",
	OpValueSelfBalance:    "VALUE_SELF_BALANCE",
}

// opSizes holds the encoded length of every command, flag byte included.
var opSizes = [...]int{
	OpSelfAddress:         flagLen + indexLen + offsetLen,
	OpCallerAddress:       flagLen + indexLen + offsetLen,
	OpOriginAddress:       flagLen + indexLen + offsetLen,
	OpSelfBalance:         flagLen + indexLen + offsetLen,
	OpCallerBalance:       flagLen + indexLen + offsetLen,
	OpOriginBalance:       flagLen + indexLen + offsetLen,
	OpAccountBalance:      flagLen + indexLen + offsetLen + addrLen,
	OpSelfTokenBalance:    flagLen + indexLen + offsetLen + addrLen,
	OpCallerTokenBalance:  flagLen + indexLen + offsetLen + addrLen,
	OpOriginTokenBalance:  flagLen + indexLen + offsetLen + addrLen,
	OpAccountTokenBalance: flagLen + indexLen + offsetLen + 2*addrLen,
	OpTargetCaller:        flagLen + indexLen + addrLen,
	OpTargetOrigin:        flagLen + indexLen + addrLen,
	OpValueSelfBalance:    flagLen + indexLen,
}

// Valid reports whether op is a known command.
func (op Op) Valid() bool { return int(op) < len(opSizes) }

// Size returns the fixed encoded length of the command, or 0 for unknown ops.
func (op Op) Size() int {
	if !op.Valid() {
		return 0
	}
	return opSizes[op]
}

// patchesData reports whether the command writes into a call's payload.
func (op Op) patchesData() bool { return op <= OpAccountTokenBalance }

func (op Op) hasToken() bool { return op >= OpSelfTokenBalance && op <= OpAccountTokenBalance }

func (op Op) hasAccount() bool {
	return op == OpAccountBalance || op == OpAccountTokenBalance || op == OpTargetCaller || op == OpTargetOrigin
}

func (op Op) String() string {
	if !op.Valid() {
		return fmt.Sprintf("UNKNOWN(0x%02x)", byte(op))
	}
	return opNames[op]
}

// Command is one decoded hydrate instruction.
type Command struct {
	Op     Op
	Index  uint8  // call the command applies to
	Offset uint16 // payload offset, payload-writing ops only
	Token  common.Address
	// Account is the inline account operand of ACCOUNT_BALANCE and
	// ACCOUNT_TOKEN_BALANCE. TARGET_* commands carry one too; it is
	// skipped when applied.
	Account common.Address
}

// Size returns the encoded length of c.
func (c Command) Size() int { return c.Op.Size() }

// Encode appends the wire form of c to dst. Operands the op does not carry
// are not written.
func (c Command) Encode(dst []byte) []byte {
	dst = append(dst, byte(c.Op), c.Index)
	if c.Op.patchesData() {
		dst = binary.BigEndian.AppendUint16(dst, c.Offset)
	}
	if c.Op.hasToken() {
		dst = append(dst, c.Token[:]...)
	}
	if c.Op.hasAccount() {
		dst = append(dst, c.Account[:]...)
	}
	return dst
}

func (c Command) String() string {
	switch {
	case c.Op == OpAccountTokenBalance:
		return fmt.Sprintf("%v call=%d offset=%d token=%v account=%v", c.Op, c.Index, c.Offset, c.Token, c.Account)
	case c.Op.hasToken():
		return fmt.Sprintf("%v call=%d offset=%d token=%v", c.Op, c.Index, c.Offset, c.Token)
	case c.Op == OpAccountBalance:
		return fmt.Sprintf("%v call=%d offset=%d account=%v", c.Op, c.Index, c.Offset, c.Account)
	case c.Op.patchesData():
		return fmt.Sprintf("%v call=%d offset=%d", c.Op, c.Index, c.Offset)
	case c.Op.hasAccount():
		return fmt.Sprintf("%v call=%d operand=%v", c.Op, c.Index, c.Account)
	}
	return fmt.Sprintf("%v call=%d", c.Op, c.Index)
}

// EncodeStream concatenates the wire form of cmds.
func EncodeStream(cmds ...Command) []byte {
	var out []byte
	for _, c := range cmds {
		out = c.Encode(out)
	}
	return out
}

// reader is the single forward cursor over a command stream.
type reader struct {
	buf []byte
	pos int
}

func (r *reader) done() bool { return r.pos >= len(r.buf) }

// next consumes n bytes. It never reads past the end of the buffer.
func (r *reader) next(n int) ([]byte, error) {
	if n > len(r.buf)-r.pos {
		return nil, fmt.Errorf("%w: need %d bytes, %d left", ErrStreamOverrun, n, len(r.buf)-r.pos)
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// command consumes one full command. The whole command is bounds checked
// before any operand is interpreted.
func (r *reader) command() (Command, error) {
	start := r.pos
	head, err := r.next(flagLen)
	if err != nil {
		return Command{}, &StreamError{Pos: start, Err: err}
	}
	op := Op(head[0])
	if !op.Valid() {
		return Command{}, &StreamError{Pos: start, Flag: head[0], Err: ErrUnknownCommand}
	}
	body, err := r.next(op.Size() - flagLen)
	if err != nil {
		return Command{}, &StreamError{Pos: start, Flag: head[0], Err: err}
	}
	cmd := Command{Op: op, Index: body[0]}
	body = body[indexLen:]
	if op.patchesData() {
		cmd.Offset = binary.BigEndian.Uint16(body)
		body = body[offsetLen:]
	}
	if op.hasToken() {
		cmd.Token = common.BytesToAddress(body[:addrLen])
		body = body[addrLen:]
	}
	if op.hasAccount() {
		cmd.Account = common.BytesToAddress(body[:addrLen])
	}
	return cmd, nil
}

// Decode parses a whole command stream without applying it.
func Decode(stream []byte) ([]Command, error) {
	var (
		r    = reader{buf: stream}
		cmds []Command
	)
	for !r.done() {
		cmd, err := r.command()
		if err != nil {
			return nil, err
		}
		cmds = append(cmds, cmd)
	}
	return cmds, nil
}
