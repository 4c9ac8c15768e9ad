package ledger

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
)

const tokenABIJSON = `[
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"transfer","stateMutability":"nonpayable",
  "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]},
 {"type":"function","name":"mint","stateMutability":"nonpayable",
  "inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],
  "outputs":[]}
]`

// TokenABI is the subset of ERC20 the ledger's tokens speak.
var TokenABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(tokenABIJSON))
	if err != nil {
		panic(fmt.Sprintf("token abi: %v", err))
	}
	TokenABI = parsed
}

var (
	ErrNotPayable        = errors.New("token does not accept native currency")
	ErrUnknownSelector   = errors.New("unknown function selector")
	ErrTransferToZero    = errors.New("transfer to the zero address")
	ErrTokenBalance      = errors.New("transfer amount exceeds balance")
	ErrTransferReturned  = errors.New("token transfer returned false")
	ErrMalformedResponse = errors.New("malformed token response")
)

// balanceSlot is the storage slot of the balances mapping.
const balanceSlot = 0

// balanceKey is the storage key of account in the balances mapping, laid
// out the way Solidity lays out mapping(address => uint256) at slot 0.
func balanceKey(account common.Address) common.Hash {
	return crypto.Keccak256Hash(
		common.LeftPadBytes(account.Bytes(), 32),
		common.LeftPadBytes(big.NewInt(balanceSlot).Bytes(), 32),
	)
}

func loadBalance(f *Frame, account common.Address) *uint256.Int {
	v := f.Load(balanceKey(account))
	return new(uint256.Int).SetBytes32(v[:])
}

func storeBalance(f *Frame, account common.Address, v *uint256.Int) {
	f.Store(balanceKey(account), common.Hash(v.Bytes32()))
}

// Token is a minimal ERC20 with an open mint. Balances live in the executing
// account's storage.
func Token(f *Frame) ([]byte, error) {
	if !f.Value.IsZero() || len(f.Input) == 0 {
		return nil, ErrNotPayable
	}
	if len(f.Input) < 4 {
		return nil, ErrUnknownSelector
	}
	method, err := TokenABI.MethodById(f.Input[:4])
	if err != nil {
		return nil, fmt.Errorf("%w: %x", ErrUnknownSelector, f.Input[:4])
	}
	args, err := method.Inputs.Unpack(f.Input[4:])
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method.Name, err)
	}
	switch method.Name {
	case "balanceOf":
		bal := loadBalance(f, args[0].(common.Address))
		return method.Outputs.Pack(bal.ToBig())

	case "transfer":
		to, amount := args[0].(common.Address), uint256.MustFromBig(args[1].(*big.Int))
		if to == (common.Address{}) {
			return nil, ErrTransferToZero
		}
		from := loadBalance(f, f.Caller)
		if from.Lt(amount) {
			return nil, fmt.Errorf("%w: %v has %v, needs %v", ErrTokenBalance, f.Caller, from, amount)
		}
		storeBalance(f, f.Caller, new(uint256.Int).Sub(from, amount))
		storeBalance(f, to, new(uint256.Int).Add(loadBalance(f, to), amount))
		return method.Outputs.Pack(true)

	case "mint":
		to, amount := args[0].(common.Address), uint256.MustFromBig(args[1].(*big.Int))
		storeBalance(f, to, new(uint256.Int).Add(loadBalance(f, to), amount))
		return nil, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownSelector, method.Name)
}

// DeployToken installs the Token contract at addr.
func (l *Ledger) DeployToken(addr common.Address) {
	l.Deploy(addr, Token)
}

// TokenBalance queries balanceOf(account) on token without changing state.
func (l *Ledger) TokenBalance(token, account common.Address) (*uint256.Int, error) {
	input, err := TokenABI.Pack("balanceOf", account)
	if err != nil {
		return nil, err
	}
	out, err := l.staticCall(account, token, input)
	if err != nil {
		return nil, fmt.Errorf("balanceOf on %v: %w", token, err)
	}
	res, err := TokenABI.Unpack("balanceOf", out)
	if err != nil || len(res) != 1 {
		return nil, fmt.Errorf("%w: balanceOf on %v returned %x", ErrMalformedResponse, token, out)
	}
	bal, overflow := uint256.FromBig(res[0].(*big.Int))
	if overflow {
		return nil, fmt.Errorf("%w: balance overflows 256 bits", ErrMalformedResponse)
	}
	return bal, nil
}

// TransferToken calls token.transfer(to, amount) from from. An empty return
// is accepted, an explicit false is an error.
func (l *Ledger) TransferToken(token, from, to common.Address, amount *uint256.Int) error {
	input, err := TokenABI.Pack("transfer", to, amount.ToBig())
	if err != nil {
		return err
	}
	if !l.HasCode(token) {
		return fmt.Errorf("transfer on %v: %w", token, ErrNoCode)
	}
	out, err := l.Call(from, token, nil, input)
	if err != nil {
		return fmt.Errorf("transfer on %v: %w", token, err)
	}
	if len(out) == 0 {
		return nil
	}
	res, err := TokenABI.Unpack("transfer", out)
	if err != nil || len(res) != 1 {
		return fmt.Errorf("%w: transfer on %v returned %x", ErrMalformedResponse, token, out)
	}
	if ok, _ := res[0].(bool); !ok {
		return fmt.Errorf("transfer on %v: %w", token, ErrTransferReturned)
	}
	return nil
}

// MintToken credits amount of token to to.
func (l *Ledger) MintToken(token, to common.Address, amount *uint256.Int) error {
	input, err := TokenABI.Pack("mint", to, amount.ToBig())
	if err != nil {
		return err
	}
	if !l.HasCode(token) {
		return fmt.Errorf("mint on %v: %w", token, ErrNoCode)
	}
	_, err = l.Call(common.Address{}, token, nil, input)
	return err
}
