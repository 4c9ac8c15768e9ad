package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"math/big"
	"os"
	"reflect"
	"unicode"

	"github.com/clydemeng/hydrator/core"
	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/core/hydrate"
	"github.com/clydemeng/hydrator/core/ledger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/holiman/uint256"
	"github.com/naoina/toml"
)

// These settings ensure that TOML keys use the same names as Go struct fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string {
		return key
	},
	FieldToKey: func(rt reflect.Type, field string) string {
		return field
	},
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://godoc.org/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// EnvConfig is the identity the scenario runs under.
type EnvConfig struct {
	Self   common.Address
	Caller common.Address
	Origin common.Address
}

// AccountConfig funds an account before the run.
type AccountConfig struct {
	Address common.Address
	Balance *math.HexOrDecimal256
}

// HolderConfig is one initial token balance.
type HolderConfig struct {
	Account common.Address
	Amount  *math.HexOrDecimal256
}

// TokenConfig deploys a token and mints its initial balances.
type TokenConfig struct {
	Address common.Address
	Holders []HolderConfig `toml:",omitempty"`
}

// CallConfig is one call of the batch, before hydration.
type CallConfig struct {
	Target       common.Address
	Value        *math.HexOrDecimal256 `toml:",omitempty"`
	Data         hexutil.Bytes         `toml:",omitempty"`
	GasLimit     uint64
	DelegateCall bool
	OnlyFallback bool
	OnError      string // ignore, revert or abort
}

// SweepConfig enables the sweep leg. A zero Recipient sweeps to the caller.
type SweepConfig struct {
	Enabled   bool
	Recipient common.Address
	Tokens    []common.Address `toml:",omitempty"`
}

// Config is a complete scenario.
type Config struct {
	Env      EnvConfig
	Gas      uint64 // ledger gas budget, 0 is unlimited
	Accounts []AccountConfig `toml:",omitempty"`
	Tokens   []TokenConfig   `toml:",omitempty"`
	Calls    []CallConfig    `toml:",omitempty"`
	Commands hexutil.Bytes   `toml:",omitempty"`
	Sweep    SweepConfig
}

var (
	demoSelf   = common.HexToAddress("0x5e1f000000000000000000000000000000005e1f")
	demoCaller = common.HexToAddress("0xca11000000000000000000000000000000000ca1")
	demoOrigin = common.HexToAddress("0x0419000000000000000000000000000000000419")
	demoToken  = common.HexToAddress("0x7000000000000000000000000000000000000001")
)

// defaultConfig is a small scenario: the wallet hands its whole token
// balance to whoever called it, then sweeps its native balance back.
func defaultConfig() *Config {
	transfer, err := ledger.TokenABI.Pack("transfer", common.Address{}, new(big.Int))
	if err != nil {
		panic(err)
	}
	return &Config{
		Env: EnvConfig{Self: demoSelf, Caller: demoCaller, Origin: demoOrigin},
		Accounts: []AccountConfig{
			{Address: demoSelf, Balance: (*math.HexOrDecimal256)(big.NewInt(1000))},
		},
		Tokens: []TokenConfig{{
			Address: demoToken,
			Holders: []HolderConfig{{Account: demoSelf, Amount: (*math.HexOrDecimal256)(big.NewInt(250))}},
		}},
		Calls: []CallConfig{
			{Target: demoToken, Data: transfer, OnError: calls.RevertOnError.String()},
		},
		Commands: hydrate.EncodeStream(
			hydrate.Command{Op: hydrate.OpSelfTokenBalance, Index: 0, Offset: 36, Token: demoToken},
			hydrate.Command{Op: hydrate.OpCallerAddress, Index: 0, Offset: 16},
		),
		Sweep: SweepConfig{Enabled: true},
	}
}

func loadConfig(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	// Add file name to errors that have a line number.
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

func dumpConfig(w io.Writer, cfg *Config) error {
	out, err := tomlSettings.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = w.Write(out)
	return err
}

func toUint256(v *math.HexOrDecimal256) (*uint256.Int, error) {
	if v == nil {
		return new(uint256.Int), nil
	}
	u, overflow := uint256.FromBig((*big.Int)(v))
	if overflow || (*big.Int)(v).Sign() < 0 {
		return nil, fmt.Errorf("amount %v out of range", (*big.Int)(v))
	}
	return u, nil
}

// env returns the engine environment of the scenario.
func (c *Config) env() core.Env {
	return core.Env{Self: c.Env.Self, Caller: c.Env.Caller, Origin: c.Env.Origin}
}

// seed deploys the scenario's tokens and funds its accounts.
func (c *Config) seed(l *ledger.Ledger) error {
	for _, acc := range c.Accounts {
		bal, err := toUint256(acc.Balance)
		if err != nil {
			return fmt.Errorf("account %v: %w", acc.Address, err)
		}
		l.Fund(acc.Address, bal)
	}
	for _, tok := range c.Tokens {
		l.DeployToken(tok.Address)
		for _, h := range tok.Holders {
			amount, err := toUint256(h.Amount)
			if err != nil {
				return fmt.Errorf("token %v holder %v: %w", tok.Address, h.Account, err)
			}
			if err := l.MintToken(tok.Address, h.Account, amount); err != nil {
				return fmt.Errorf("token %v: %w", tok.Address, err)
			}
		}
	}
	return nil
}

// batch converts the configured calls.
func (c *Config) batch() ([]*calls.Call, error) {
	list := make([]*calls.Call, len(c.Calls))
	for i, cc := range c.Calls {
		policy, err := calls.ParseErrorPolicy(cc.OnError)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		value, err := toUint256(cc.Value)
		if err != nil {
			return nil, fmt.Errorf("call %d: %w", i, err)
		}
		list[i] = &calls.Call{
			Target:       cc.Target,
			Value:        value,
			Data:         cc.Data,
			GasLimit:     cc.GasLimit,
			DelegateCall: cc.DelegateCall,
			OnlyFallback: cc.OnlyFallback,
			OnError:      policy,
		}
	}
	return list, nil
}

// watched returns the accounts whose balances the run reports.
func (c *Config) watched() []common.Address {
	seen := make(map[common.Address]bool)
	var out []common.Address
	add := func(a common.Address) {
		if !seen[a] {
			seen[a] = true
			out = append(out, a)
		}
	}
	add(c.Env.Self)
	add(c.Env.Caller)
	add(c.Env.Origin)
	for _, acc := range c.Accounts {
		add(acc.Address)
	}
	for _, cc := range c.Calls {
		add(cc.Target)
	}
	if c.Sweep.Recipient != (common.Address{}) {
		add(c.Sweep.Recipient)
	}
	return out
}
