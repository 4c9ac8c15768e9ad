package main

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"

	"github.com/clydemeng/hydrator/core"
	"github.com/clydemeng/hydrator/core/calls"
	"github.com/clydemeng/hydrator/core/dispatch"
	"github.com/clydemeng/hydrator/core/hydrate"
	"github.com/clydemeng/hydrator/core/ledger"
	"github.com/clydemeng/hydrator/tracing"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/log"
	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
)

var parallelFlag = &cli.IntFlag{
	Name:  "parallel",
	Usage: "Number of scenario files run concurrently",
	Value: runtime.NumCPU(),
}

var runCommand = &cli.Command{
	Name:      "run",
	Usage:     "Run scenarios against fresh in-memory ledgers",
	ArgsUsage: "[scenario.toml...]",
	Flags:     []cli.Flag{configFileFlag, parallelFlag},
	Description: `Seeds a ledger from each scenario, packs its calls, hydrates them
with the scenario's command stream and executes the batch, optionally
sweeping what is left. Outcomes and final balances are printed as tables.
Without any file the built-in demo scenario is run.`,
	Action: func(ctx *cli.Context) error {
		files := ctx.Args().Slice()
		if file := ctx.String(configFileFlag.Name); file != "" {
			files = append([]string{file}, files...)
		}
		if len(files) == 0 {
			return runScenario(ctx.App.Writer, defaultConfig())
		}
		return runFiles(ctx.App.Writer, files, ctx.Int(parallelFlag.Name))
	},
}

var disasmCommand = &cli.Command{
	Name:      "disasm",
	Usage:     "Decode a hex command stream",
	ArgsUsage: "<hex>",
	Action: func(ctx *cli.Context) error {
		if ctx.Args().Len() != 1 {
			return errors.New("expected a single hex encoded command stream")
		}
		stream, err := hexutil.Decode(ctx.Args().First())
		if err != nil {
			return fmt.Errorf("invalid stream: %w", err)
		}
		return disasm(ctx.App.Writer, stream)
	},
}

func disasm(w io.Writer, stream []byte) error {
	cmds, err := hydrate.Decode(stream)
	if err != nil {
		return err
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Pos", "Command"})
	pos := 0
	for _, c := range cmds {
		table.Append([]string{strconv.Itoa(pos), c.String()})
		pos += c.Size()
	}
	table.Render()
	return nil
}

// runFiles runs every scenario on its own ledger, at most parallel at a
// time, and prints the reports in argument order.
func runFiles(w io.Writer, files []string, parallel int) error {
	if parallel < 1 {
		parallel = 1
	}
	var (
		reports = make([]bytes.Buffer, len(files))
		errs    = make([]error, len(files))
		g       errgroup.Group
	)
	g.SetLimit(parallel)
	for i, file := range files {
		i, file := i, file
		g.Go(func() error {
			cfg := new(Config)
			if err := loadConfig(file, cfg); err != nil {
				return err
			}
			errs[i] = runScenario(&reports[i], cfg)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	failed := 0
	for i, file := range files {
		if _, err := fmt.Fprintf(w, "== %s\n", file); err != nil {
			return err
		}
		if _, err := io.Copy(w, &reports[i]); err != nil {
			return err
		}
		if errs[i] != nil {
			failed++
			if _, err := fmt.Fprintf(w, "%s %v\n", color.RedString("error:"), errs[i]); err != nil {
				return err
			}
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scenarios failed", failed, len(files))
	}
	return nil
}

// ledgerFor returns a fresh in-memory ledger seeded from cfg.
func ledgerFor(cfg *Config) (*ledger.Ledger, error) {
	l, err := ledger.NewMemory(cfg.Gas)
	if err != nil {
		return nil, err
	}
	if err := cfg.seed(l); err != nil {
		return nil, err
	}
	return l, nil
}

func runScenario(w io.Writer, cfg *Config) error {
	l, err := ledgerFor(cfg)
	if err != nil {
		return err
	}
	list, err := cfg.batch()
	if err != nil {
		return err
	}
	codec := calls.ABICodec{}
	packed, err := codec.Encode(list)
	if err != nil {
		return err
	}
	engine := core.New(l, codec)

	var res *dispatch.Result
	if cfg.Sweep.Enabled {
		log.Debug("Sweep enabled", "recipient", sweepTarget(cfg), "tokens", len(cfg.Sweep.Tokens))
		res, err = engine.HydrateAndExecuteSweep(cfg.env(), packed, cfg.Commands, cfg.Sweep.Recipient, cfg.Sweep.Tokens)
	} else {
		res, err = engine.HydrateAndExecute(cfg.env(), packed, cfg.Commands)
	}
	if res != nil {
		printOutcomes(w, res)
	}
	if err != nil {
		log.Error("Invocation failed", "reason", tracing.ReasonOf(err), "err", err)
	} else {
		log.Info("Invocation succeeded", "batch", res.BatchID, "aborted", res.Aborted())
	}
	if perr := printBalances(w, l, cfg); perr != nil {
		return perr
	}
	return err
}

// printOutcomes reports every call as it was dispatched, hydrated targets
// included.
func printOutcomes(w io.Writer, res *dispatch.Result) {
	fmt.Fprintf(w, "Batch %v\n", res.BatchID)
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"#", "Target", "Policy", "Status", "Output", "Error"})
	for i, o := range res.Outcomes {
		var errText string
		if o.Err != nil {
			errText = o.Err.Error()
		}
		table.Append([]string{
			strconv.Itoa(i),
			res.Calls[i].Target.Hex(),
			res.Calls[i].OnError.String(),
			colorStatus(o.Status),
			hexutil.Encode(o.Output),
			errText,
		})
	}
	table.Render()
}

func colorStatus(s dispatch.Status) string {
	switch s {
	case dispatch.StatusSucceeded:
		return color.GreenString("%s", s)
	case dispatch.StatusFailed, dispatch.StatusAborted:
		return color.RedString("%s", s)
	case dispatch.StatusSkipped:
		return color.YellowString("%s", s)
	}
	return s.String()
}

func printBalances(w io.Writer, l *ledger.Ledger, cfg *Config) error {
	header := []string{"Account", "Native"}
	for _, tok := range cfg.Tokens {
		header = append(header, tok.Address.Hex())
	}
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	for _, addr := range cfg.watched() {
		row := []string{addr.Hex(), l.Balance(addr).Dec()}
		for _, tok := range cfg.Tokens {
			bal, err := l.TokenBalance(tok.Address, addr)
			if err != nil {
				return fmt.Errorf("balance of %v: %w", addr, err)
			}
			row = append(row, bal.Dec())
		}
		table.Append(row)
	}
	table.Render()
	return nil
}

// sweepTarget reports where a sweep of cfg would send funds.
func sweepTarget(cfg *Config) common.Address {
	if cfg.Sweep.Recipient != (common.Address{}) {
		return cfg.Sweep.Recipient
	}
	return cfg.Env.Caller
}
