// hydrate simulates hydrate-and-execute invocations against an in-memory
// ledger and inspects command streams.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ethereum/go-ethereum/log"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	verbosityFlag = &cli.IntFlag{
		Name:  "verbosity",
		Usage: "Logging verbosity: 0=silent, 1=error, 2=warn, 3=info, 4=debug, 5=detail",
		Value: 3,
	}
	logFileFlag = &cli.StringFlag{
		Name:  "log.file",
		Usage: "Write logs to a file instead of stderr",
	}
	logJSONFlag = &cli.BoolFlag{
		Name:  "log.json",
		Usage: "Format logs with JSON",
	}
	logRotateFlag = &cli.IntFlag{
		Name:  "log.maxsize",
		Usage: "Maximum size in megabytes of the log file before it gets rotated",
		Value: 100,
	}
	configFileFlag = &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "TOML scenario file",
	}
)

var app = &cli.App{
	Name:  "hydrate",
	Usage: "deferred-binding call batch simulator",
	Flags: []cli.Flag{
		verbosityFlag,
		logFileFlag,
		logJSONFlag,
		logRotateFlag,
	},
	Before: setupLogging,
	Commands: []*cli.Command{
		runCommand,
		disasmCommand,
		dumpConfigCommand,
	},
}

var dumpConfigCommand = &cli.Command{
	Name:      "dumpconfig",
	Usage:     "Show the scenario configuration",
	ArgsUsage: "",
	Flags:     []cli.Flag{configFileFlag},
	Description: `Prints the scenario in TOML. Without --config the built-in demo
scenario is printed, which is a good starting point for new files.`,
	Action: func(ctx *cli.Context) error {
		cfg, err := makeConfig(ctx)
		if err != nil {
			return err
		}
		return dumpConfig(ctx.App.Writer, cfg)
	},
}

func makeConfig(ctx *cli.Context) (*Config, error) {
	cfg := defaultConfig()
	if file := ctx.String(configFileFlag.Name); file != "" {
		cfg = new(Config)
		if err := loadConfig(file, cfg); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func setupLogging(ctx *cli.Context) error {
	var (
		output   io.Writer = os.Stderr
		usecolor           = (isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())) && os.Getenv("TERM") != "dumb"
		handler  slog.Handler
	)
	if usecolor {
		output = colorable.NewColorableStderr()
	}
	if file := ctx.String(logFileFlag.Name); file != "" {
		output = &lumberjack.Logger{
			Filename: file,
			MaxSize:  ctx.Int(logRotateFlag.Name),
		}
		usecolor = false
	}
	level := log.FromLegacyLevel(ctx.Int(verbosityFlag.Name))
	if ctx.Bool(logJSONFlag.Name) {
		handler = log.JSONHandlerWithLevel(output, level)
	} else {
		handler = log.NewTerminalHandlerWithLevel(output, level, usecolor)
	}
	log.SetDefault(log.NewLogger(handler))
	return nil
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
