// Package main is a one-shot analysis CLI. It reads a snapshot file, runs the
// planning pipeline and prints the run as JSON on stdout. Logs go to stderr.
//
//	analyze -snapshot portfolio.yaml [-policy tiers.yaml] [-sequence] [-cash 2500]
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/aristath/tierfolio/internal/config"
	"github.com/aristath/tierfolio/internal/domain"
	"github.com/aristath/tierfolio/internal/modules/planning"
	"github.com/aristath/tierfolio/internal/modules/reports"
	"github.com/aristath/tierfolio/internal/modules/sequencing"
	"github.com/aristath/tierfolio/internal/modules/snapshots"
	"github.com/aristath/tierfolio/pkg/logger"
)

// Exit codes
const (
	exitOK         = 0
	exitError      = 1
	exitUsage      = 2
	exitFatalInput = 3
)

// Output is the JSON document written to stdout
type Output struct {
	Run        *reports.Run         `json:"run"`
	Execution  *sequencing.Summary  `json:"execution,omitempty"`
	Projection *planning.Projection `json:"projection,omitempty"`
}

type options struct {
	snapshot     string
	policy       string
	cash         *float64
	sequence     bool
	fillPolicy   string
	reserveFloor *float64
	logLevel     string
	pretty       bool
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("analyze", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		opts         options
		cash         float64
		reserveFloor float64
	)
	fs.StringVar(&opts.snapshot, "snapshot", "", "snapshot file (.json, .yaml or .yml)")
	fs.StringVar(&opts.policy, "policy", "", "YAML tier policy overrides")
	fs.Float64Var(&cash, "cash", 0, "starting cash for sequencing (default: snapshot cash)")
	fs.BoolVar(&opts.sequence, "sequence", false, "sequence the generated trades and project the result")
	fs.StringVar(&opts.fillPolicy, "fill-policy", "", "partial-fill policy: automatic, smart, ask or reject")
	fs.Float64Var(&reserveFloor, "reserve-floor", 0, "cash reserve floor for sequencing")
	fs.StringVar(&opts.logLevel, "log-level", "warn", "log level")
	fs.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}

	// Only explicitly passed overrides reach the sequencer
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "cash":
			opts.cash = &cash
		case "reserve-floor":
			opts.reserveFloor = &reserveFloor
		}
	})

	if opts.snapshot == "" {
		fmt.Fprintln(stderr, "analyze: -snapshot is required")
		fs.Usage()
		return exitUsage
	}

	log := logger.New(logger.Config{
		Level:  opts.logLevel,
		Output: stderr,
	}).With().Str("component", "analyze_cli").Logger()

	out, err := analyze(opts, log)
	if err != nil {
		var fatal *domain.FatalInputError
		if errors.As(err, &fatal) {
			log.Error().Strs("problems", fatal.Problems).Msg("Snapshot rejected")
			fmt.Fprintln(stderr, err)
			return exitFatalInput
		}
		log.Error().Err(err).Msg("Analysis failed")
		fmt.Fprintln(stderr, err)
		return exitError
	}

	enc := json.NewEncoder(stdout)
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(out); err != nil {
		log.Error().Err(err).Msg("Failed to write output")
		return exitError
	}
	return exitOK
}

func analyze(opts options, log zerolog.Logger) (*Output, error) {
	data, err := os.ReadFile(opts.snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	snapshot, err := snapshots.Parse(data, snapshots.FormatFromPath(opts.snapshot))
	if err != nil {
		return nil, err
	}

	policies, err := config.LoadPolicy(opts.policy)
	if err != nil {
		return nil, err
	}

	service := planning.NewService(policies, planning.DefaultConfig(), nil, nil, nil, log)

	result, err := service.Analyze(snapshot)
	if err != nil {
		return nil, err
	}
	result.Source = "cli"

	out := &Output{Run: result}
	if !opts.sequence {
		return out, nil
	}

	req := planning.SequenceRequest{
		Cash:         opts.cash,
		Policy:       opts.fillPolicy,
		ReserveFloor: opts.reserveFloor,
	}

	summary, err := service.SequenceRun(result, req)
	if err != nil {
		return nil, err
	}
	projection, err := service.Simulate(result, summary)
	if err != nil {
		return nil, err
	}

	out.Execution = &summary
	out.Projection = projection
	return out, nil
}
