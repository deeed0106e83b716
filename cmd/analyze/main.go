// Command analyze detects serve-and-return turns in a recorded parent-child
// conversation and prints the event timeline with summary statistics.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"serveturn/detector/internal/analysis"
	"serveturn/detector/internal/audio"
	"serveturn/detector/internal/logging"
)

type options struct {
	output            string
	format            string
	childThreshold    float64
	ageMonths         int
	responseThreshold float64
	missedThreshold   float64
	vadAggressiveness int
	verbose           bool
}

func main() {
	_ = godotenv.Load()
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := options{}
	cmd := &cobra.Command{
		Use:   "analyze <audio.wav>",
		Short: "Analyze parent-child audio for conversational turns",
		Long: `Detects child serves, adult returns and missed opportunities.

Output is a JSON (or YAML) document with the ordered events and summary
statistics. The summary is also printed to stderr with --verbose.`,
		Example: `  analyze recording.wav
  analyze recording.wav --output results.json
  analyze recording.wav --age-months 30 --format yaml`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			err := run(cmd, args[0], opts, stdout, stderr)
			if err != nil {
				fmt.Fprintf(stderr, "Error: %v\n", err)
			}
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&opts.output, "output", "o", "", "output file path (default: stdout)")
	f.StringVar(&opts.format, "format", "json", "output format: json or yaml")
	f.Float64Var(&opts.childThreshold, "child-threshold", 250, "pitch threshold for child classification in Hz")
	f.IntVar(&opts.ageMonths, "age-months", 0, "child age in months; selects the threshold when --child-threshold is not given")
	f.Float64Var(&opts.responseThreshold, "response-threshold", 3.0, "max seconds for a response to count as a return")
	f.Float64Var(&opts.missedThreshold, "missed-threshold", 5.0, "seconds of silence to count as a missed opportunity")
	f.IntVar(&opts.vadAggressiveness, "vad-aggressiveness", 2, "VAD aggressiveness 0-3 (higher is more aggressive)")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "print progress information")

	cmd.AddCommand(newSynthCmd(stderr))
	return cmd
}

func run(cmd *cobra.Command, path string, opts options, stdout, stderr io.Writer) error {
	level := "warn"
	if opts.verbose {
		level = "info"
	}
	if err := logging.Setup(level, "text"); err != nil {
		return err
	}
	logrus.SetOutput(stderr)

	if opts.format != "json" && opts.format != "yaml" {
		return fmt.Errorf("unsupported format %q", opts.format)
	}
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("file not found: %s", path)
	}
	if ext := strings.ToLower(filepath.Ext(path)); ext != ".wav" {
		return fmt.Errorf("unsupported format: %s", ext)
	}

	cfg := analysis.DefaultConfig()
	cfg.ChildThreshold = opts.childThreshold
	cfg.ResponseThreshold = opts.responseThreshold
	cfg.MissedThreshold = opts.missedThreshold
	cfg.VADAggressiveness = opts.vadAggressiveness
	if cmd.Flags().Changed("age-months") {
		m := opts.ageMonths
		cfg.AgeMonths = &m
		if !cmd.Flags().Changed("child-threshold") {
			cfg.ChildThreshold = 0
		}
	}

	an, err := analysis.New(cfg)
	if err != nil {
		return err
	}
	if opts.verbose {
		fmt.Fprintf(stderr, "Loading audio: %s\n", path)
	}
	res, err := an.AnalyzeFile(path)
	if errors.Is(err, audio.ErrEmpty) {
		res, err = analysis.Result{}, nil
	}
	if err != nil {
		return fmt.Errorf("loading audio: %w", err)
	}

	var out []byte
	if opts.format == "yaml" {
		out, err = res.YAML()
	} else {
		out, err = res.JSON()
	}
	if err != nil {
		return err
	}

	if opts.output != "" {
		if err := os.WriteFile(opts.output, out, 0o644); err != nil {
			return err
		}
		if opts.verbose {
			fmt.Fprintf(stderr, "Results written to: %s\n", opts.output)
		}
	} else {
		fmt.Fprintln(stdout, strings.TrimRight(string(out), "\n"))
	}

	if opts.verbose {
		printSummary(stderr, res.Summary, an.ChildThreshold())
	}
	return nil
}

func printSummary(w io.Writer, s analysis.Summary, threshold float64) {
	fmt.Fprintf(w, "\n--- Summary ---\n")
	fmt.Fprintf(w, "Child threshold: %.0f Hz\n", threshold)
	fmt.Fprintf(w, "Total serves (child): %d\n", s.TotalServes)
	fmt.Fprintf(w, "Successful returns: %d\n", s.TotalReturns)
	fmt.Fprintf(w, "Missed opportunities: %d\n", s.MissedOpportunities)
	fmt.Fprintf(w, "Success rate: %.0f%%\n", s.SuccessfulReturnRate*100)
	if s.AverageResponseLatency != nil {
		fmt.Fprintf(w, "Avg response time: %.2fs\n", *s.AverageResponseLatency)
	}
}

func newSynthCmd(stderr io.Writer) *cobra.Command {
	var output string
	var rate int
	names := make([]string, 0, len(audio.Scenarios))
	for n := range audio.Scenarios {
		names = append(names, n)
	}
	sort.Strings(names)

	cmd := &cobra.Command{
		Use:       "synth <scenario>",
		Short:     "Write a synthetic test recording",
		Long:      "Scenarios: " + strings.Join(names, ", "),
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: names,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				output = args[0] + ".wav"
			}
			samples := audio.Compose(rate, audio.Scenarios[args[0]]...)
			if err := audio.SaveWAV(output, samples, rate); err != nil {
				return err
			}
			fmt.Fprintf(stderr, "Created %s (%.1fs)\n", output, float64(len(samples))/float64(rate))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output WAV path (default: <scenario>.wav)")
	cmd.Flags().IntVar(&rate, "rate", 16000, "sample rate")
	return cmd
}
