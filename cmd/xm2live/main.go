// Package main is the entry point for the xm2live CLI
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xm2live/xm2live/pkg/api"
	"github.com/xm2live/xm2live/pkg/convert"
	"github.com/xm2live/xm2live/pkg/logging"
	"github.com/xm2live/xm2live/pkg/midifile"
	"github.com/xm2live/xm2live/pkg/module"
	"github.com/xm2live/xm2live/pkg/tui"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	outputDir    string
	templatePath string
	mergeTracks  bool
	noPan        bool
	noOffset     bool
	noEnvelopes  bool
	recursive    bool
	force        bool
	workers      int
	serverPort   int
	logLevel     string
	logFile      string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "xm2live",
	Short: "Convert XM and MOD tracker modules to Ableton Live projects",
	Long: `xm2live converts FastTracker II .xm and ProTracker .mod modules into
Ableton Live .als projects: one MIDI track per channel (or per
instrument), extracted samples as WAV files, sampler devices with loop
points and envelopes, and pan / sample-offset automation.

Examples:
  xm2live convert song.xm
  xm2live convert song.mod --merge-tracks -o out/
  xm2live batch ./modules --recursive --workers 8
  xm2live midi song.xm
  xm2live inspect song.xm
  xm2live tui
  xm2live serve --port 8080`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var convertCmd = &cobra.Command{
	Use:   "convert <input.xm|input.mod>",
	Short: "Convert one module to an Ableton Live project",
	Args:  cobra.ExactArgs(1),
	RunE:  runConvert,
}

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Convert every module found in a directory",
	Long:  `Scans the directory for .xm and .mod files and converts each into an Ableton Live project under xm2live_converted_tracks/. Already converted projects are skipped unless --force is given.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runBatch,
}

var midiCmd = &cobra.Command{
	Use:   "midi <input.xm|input.mod>",
	Short: "Export a module's notes as a standard MIDI file",
	Args:  cobra.ExactArgs(1),
	RunE:  runMIDI,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <input.xm|input.mod>",
	Short: "Print a module's metadata without converting it",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var tuiCmd = &cobra.Command{
	Use:   "tui",
	Short: "Launch interactive terminal UI",
	RunE:  runTUI,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also write logs to this file, with rotation")

	for _, cmd := range []*cobra.Command{convertCmd, batchCmd} {
		cmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output directory (default: next to the input)")
		cmd.Flags().StringVarP(&templatePath, "template", "t", "", "Augment this .als template instead of building from scratch")
		cmd.Flags().BoolVarP(&mergeTracks, "merge-tracks", "m", false, "One track per instrument instead of per channel")
		cmd.Flags().BoolVar(&noPan, "no-pan-automation", false, "Skip pan (8xx) automation")
		cmd.Flags().BoolVar(&noOffset, "no-sample-offset", false, "Skip sample offset (9xx) automation")
		cmd.Flags().BoolVar(&noEnvelopes, "no-envelopes", false, "Skip volume envelope to ADSR conversion")
	}

	batchCmd.Flags().BoolVarP(&recursive, "recursive", "r", false, "Scan subdirectories too")
	batchCmd.Flags().BoolVarP(&force, "force", "f", false, "Reconvert even when the project already exists")
	batchCmd.Flags().IntVarP(&workers, "workers", "w", 4, "Parallel conversions")

	midiCmd.Flags().StringVarP(&outputDir, "output", "o", "", "Output .mid file path")
	midiCmd.Flags().BoolVarP(&mergeTracks, "merge-tracks", "m", false, "One MIDI track per instrument instead of per channel")

	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "Server port")

	rootCmd.AddCommand(convertCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(midiCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(serveCmd)
}

func buildConfig() convert.Config {
	return convert.Config{
		PanAutomation:      !noPan,
		SampleOffset:       !noOffset,
		EnvelopeConversion: !noEnvelopes,
		MergeTracks:        mergeTracks,
		TemplatePath:       templatePath,
	}
}

func newLogger() (*zap.Logger, error) {
	cfg := logging.DefaultConfig()
	cfg.Level = logLevel
	cfg.OutputPath = logFile
	return logging.New(cfg)
}

func runConvert(cmd *cobra.Command, args []string) error {
	input := args[0]
	outDir := outputDir
	if outDir == "" {
		outDir = filepath.Dir(input)
	}

	res, err := convert.ConvertFile(input, outDir, buildConfig())
	if err != nil {
		return err
	}

	fmt.Printf("Converted %s -> %s\n", input, res.ALSPath)
	fmt.Printf("  %d tracks, %d notes, %d samples\n", res.Tracks, res.Notes, res.Samples)
	return nil
}

func runBatch(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := convert.BatchOptions{
		Config:    buildConfig(),
		OutDir:    outputDir,
		Recursive: recursive,
		Force:     force,
		Workers:   workers,
	}
	summary, err := convert.ConvertDir(ctx, args[0], opts, log)
	if err != nil {
		return err
	}

	fmt.Printf("Converted %d, skipped %d, failed %d\n",
		summary.Converted, summary.Skipped, summary.Failed)
	if summary.Failed > 0 {
		return fmt.Errorf("%d conversions failed", summary.Failed)
	}
	return nil
}

func runMIDI(cmd *cobra.Command, args []string) error {
	input := args[0]
	data, err := os.ReadFile(input)
	if err != nil {
		return err
	}

	project, _, err := convert.Convert(data, buildConfig())
	if err != nil {
		return err
	}
	out, err := midifile.Export(project)
	if err != nil {
		return err
	}

	output := outputDir
	if output == "" {
		output = convert.BaseName(input) + ".mid"
	}
	if err := os.WriteFile(output, out, 0o644); err != nil {
		return err
	}

	fmt.Printf("Converted %s -> %s\n", input, output)
	return nil
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	m, err := module.Parse(data)
	if err != nil {
		return err
	}

	fmt.Printf("Format:      %s\n", m.Format)
	fmt.Printf("Title:       %s\n", m.Title)
	fmt.Printf("Channels:    %d\n", m.Channels)
	fmt.Printf("Speed/BPM:   %d / %d (effective %.1f BPM)\n", m.Speed, m.BPM, convert.RealBPM(m.BPM, m.Speed))
	fmt.Printf("Patterns:    %d (order length %d)\n", len(m.Patterns), len(m.Order))
	fmt.Printf("Instruments:\n")
	for _, ins := range m.Instruments {
		if len(ins.Samples) == 0 && ins.Name == "" {
			continue
		}
		fmt.Printf("  %02X  %-22s  %d sample(s)\n", ins.ID, ins.Name, len(ins.Samples))
	}
	return nil
}

func runTUI(cmd *cobra.Command, args []string) error {
	return tui.Run()
}

func runServe(cmd *cobra.Command, args []string) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	fmt.Printf("Starting API server on port %d...\n", serverPort)
	return api.StartServer(serverPort, log)
}
