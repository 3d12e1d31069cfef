package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/behaviorflow/behaviorflow/internal/pipe"
	"github.com/behaviorflow/behaviorflow/pkg/errors"
	"github.com/behaviorflow/behaviorflow/pkg/modelstore"
	"github.com/behaviorflow/behaviorflow/pkg/resilience"
	"github.com/behaviorflow/behaviorflow/pkg/sessions"
	"github.com/behaviorflow/behaviorflow/pkg/tui"
	"github.com/behaviorflow/behaviorflow/pkg/util"
	"github.com/behaviorflow/behaviorflow/pkg/watch"
	"github.com/behaviorflow/behaviorflow/pkg/writer"
)

// Command flags
var (
	// Extract flags
	inputFile    string
	outputFile   string
	defaultsFile string
	inputFormat  string
	outputFormat string
	workers      int
	useStore     bool
	showDiags    int

	// Batch flags
	batchOutputDir string
	parallelFiles  int
	failFast       bool

	// Watch flags
	debounce time.Duration

	// Inspect flags
	topN int

	// Store flags
	sessionFilter string
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract behavior models from a session file",
	Long: `Read a session trace file, build one absolute behavior model per session
and write the models to the output file. The output format follows the file
extension (.json, .parquet, .duckdb, .xlsx) unless --output-format is given.

Examples:
  behaviorflow extract -i sessions.csv -o models.json
  behaviorflow extract -i sessions.jsonl.gz -d defaults.yaml -o models.parquet
  behaviorflow extract -i sessions.xlsx -o models.duckdb --workers 8 --store`,
	RunE: runExtract,
}

var batchCmd = &cobra.Command{
	Use:   "batch <glob>...",
	Short: "Extract models from many session files in parallel",
	Long: `Extract models from every file matching the given patterns. Each input
produces <name>.<format> in the output directory.

Examples:
  behaviorflow batch 'traces/*.csv' --output-dir models/
  behaviorflow batch 'a/*.csv' 'b/*.jsonl' --output-dir out --output-format parquet`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

var watchCmd = &cobra.Command{
	Use:   "watch <input> <output>",
	Short: "Re-extract models whenever a session file changes",
	Long: `Watch a session file and rewrite the model output after every change.

Examples:
  behaviorflow watch sessions.csv models.json
  behaviorflow watch --debounce 2s sessions.csv models.duckdb`,
	Args: cobra.ExactArgs(2),
	RunE: runWatch,
}

var inspectCmd = &cobra.Command{
	Use:   "inspect <models.duckdb>",
	Short: "Summarize a DuckDB models file",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Manage stored models",
	Long: `List, show and delete models in the configured model store
(store.backend: local, redis or s3).`,
}

var storeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored models",
	Args:  cobra.NoArgs,
	RunE:  runStoreList,
}

var storeGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Print a stored model as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runStoreGet,
}

var storeDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete stored models",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runStoreDelete,
}

func init() {
	// Flags shared by the extracting commands
	for _, c := range []*cobra.Command{extractCmd, batchCmd, watchCmd} {
		c.Flags().StringVarP(&defaultsFile, "defaults", "d", "", "YAML catalog of default use cases")
		c.Flags().StringVar(&inputFormat, "format", "", "Input format (csv, jsonl, xlsx) - auto-detected if not specified")
		c.Flags().StringVar(&outputFormat, "output-format", "", "Output format (json, parquet, duckdb, xlsx)")
		c.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent session builds (0 = config or one per CPU)")
	}

	extractCmd.Flags().StringVarP(&inputFile, "input", "i", "", "Session file (required)")
	extractCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Model output file")
	extractCmd.Flags().BoolVar(&useStore, "store", false, "Save models to the configured model store")
	extractCmd.Flags().IntVar(&showDiags, "diagnostics", 10, "Number of diagnostics to list (0 = all)")
	extractCmd.MarkFlagRequired("input")

	batchCmd.Flags().StringVar(&batchOutputDir, "output-dir", ".", "Output directory")
	batchCmd.Flags().IntVarP(&parallelFiles, "parallel", "p", runtime.NumCPU(), "Files processed concurrently")
	batchCmd.Flags().BoolVar(&failFast, "fail-fast", false, "Stop on first error")

	watchCmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before re-extracting")

	inspectCmd.Flags().IntVarP(&topN, "top", "n", 10, "Number of transitions to list")

	storeListCmd.Flags().StringVarP(&sessionFilter, "session", "s", "", "Only models of this session")

	storeCmd.AddCommand(storeListCmd, storeGetCmd, storeDeleteCmd)
	rootCmd.AddCommand(extractCmd, batchCmd, watchCmd, inspectCmd, storeCmd)
}

// pipelineConfig merges command flags over the loaded configuration.
func pipelineConfig() (pipe.Config, error) {
	pc := pipe.FromConfig(cfg)
	if defaultsFile != "" {
		pc.DefaultsPath = defaultsFile
	}
	if inputFormat != "" {
		if pc.InputFormat = sessions.ParseFormat(inputFormat); pc.InputFormat == sessions.FormatUnknown {
			return pc, fmt.Errorf("unsupported input format %q", inputFormat)
		}
	}
	if outputFormat != "" {
		if pc.OutputFormat = writer.ParseFormat(outputFormat); pc.OutputFormat == writer.FormatUnknown {
			return pc, fmt.Errorf("unsupported output format %q", outputFormat)
		}
	}
	if workers > 0 {
		pc.Workers = workers
	}
	return pc, nil
}

func newPipeline(pc pipe.Config, opts ...pipe.Option) *pipe.Pipeline {
	opts = append([]pipe.Option{
		pipe.WithLogger(logger),
		pipe.WithTracer(tr),
		pipe.WithMetrics(exporter),
	}, opts...)
	return pipe.NewPipeline(pc, opts...)
}

func runExtract(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(inputFile); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputFile)
	}

	pc, err := pipelineConfig()
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	var opts []pipe.Option
	if useStore {
		store, err := modelstore.Open(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer store.Close()
		opts = append(opts, pipe.WithStore(store))
	}
	if outputFile == "" && !useStore {
		logger.Warn("no --output and no --store given; models are extracted but not kept")
	}

	if verbose {
		fmt.Printf("Input:    %s\n", inputFile)
		fmt.Printf("Output:   %s\n", outputFile)
		fmt.Printf("Defaults: %s\n", pc.DefaultsPath)
		fmt.Printf("Workers:  %d\n", pc.Workers)
	}

	result, err := newPipeline(pc, opts...).Run(ctx, inputFile, outputFile)
	if err != nil {
		return fmt.Errorf("extraction failed: %w", err)
	}

	tui.PrintExtractReport(os.Stdout, &tui.ExtractReport{
		Input:       inputFile,
		Output:      outputFile,
		Sessions:    result.Sessions,
		Models:      len(result.Models),
		Vertices:    result.Vertices,
		Transitions: result.Transitions,
		Diagnostics: len(result.Diagnostics),
		Stored:      result.Stored,
		Duration:    result.Duration,
	})
	tui.PrintDiagnostics(os.Stdout, result.Diagnostics, showDiags)
	return nil
}

// BatchResult holds the outcome of one file in a batch.
type BatchResult struct {
	InputPath  string
	OutputPath string
	Models     int
	Duration   time.Duration
	Error      error
}

func runBatch(cmd *cobra.Command, args []string) error {
	var inputFiles []string
	for _, pattern := range args {
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("invalid glob pattern %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			logger.Warn("no files match pattern", "pattern", pattern)
			continue
		}
		inputFiles = append(inputFiles, matches...)
	}
	if len(inputFiles) == 0 {
		return fmt.Errorf("no input files found")
	}

	pc, err := pipelineConfig()
	if err != nil {
		return err
	}
	ext := pc.OutputFormat.Extension()
	if pc.OutputFormat == writer.FormatUnknown {
		pc.OutputFormat = writer.FormatJSON
		ext = ".json"
	}
	// files already run in parallel
	if workers == 0 {
		pc.Workers = 1
	}

	if err := os.MkdirAll(batchOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	fmt.Printf("Extracting %d files with %d workers...\n", len(inputFiles), parallelFiles)
	bar := tui.ShowProgress(int64(len(inputFiles)), "extracting")

	results := make([]BatchResult, len(inputFiles))
	var failed atomic.Int64
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(parallelFiles, 1))
	for i, inputPath := range inputFiles {
		i, inputPath := i, inputPath
		g.Go(func() error {
			results[i] = extractFile(gctx, pc, inputPath, filepath.Join(batchOutputDir, outputName(inputPath, ext)))
			bar.Add(1)
			if results[i].Error != nil {
				failed.Add(1)
				if failFast {
					return results[i].Error
				}
			}
			return nil
		})
	}
	err = g.Wait()
	bar.Finish()

	fmt.Println()
	fmt.Printf("=== Batch Extraction Complete ===\n\n")
	fmt.Printf("  Total files: %d\n", len(inputFiles))
	fmt.Printf("  Failed:      %d\n", failed.Load())
	fmt.Printf("  Duration:    %v\n", time.Since(start).Round(time.Millisecond))

	var errs errors.MultiError
	for _, r := range results {
		if r.Error != nil {
			errs.Add(fmt.Errorf("%s: %w", filepath.Base(r.InputPath), r.Error))
		}
	}
	if errs.HasErrors() {
		fmt.Println("\nErrors:")
		for _, e := range errs.Errors {
			fmt.Printf("  %v\n", e)
		}
	}

	if err != nil {
		return fmt.Errorf("batch extraction failed: %w", err)
	}
	if errs.HasErrors() {
		return fmt.Errorf("%d files failed", len(errs.Errors))
	}
	return nil
}

func extractFile(ctx context.Context, pc pipe.Config, inputPath, outputPath string) BatchResult {
	result := BatchResult{InputPath: inputPath, OutputPath: outputPath}

	// one bad file must not take down the whole batch
	var res *pipe.Result
	err := resilience.Recover(func() error {
		var err error
		res, err = newPipeline(pc).Run(ctx, inputPath, outputPath)
		return err
	})
	if err != nil {
		result.Error = err
		return result
	}
	result.Models = len(res.Models)
	result.Duration = res.Duration
	return result
}

// outputName maps sessions.csv.gz to sessions<ext>.
func outputName(inputPath, ext string) string {
	base := util.StripCompression(filepath.Base(inputPath))
	return strings.TrimSuffix(base, filepath.Ext(base)) + ext
}

func runWatch(cmd *cobra.Command, args []string) error {
	inputPath, outputPath := args[0], args[1]

	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("input file does not exist: %s", inputPath)
	}

	pc, err := pipelineConfig()
	if err != nil {
		return err
	}
	pipeline := newPipeline(pc)

	w, err := watch.NewWatcher(debounce, logger)
	if err != nil {
		return err
	}
	defer w.Close()

	var runs atomic.Int64
	w.OnChange = func(ctx context.Context, path string) error {
		runs.Add(1)
		fmt.Printf("[%s] Change detected, extracting... ", time.Now().Format("15:04:05"))
		result, err := pipeline.Run(ctx, inputPath, outputPath)
		if err != nil {
			fmt.Println("failed")
			return err
		}
		fmt.Printf("%d models, %d diagnostics in %v\n",
			len(result.Models), len(result.Diagnostics), result.Duration.Round(time.Millisecond))
		return nil
	}
	w.OnError = func(path string, err error) {
		fmt.Printf("[%s] Error: %v\n", time.Now().Format("15:04:05"), err)
	}

	if err := w.Watch(inputPath); err != nil {
		return fmt.Errorf("failed to watch file: %w", err)
	}

	fmt.Printf("Watching %s -> %s\n", inputPath, outputPath)
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := w.OnChange(ctx, inputPath); err != nil {
		fmt.Printf("Initial extraction failed: %v\n", err)
	}

	err = w.Run(ctx)
	fmt.Printf("\nStopped watching (%d extractions)\n", runs.Load())
	if err == context.Canceled {
		return nil
	}
	return err
}

func runInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", path)
	}

	summary, err := writer.Summarize(cmd.Context(), path, topN)
	if err != nil {
		return err
	}
	tui.PrintSummary(os.Stdout, path, summary)
	return nil
}

func openStore(ctx context.Context) (modelstore.Backend, error) {
	store, err := modelstore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	logger.Debug("model store opened", "backend", store.Name())
	return store, nil
}

func runStoreList(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.List(cmd.Context(), sessionFilter)
	if err != nil {
		return err
	}
	tui.PrintRecords(os.Stdout, records)
	return nil
}

func runStoreGet(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	rec, err := store.Load(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}

func runStoreDelete(cmd *cobra.Command, args []string) error {
	store, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer store.Close()

	for _, id := range args {
		if err := store.Delete(cmd.Context(), id); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		fmt.Printf("Deleted %s\n", id)
	}
	return nil
}
