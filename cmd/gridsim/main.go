package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/san-kum/gridsim/internal/config"
	"github.com/san-kum/gridsim/internal/export"
	"github.com/san-kum/gridsim/internal/grid"
	"github.com/san-kum/gridsim/internal/storage"
	"github.com/san-kum/gridsim/internal/viz"
)

var (
	dataDir  string
	logLevel string
	// Config file
	configFile string
	// Preset name
	preset string

	particles     int
	procs         int
	steps         int
	saveEvery     int
	seed          int64
	size          float64
	noDiagnostics bool
	snapshotPath  string
	summaryPath   string
	compress      bool
	serial        bool
	live          bool

	rank  int
	peers []string
	rows  int
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "gridsim",
		Short:        "distributed short-range particle simulation",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "run archive directory (default from config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: trace, debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "run a simulation with every rank in this process",
		Args:  cobra.NoArgs,
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().BoolVar(&serial, "serial", false, "run the single-process reference instead")
	runCmd.Flags().BoolVar(&live, "live", false, "follow the run in a live terminal view")

	workerCmd := &cobra.Command{
		Use:   "worker",
		Short: "run one rank of a multi-process simulation",
		Args:  cobra.NoArgs,
		RunE:  runWorker,
	}
	addRunFlags(workerCmd)
	workerCmd.Flags().IntVar(&rank, "rank", 0, "this process's rank")
	workerCmd.Flags().StringSliceVar(&peers, "peers", nil, "host:port of every rank, in rank order")

	partitionCmd := &cobra.Command{
		Use:   "partition",
		Short: "show how grid rows are split between ranks",
		Args:  cobra.NoArgs,
		RunE:  showPartition,
	}
	partitionCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	partitionCmd.Flags().IntVarP(&procs, "procs", "p", config.DefaultProcs, "number of ranks")
	partitionCmd.Flags().IntVarP(&particles, "particles", "n", config.DefaultParticles, "number of particles")
	partitionCmd.Flags().IntVar(&rows, "rows", 0, "number of grid rows (default derived from particles)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list available presets",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tPARTICLES\tPROCS\tSTEPS\tSIZE")
			for _, name := range config.ListPresets() {
				p := config.GetPreset(name)
				fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%.4g\n", name, p.Particles, p.Procs, p.Steps, p.DomainSize())
			}
			return w.Flush()
		},
	}

	runsCmd := &cobra.Command{
		Use:   "runs",
		Short: "list archived runs",
		Args:  cobra.NoArgs,
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id]",
		Short: "plot the distance diagnostics of a run",
		Args:  cobra.ExactArgs(1),
		RunE:  plotRun,
	}

	exportCmd := &cobra.Command{
		Use:   "export [run_id]",
		Short: "export run metadata",
		Args:  cobra.ExactArgs(1),
		RunE:  exportRun,
	}

	plotCmd.Flags().StringVar(&svgPath, "svg", "", "also write the plot as svg to this file")

	renderCmd := &cobra.Command{
		Use:   "render [snapshot]",
		Short: "render a snapshot frame as svg",
		Args:  cobra.ExactArgs(1),
		RunE:  renderSnapshot,
	}
	renderCmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	renderCmd.Flags().IntVar(&frameIndex, "frame", -1, "frame index, negative counts from the end")
	renderCmd.Flags().IntVar(&svgSize, "px", 800, "image side in pixels")
	renderCmd.Flags().StringVarP(&svgPath, "output", "o", "", "svg file (default stdout)")
	renderCmd.Flags().IntVarP(&renderProcs, "procs", "p", 1, "draw the row boundaries of this many ranks")
	renderCmd.Flags().BoolVar(&compress, "compress", false, "snapshot is zstd-compressed")

	scaleCmd := &cobra.Command{
		Use:   "scale",
		Short: "time the same run over several process counts",
		Args:  cobra.NoArgs,
		RunE:  runScaling,
	}
	addRunFlags(scaleCmd)
	scaleCmd.Flags().IntSliceVar(&procsList, "procs-list", []int{1, 2, 4, 8}, "process counts to measure")
	scaleCmd.Flags().IntVar(&repeats, "repeats", 1, "runs per process count, fastest is kept")

	rootCmd.AddCommand(runCmd, workerCmd, partitionCmd, presetsCmd, runsCmd, plotCmd, exportCmd, renderCmd, scaleCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().IntVarP(&particles, "particles", "n", config.DefaultParticles, "number of particles")
	cmd.Flags().IntVarP(&procs, "procs", "p", config.DefaultProcs, "number of ranks")
	cmd.Flags().IntVar(&steps, "steps", config.DefaultSteps, "number of time steps")
	cmd.Flags().IntVar(&saveEvery, "save-every", config.DefaultSaveEvery, "snapshot period in steps")
	cmd.Flags().Int64Var(&seed, "seed", config.DefaultSeed, "random seed")
	cmd.Flags().Float64Var(&size, "size", 0, "domain side (default derived from density)")
	cmd.Flags().BoolVar(&noDiagnostics, "no-diagnostics", false, "skip the distance diagnostics")
	cmd.Flags().StringVarP(&snapshotPath, "output", "o", "", "snapshot file")
	cmd.Flags().StringVarP(&summaryPath, "summary", "s", "", "summary file to append timings to")
	cmd.Flags().BoolVar(&compress, "compress", false, "zstd-compress the snapshot file")
}

// loadConfig layers defaults, preset, config file and explicitly set flags,
// in that order.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()

	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}

	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("particles") {
		cfg.Particles = particles
	}
	if flags.Changed("procs") {
		cfg.Procs = procs
	}
	if flags.Changed("steps") {
		cfg.Steps = steps
	}
	if flags.Changed("save-every") {
		cfg.SaveEvery = saveEvery
	}
	if flags.Changed("seed") {
		cfg.Seed = seed
	}
	if flags.Changed("size") {
		cfg.Size = size
	}
	if flags.Changed("no-diagnostics") {
		cfg.Diagnostics = !noDiagnostics
	}
	if flags.Changed("output") {
		cfg.Output.Snapshot = snapshotPath
	}
	if flags.Changed("summary") {
		cfg.Output.Summary = summaryPath
	}
	if flags.Changed("compress") {
		cfg.Output.Compress = compress
	}
	if flags.Changed("peers") {
		cfg.Cluster.Peers = peers
		if !flags.Changed("procs") {
			cfg.Procs = len(peers)
		}
	}
	if cmd.Root().PersistentFlags().Changed("data") {
		cfg.Output.DataDir = dataDir
	}
	if cmd.Root().PersistentFlags().Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level == "" {
		level = config.DefaultLogLevel
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	log.SetLevel(lvl)
	return log, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func showPartition(cmd *cobra.Command, args []string) error {
	cfg := config.DefaultConfig()
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}
	if cmd.Flags().Changed("procs") {
		cfg.Procs = procs
	}
	if cmd.Flags().Changed("particles") {
		cfg.Particles = particles
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	n := cfg.Rows()
	if cmd.Flags().Changed("rows") {
		n = rows
	}
	if n < 1 {
		return fmt.Errorf("rows must be positive, got %d", n)
	}
	fmt.Printf("%d rows of %.4g, %d rows per rank\n\n", n, cfg.Physics.Cutoff, grid.RowsPerRank(cfg.Procs, n))
	fmt.Println(viz.PartitionTable(grid.Partition(cfg.Procs, n), cfg.Physics.Cutoff))
	return nil
}

func listRuns(cmd *cobra.Command, args []string) error {
	st := storage.New(archiveDir())
	runs, err := st.List()
	if err != nil {
		return err
	}

	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODE\tTIME\tN\tPROCS\tSTEPS\tSECONDS\tABSMIN\tABSAVG")

	for _, run := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%d\t%.3f\t%.4f\t%.4f\n",
			run.ID,
			run.Mode,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			run.Particles,
			run.Procs,
			run.Steps,
			run.Seconds,
			run.AbsMin,
			run.AbsAvg,
		)
	}

	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]

	st := storage.New(archiveDir())
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	hist, err := st.LoadDiagnostics(runID)
	if err != nil {
		return err
	}
	if len(hist) == 0 {
		return fmt.Errorf("run %s has no diagnostics to plot", runID)
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("particles: %d on %d procs\n", meta.Particles, meta.Procs)
	fmt.Printf("steps: %d\n\n", len(hist))
	fmt.Println(viz.PlotHistory(hist, 80, 10))

	if svgPath != "" {
		if err := os.WriteFile(svgPath, []byte(export.HistorySVG(hist, 800, 300)), 0644); err != nil {
			return err
		}
		fmt.Printf("\nwritten to %s\n", svgPath)
	}
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	st := storage.New(archiveDir())
	meta, err := st.Load(args[0])
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

func archiveDir() string {
	if dataDir != "" {
		return dataDir
	}
	if configFile != "" {
		if cfg, err := config.Load(configFile); err == nil {
			return cfg.Output.DataDir
		}
	}
	return config.DefaultDataDir
}
