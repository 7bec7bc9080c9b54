// Package main provides the CLI entrypoint for k5view.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/adrianomoraes/k5-spectrum-viewer/internal/config"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/model"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/ocr"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/pipeline"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/protocol"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/record"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/replay"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/simulator"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/store"
	"github.com/adrianomoraes/k5-spectrum-viewer/internal/tui"
)

const defaultGapSeconds = 10.0

var (
	livePort      string
	liveBaud      int
	liveSimulate  bool
	liveNoRecord  bool
	liveDBPath    string
	liveStartDeb  int
	liveStopDeb   int
	liveGap       float64
	liveBuckets   int
	liveTolerance float64
	liveConfirm   int
	liveDepth     int

	sessionsSearch    string
	sessionsSince     string
	sessionsMinEnergy int

	poisSession int64
	poisLive    bool
)

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "k5view",
		Short:         "Live spectrum viewer and recorder for the K5 screen protocol",
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE:          runLiveCmd,
	}

	rootCmd.Flags().StringVar(&livePort, "port", "", "serial port (default: first USB port)")
	rootCmd.Flags().IntVar(&liveBaud, "baud", protocol.DefaultBaud, "serial baud rate")
	rootCmd.Flags().BoolVar(&liveSimulate, "simulate", false, "use a synthetic device instead of a serial port")
	rootCmd.Flags().BoolVar(&liveNoRecord, "no-record", false, "disable session recording")
	rootCmd.Flags().IntVar(&liveStartDeb, "start-debounce", record.DefaultStartDebounce, "active frames required to start recording")
	rootCmd.Flags().IntVar(&liveStopDeb, "stop-debounce", record.DefaultStopDebounce, "inactive frames required to stop recording")
	rootCmd.Flags().Float64Var(&liveGap, "gap", defaultGapSeconds, "timing gap in seconds that closes a session")
	rootCmd.Flags().IntVar(&liveBuckets, "buckets", record.DefaultBuckets, "energy index bucket count")
	rootCmd.Flags().Float64Var(&liveTolerance, "tolerance", ocr.DefaultTolerance, "glyph mismatch tolerance (0-1)")
	rootCmd.Flags().IntVar(&liveConfirm, "confirm-passes", ocr.DefaultConfirmPasses, "passes before a changed readout is accepted")

	// Shared by the replay/sessions/pois subcommands as well.
	rootCmd.PersistentFlags().StringVar(&liveDBPath, "db", "", "database path (default: XDG data dir)")
	rootCmd.PersistentFlags().IntVar(&liveDepth, "waterfall-depth", tui.DefaultWaterfallDepth, "waterfall history lines")

	rootCmd.AddCommand(newPortsCmd())
	rootCmd.AddCommand(newSessionsCmd())
	rootCmd.AddCommand(newReplayCmd())
	rootCmd.AddCommand(newPoisCmd())
	rootCmd.AddCommand(newConfigCmd())

	return rootCmd
}

func runLiveCmd(cmd *cobra.Command, _ []string) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "port", &livePort, fileCfg.Serial.Port)
	applyIntConfig(cmd, "baud", &liveBaud, fileCfg.Serial.Baud)
	applyStringConfig(cmd, "db", &liveDBPath, fileCfg.DBPath)
	applyIntConfig(cmd, "start-debounce", &liveStartDeb, fileCfg.Record.StartDebounce)
	applyIntConfig(cmd, "stop-debounce", &liveStopDeb, fileCfg.Record.StopDebounce)
	applyFloatConfig(cmd, "gap", &liveGap, fileCfg.Record.GapSeconds)
	applyIntConfig(cmd, "buckets", &liveBuckets, fileCfg.Record.Buckets)
	applyFloatConfig(cmd, "tolerance", &liveTolerance, fileCfg.OCR.Tolerance)
	applyIntConfig(cmd, "confirm-passes", &liveConfirm, fileCfg.OCR.Confirm)
	applyIntConfig(cmd, "waterfall-depth", &liveDepth, fileCfg.UI.WaterfallDepth)

	if err := validateLiveFlags(); err != nil {
		return err
	}

	src, err := openSource()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			logErrf("failed to close source: %v\n", cerr)
		}
	}()

	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var sink record.Sink
	if !liveNoRecord {
		sink = store.SessionWriter{Store: st, Ctx: ctx}
	}
	pipe := pipeline.New(src, sink, pipeline.Options{
		OCRTolerance:  liveTolerance,
		ConfirmPasses: liveConfirm,
		Recorder: record.Options{
			StartDebounce: liveStartDeb,
			StopDebounce:  liveStopDeb,
			Gap:           time.Duration(liveGap * float64(time.Second)),
			Buckets:       liveBuckets,
		},
	})

	program := tea.NewProgram(tui.NewLiveModel(pipe, st, liveDepth), tea.WithAltScreen())

	pipeErr := make(chan error, 1)
	go func() {
		err := pipe.Run(ctx)
		pipeErr <- err
		if err != nil && !errors.Is(err, context.Canceled) {
			program.Quit()
		}
	}()

	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	cancel()
	if err := <-pipeErr; err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("pipeline stopped: %w", err)
	}
	return nil
}

func validateLiveFlags() error {
	if liveBaud <= 0 {
		return fmt.Errorf("--baud must be > 0")
	}
	if liveGap <= 0 {
		return fmt.Errorf("--gap must be > 0")
	}
	if liveTolerance < 0 || liveTolerance > 1 {
		return fmt.Errorf("--tolerance must be between 0 and 1")
	}
	return nil
}

// openSource opens the configured serial port, auto-detecting the first
// USB port when none is set, or the synthetic device for --simulate.
func openSource() (pipeline.Source, error) {
	if liveSimulate {
		return simulator.New(time.Now().UnixNano(), 100*time.Millisecond), nil
	}
	port := livePort
	if port == "" {
		ports, err := protocol.ListPorts()
		if err != nil {
			return nil, fmt.Errorf("failed to list serial ports: %w", err)
		}
		for _, info := range ports {
			if info.IsUSB {
				port = info.Name
				break
			}
		}
		if port == "" {
			return nil, fmt.Errorf("no USB serial port found; pass --port or --simulate")
		}
		logErrf("using serial port %s\n", port)
	}
	src, err := protocol.OpenPort(port, liveBaud)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", port, err)
	}
	return src, nil
}

func dbPath() string {
	if liveDBPath != "" {
		return liveDBPath
	}
	return config.DefaultDBPath()
}

func newPortsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		Args:  cobra.NoArgs,
		RunE:  runPortsCmd,
	}
}

func runPortsCmd(cmd *cobra.Command, _ []string) error {
	ports, err := protocol.ListPorts()
	if err != nil {
		return fmt.Errorf("failed to list serial ports: %w", err)
	}
	if len(ports) == 0 {
		return fmt.Errorf("no serial ports found")
	}
	for _, info := range ports {
		marker := " "
		if info.IsUSB {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s", marker, info.Name)
		if info.Description != "" {
			line += "  " + info.Description
		}
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newSessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded sessions",
		Args:  cobra.NoArgs,
		RunE:  runSessionsCmd,
	}
	cmd.Flags().StringVar(&sessionsSearch, "search", "", "filter by identifier substring")
	cmd.Flags().StringVar(&sessionsSince, "since", "", "start date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&sessionsMinEnergy, "min-energy", 0, "minimum peak frame energy")
	cmd.AddCommand(newSessionsDeleteCmd())
	return cmd
}

func runSessionsCmd(cmd *cobra.Command, _ []string) error {
	if err := applyCommonConfig(cmd); err != nil {
		return err
	}
	filter := model.SessionFilter{
		Search:    sessionsSearch,
		MinEnergy: sessionsMinEnergy,
	}
	if sessionsSince != "" {
		parsed, err := time.ParseInLocation("2006-01-02", sessionsSince, time.Local)
		if err != nil {
			return fmt.Errorf("invalid --since value: %w", err)
		}
		filter.Since = &parsed
	}

	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	sessions, err := st.ListSessions(context.Background(), filter)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}
	if len(sessions) == 0 {
		logErrln("no recorded sessions")
		return nil
	}

	width := 100
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	if _, err := fmt.Fprint(cmd.OutOrStdout(), tui.FormatSessionTable(sessions, width)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func newSessionsDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <session-id>",
		Short: "Delete a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE:  runSessionsDeleteCmd,
	}
}

func runSessionsDeleteCmd(cmd *cobra.Command, args []string) error {
	if err := applyCommonConfig(cmd); err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}
	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	if err := st.DeleteSession(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func newReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <session-id>",
		Short: "Replay a recorded session",
		Args:  cobra.ExactArgs(1),
		RunE:  runReplayCmd,
	}
}

func runReplayCmd(cmd *cobra.Command, args []string) error {
	if err := applyCommonConfig(cmd); err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid session id %q", args[0])
	}

	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	ctx := context.Background()
	session, err := st.GetSession(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load session %d: %w", id, err)
	}

	corrupt := false
	frames, err := st.LoadFrames(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrSessionCorrupt) {
			return fmt.Errorf("failed to load frames: %w", err)
		}
		corrupt = true
		logErrf("session %d is damaged; replaying the %d intact frames\n", id, len(frames))
	}
	if len(frames) == 0 {
		return fmt.Errorf("session %d has no frames", id)
	}

	buckets, err := st.LoadEnergyIndex(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to load energy index: %w", err)
	}
	if len(buckets) == 0 {
		// Never finalized (crash mid-recording); rebuild from the frames.
		builder := record.NewEnergyIndexBuilder(0)
		for _, f := range frames {
			builder.Add(f.Energy)
		}
		buckets = builder.Buckets()
	}

	pois, err := st.ListPOIs(ctx, &id)
	if err != nil {
		return fmt.Errorf("failed to load points of interest: %w", err)
	}

	engine := replay.NewEngine(frames, buckets)
	replayModel := tui.NewReplayModel(engine, st, session, pois, corrupt, liveDepth)
	program := tea.NewProgram(replayModel, tea.WithAltScreen(), tea.WithMouseCellMotion())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("failed to run TUI: %w", err)
	}
	return nil
}

func newPoisCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pois",
		Short: "List points of interest",
		Args:  cobra.NoArgs,
		RunE:  runPoisCmd,
	}
	cmd.Flags().Int64Var(&poisSession, "session", 0, "session id")
	cmd.Flags().BoolVar(&poisLive, "live", false, "list markers taken outside recordings")
	cmd.AddCommand(newPoisDeleteCmd())
	return cmd
}

func runPoisCmd(cmd *cobra.Command, _ []string) error {
	if err := applyCommonConfig(cmd); err != nil {
		return err
	}
	if poisSession == 0 && !poisLive {
		return fmt.Errorf("pass --session <id> or --live")
	}
	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()

	var sessionID *int64
	if !poisLive {
		sessionID = &poisSession
	}
	pois, err := st.ListPOIs(context.Background(), sessionID)
	if err != nil {
		return fmt.Errorf("failed to list points of interest: %w", err)
	}
	if len(pois) == 0 {
		logErrln("no points of interest")
		return nil
	}
	for _, poi := range pois {
		line := fmt.Sprintf("%-5d %.5f MHz  %-10s %s",
			poi.ID, poi.FrequencyMHz, poi.Offset.Truncate(time.Millisecond), poi.Description)
		if _, err := fmt.Fprintln(cmd.OutOrStdout(), line); err != nil {
			return fmt.Errorf("failed to write output: %w", err)
		}
	}
	return nil
}

func newPoisDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <poi-id>",
		Short: "Delete a point of interest",
		Args:  cobra.ExactArgs(1),
		RunE:  runPoisDeleteCmd,
	}
}

func runPoisDeleteCmd(cmd *cobra.Command, args []string) error {
	if err := applyCommonConfig(cmd); err != nil {
		return err
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		return fmt.Errorf("invalid poi id %q", args[0])
	}
	st, err := store.Open(dbPath())
	if err != nil {
		return fmt.Errorf("failed to open db: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logErrf("failed to close db: %v\n", cerr)
		}
	}()
	if err := st.DeletePOI(context.Background(), id); err != nil {
		return fmt.Errorf("failed to delete poi: %w", err)
	}
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Create/open config file",
		Args:  cobra.NoArgs,
		RunE:  runConfigCmd,
	}
}

func runConfigCmd(_ *cobra.Command, _ []string) error {
	path := config.DefaultConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("failed to stat config: %w", err)
		}
		if err := os.WriteFile(path, []byte(defaultConfigTemplate()), 0o644); err != nil {
			return fmt.Errorf("failed to write config: %w", err)
		}
	}

	editor := strings.TrimSpace(os.Getenv("EDITOR"))
	if editor == "" {
		editor = "vi"
	}
	parts := strings.Fields(editor)
	if len(parts) == 0 {
		return fmt.Errorf("editor command is empty")
	}
	cmd := exec.Command(parts[0], append(parts[1:], path)...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("failed to open editor: %w", err)
	}
	return nil
}

// applyCommonConfig merges the config file into the flags every
// database-touching subcommand shares. Flags set on the command line
// still win.
func applyCommonConfig(cmd *cobra.Command) error {
	fileCfg, err := config.LoadConfig(config.DefaultConfigPath())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyStringConfig(cmd, "db", &liveDBPath, fileCfg.DBPath)
	applyIntConfig(cmd, "waterfall-depth", &liveDepth, fileCfg.UI.WaterfallDepth)
	return nil
}

func applyStringConfig(cmd *cobra.Command, name string, target, value *string) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyIntConfig(cmd *cobra.Command, name string, target, value *int) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func applyFloatConfig(cmd *cobra.Command, name string, target, value *float64) {
	if value == nil {
		return
	}
	if cmd.Flags().Changed(name) {
		return
	}
	*target = *value
}

func defaultConfigTemplate() string {
	return fmt.Sprintf(`# k5view configuration
# Uncomment a value to enable it. CLI flags override config values.

[serial]
# port = "/dev/ttyUSB0"    # Serial port (default: first USB port)
# baud = %d             # Baud rate

[record]
# start-debounce = %d      # Active frames required to start recording
# stop-debounce = %d       # Inactive frames required to stop recording
# gap-seconds = %.1f      # Silent-line gap that closes a session
# buckets = %d           # Energy index bucket count

[ocr]
# tolerance = %.2f        # Glyph mismatch tolerance (0-1)
# confirm-passes = %d      # Passes before a changed readout is accepted

[ui]
# waterfall-depth = %d    # Waterfall history lines

# db-path = ""             # Database path (default: XDG data dir)
`,
		protocol.DefaultBaud,
		record.DefaultStartDebounce,
		record.DefaultStopDebounce,
		defaultGapSeconds,
		record.DefaultBuckets,
		ocr.DefaultTolerance,
		ocr.DefaultConfirmPasses,
		tui.DefaultWaterfallDepth,
	)
}

func logErrf(format string, args ...any) {
	if _, err := fmt.Fprintf(os.Stderr, format, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}

func logErrln(args ...any) {
	if _, err := fmt.Fprintln(os.Stderr, args...); err != nil {
		// Best-effort logging to stderr.
		_ = err
	}
}
