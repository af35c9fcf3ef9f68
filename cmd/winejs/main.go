package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JohnDoe6345789/winejs/internal/config"
	"github.com/JohnDoe6345789/winejs/internal/disasm"
	"github.com/JohnDoe6345789/winejs/internal/emulator"
	"github.com/JohnDoe6345789/winejs/internal/host"
	glog "github.com/JohnDoe6345789/winejs/internal/log"
	"github.com/JohnDoe6345789/winejs/internal/script"
	"github.com/JohnDoe6345789/winejs/internal/stubs"
	"github.com/JohnDoe6345789/winejs/internal/trace"
	"github.com/JohnDoe6345789/winejs/internal/ui/colorize"
	"github.com/JohnDoe6345789/winejs/internal/winsock"
)

var (
	verbose     bool
	quiet       bool
	maxInsn     int
	maxSteps    int
	configPath  string
	scriptPaths []string
	backendURL  string
	base64Input bool
	showStrings bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "winejs [program.exe]",
		Short: "Run 64-bit Windows console programs on a small x86-64 emulator",
		Long: `winejs loads a PE32+ executable and interprets its x86-64 code in place.

Calls through the import address table are answered by Go stubs for
kernel32, user32, the C runtime, DirectX and Winsock, or by JavaScript hooks loaded with
--script. Winsock sockets can be tunnelled to a WebSocket backend.

Examples:
  winejs hello.exe                  # colorized trace, console output, stats
  winejs hello.exe -q               # console output and status only
  winejs run hello.exe --script hooks.js
  winejs info hello.exe             # headers, sections and imports
  winejs debug hello.exe            # interactive step debugger`,
		Args:                  cobra.MaximumNArgs(1),
		DisableFlagsInUseLine: true,
		RunE:                  runTrace,
	}
	addRunFlags(rootCmd)
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose debug output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")

	runCmd := &cobra.Command{
		Use:   "run <program.exe>",
		Short: "Run a program and print its trace",
		Args:  cobra.ExactArgs(1),
		RunE:  runTrace,
	}
	addRunFlags(runCmd)

	infoCmd := &cobra.Command{
		Use:   "info <program.exe>",
		Short: "Show headers, sections and imports",
		Args:  cobra.ExactArgs(1),
		RunE:  showInfo,
	}

	debugCmd := &cobra.Command{
		Use:   "debug <program.exe>",
		Short: "Step through a program interactively",
		Args:  cobra.ExactArgs(1),
		RunE:  runDebug,
	}
	debugCmd.Flags().StringArrayVar(&scriptPaths, "script", nil, "JavaScript import hooks (repeatable)")
	debugCmd.Flags().StringVar(&backendURL, "backend", "", "Winsock WebSocket backend URL")
	debugCmd.Flags().BoolVar(&base64Input, "base64", false, "input file holds base64 text")

	rootCmd.AddCommand(runCmd, infoCmd, debugCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "quiet mode (console output and status only)")
	cmd.Flags().IntVarP(&maxInsn, "num", "n", 500, "max instructions to show")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "step budget (default from config)")
	cmd.Flags().StringArrayVar(&scriptPaths, "script", nil, "JavaScript import hooks (repeatable)")
	cmd.Flags().StringVar(&backendURL, "backend", "", "Winsock WebSocket backend URL")
	cmd.Flags().BoolVar(&base64Input, "base64", false, "input file holds base64 text")
	cmd.Flags().BoolVar(&showStrings, "strings", false, "print printable strings found in the file")
}

// traceCollector buffers stub events until the next instruction is printed.
type traceCollector struct {
	mu     sync.Mutex
	events []*trace.Event
	count  int
}

func (tc *traceCollector) Add(e *trace.Event) {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.events = append(tc.events, e)
	tc.count++
}

func (tc *traceCollector) GetAndClear() []*trace.Event {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	events := tc.events
	tc.events = nil
	return events
}

func setup() {
	glog.Init(verbose)
	stubs.Debug = verbose
	colorize.AutoDetect(os.Stdout)
}

func loadConfig() (*config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return nil, err
		}
	}
	if maxSteps > 0 {
		cfg.MaxSteps = maxSteps
	}
	if backendURL != "" {
		cfg.Winsock.Enabled = true
		cfg.Winsock.URL = backendURL
	}
	cfg.Scripts = append(cfg.Scripts, scriptPaths...)
	return cfg, cfg.Validate()
}

func readInput(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if base64Input {
		return host.DecodeBase64Executable(string(data))
	}
	return data, nil
}

// hostOptions loads scripts and dials the Winsock backend. The returned
// cleanup closes the backend connection.
func hostOptions(ctx context.Context, cfg *config.Config) ([]host.Option, func(), error) {
	opts := []host.Option{host.WithLogger(glog.L)}
	cleanup := func() {}

	engines, err := script.LoadAll(cfg.Scripts, glog.L)
	if err != nil {
		return nil, cleanup, err
	}
	if len(engines) > 0 {
		opts = append(opts, host.WithScripts(engines...))
	}

	if cfg.Winsock.Enabled {
		dctx, cancel := context.WithTimeout(ctx, cfg.Winsock.ConnectTimeout)
		client, err := winsock.Dial(dctx, cfg.Winsock.URL, glog.L)
		cancel()
		if err != nil {
			glog.L.Warn("winsock backend unavailable", zap.String("url", cfg.Winsock.URL), zap.Error(err))
		} else {
			bridge := winsock.NewBridge(client, glog.L)
			opts = append(opts, host.WithBridge(bridge))
			cleanup = func() {
				bridge.Detach()
				if err := client.Close(); err != nil {
					glog.L.Debug("winsock close", zap.Error(err))
				}
			}
		}
	}
	return opts, cleanup, nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}
	path := args[0]
	setup()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := readInput(path)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts, cleanup, err := hostOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	collector := &traceCollector{}
	var out *outputWriter
	if !quiet {
		out = newOutputWriter()
	}

	count := 0
	var pending *disasm.Line
	flush := func() {
		if pending != nil && out != nil {
			line := formatLine(*pending, collector.GetAndClear())
			out.Write(line)
			if isBlockEnd(pending.Text) {
				out.Write("")
			}
		}
		pending = nil
	}
	opts = append(opts,
		host.WithEventHook(collector.Add),
		host.WithCodeHook(func(cpu *emulator.CPU, in *emulator.Instruction) {
			flush()
			count++
			if count > maxInsn || quiet {
				return
			}
			line := disasm.At(cpu, in.Address)
			pending = &line
		}),
	)

	h := host.Default(cfg, opts...)
	name := filepath.Base(path)
	if out != nil {
		printHeader(out, path, data, h)
	}

	rep := h.Run(ctx, name, data)
	flush()
	if out != nil {
		out.Close()
	}

	if quiet {
		printQuietSummary(rep)
		return nil
	}
	printReport(rep, collector.count)
	if showStrings {
		printStrings(rep.Strings)
	}
	return nil
}

func runDebug(cmd *cobra.Command, args []string) error {
	setup()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Console.Enabled = true
	data, err := readInput(args[0])
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	opts, cleanup, err := hostOptions(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()
	return debug(ctx, host.Default(cfg, opts...), filepath.Base(args[0]), data)
}

func relPath(p string) string {
	if cwd, err := os.Getwd(); err == nil {
		if rel, err := filepath.Rel(cwd, p); err == nil && !strings.HasPrefix(rel, "..") {
			return rel
		}
	}
	return p
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
