package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/parisprobe/internal/config"
	"github.com/KilimcininKorOglu/parisprobe/internal/engine"
	"github.com/KilimcininKorOglu/parisprobe/internal/output"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
	"github.com/KilimcininKorOglu/parisprobe/internal/tui"
)

var (
	// Probe flags (shared by traceroute and ping)
	useICMP    bool
	useUDP     bool
	useTCP     bool
	methodName string
	srcPort    int
	dstPort    int
	tcpAck     bool
	flowLabel  int
	packetSize int
	timeout    time.Duration
	pcapFile   string

	// Network settings
	forceIPv4 bool
	forceIPv6 bool
	sourceIP  string

	// Output flags
	verbose     bool
	jsonOutput  bool
	csvOutput   bool
	outFile     string
	noColor     bool
	noResolve   bool
	concurrency int

	// Logging
	logLevel string
	logFile  string

	// Traceroute flags
	firstHop        int
	maxHops         int
	probeCount      int
	maxUndiscovered int
	tuiMode         bool
	tuiTheme        string

	// Config file
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "parisprobe [flags] <target>...",
	Short: "Paris traceroute and ping",
	Long: `parisprobe - Paris traceroute and ping

parisprobe discovers the path to a destination while keeping every probe
of a run in the same flow, so load balancers along the way send them all
down the same path. Probes are told apart by a tag hidden in a field that
routers do not hash on: the ICMP sequence number, the UDP checksum or the
TCP sequence number.

Examples:
  parisprobe example.com              Trace using ICMP echo probes
  parisprobe -U example.com           UDP probes to port 53
  parisprobe -T -P 443 example.com    TCP SYN probes to port 443
  parisprobe -v a.example b.example   Trace two targets, table output
  parisprobe --tui example.com        Interactive TUI mode
  parisprobe ping -c 10 example.com   Paris ping
  parisprobe config --init            Create default config file`,
	Args:              cobra.ArbitraryArgs,
	PersistentPreRunE: loadConfig,
	RunE:              runTrace,
	SilenceUsage:      true,
}

func init() {
	pf := rootCmd.PersistentFlags()

	// Config file flag
	pf.StringVar(&cfgFile, "config", "", "Config file (default: ~/.config/parisprobe/config.yaml)")

	// Probe method flags
	pf.BoolVarP(&useICMP, "icmp", "I", false, "Use ICMP Echo probes (default)")
	pf.BoolVarP(&useUDP, "udp", "U", false, "Use UDP probes to port 53")
	pf.BoolVarP(&useTCP, "tcp", "T", false, "Use TCP probes to port 80")
	pf.StringVar(&methodName, "method", "icmp", "Probe method: icmp, udp or tcp")
	pf.IntVarP(&srcPort, "src-port", "S", 0, "Source port (UDP/TCP)")
	pf.IntVarP(&dstPort, "port", "P", 0, "Destination port (UDP/TCP)")
	pf.BoolVarP(&tcpAck, "tcp-ack", "k", false, "Send TCP ACK instead of SYN")
	pf.IntVarP(&flowLabel, "flow-label", "F", 0, "IPv6 flow label")
	pf.IntVarP(&packetSize, "size", "s", 0, "Total packet size in bytes (0 for the smallest)")
	pf.DurationVarP(&timeout, "timeout", "w", 0, "Probe timeout")
	pf.StringVar(&pcapFile, "pcap", "", "Write every probe and reply to a pcap file")

	// Network settings
	pf.BoolVarP(&forceIPv4, "ipv4", "4", false, "Use IPv4 only")
	pf.BoolVarP(&forceIPv6, "ipv6", "6", false, "Use IPv6 only")
	pf.StringVar(&sourceIP, "source", "", "Source IP address")

	// Output flags
	pf.BoolVarP(&verbose, "verbose", "v", false, "Detailed output")
	pf.BoolVarP(&jsonOutput, "json", "j", false, "Output in JSON format")
	pf.BoolVar(&csvOutput, "csv", false, "Output in CSV format")
	pf.StringVarP(&outFile, "output", "o", "", "Also write the result to a file")
	pf.BoolVar(&noColor, "no-color", false, "Disable colored output")
	pf.BoolVarP(&noResolve, "numeric", "n", false, "Do not resolve hostnames")
	pf.IntVar(&concurrency, "concurrency", 0, "Targets probed at the same time")

	// Logging
	pf.StringVar(&logLevel, "log-level", "", "Log level (error, warn, info, debug, trace)")
	pf.StringVar(&logFile, "log-file", "", "Write logs to a rotated file")

	// Traceroute parameters
	rootCmd.Flags().IntVarP(&firstHop, "first-hop", "f", 0, "Start from specified hop")
	rootCmd.Flags().IntVarP(&maxHops, "max-hops", "m", 0, "Maximum number of hops")
	rootCmd.Flags().IntVarP(&probeCount, "queries", "q", 0, "Number of probes per hop")
	rootCmd.Flags().IntVarP(&maxUndiscovered, "max-undiscovered", "Q", 0, "Stop after this many hops revealing nothing new")
	rootCmd.Flags().BoolVar(&tuiMode, "tui", false, "Interactive TUI mode")
	rootCmd.Flags().StringVar(&tuiTheme, "theme", "dark", "TUI theme: dark, light or minimal")

	// Add subcommands
	rootCmd.AddCommand(pingCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
}

// loadConfig loads configuration from file and applies defaults
func loadConfig(cmd *cobra.Command, args []string) error {
	var err error

	if cfgFile != "" {
		// Custom config file specified
		cfg, err = config.LoadFrom(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	} else {
		// Try to load from default locations
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	// Apply config defaults if flags not explicitly set
	applyConfigDefaults(cmd)

	return nil
}

// applyConfigDefaults applies config file values for unset flags
func applyConfigDefaults(cmd *cobra.Command) {
	if cfg == nil {
		return
	}

	defaults := cfg.Defaults
	changed := cmd.Flags().Changed

	// Output mode from config (if no flag set)
	if !changed("tui") && defaults.TUI {
		tuiMode = true
	}
	if !changed("verbose") && defaults.Verbose {
		verbose = true
	}
	if !changed("json") && defaults.JSON {
		jsonOutput = true
	}
	if !changed("csv") && defaults.CSV {
		csvOutput = true
	}
	if !changed("no-color") && defaults.NoColor {
		noColor = true
	}
	if !changed("numeric") && !defaults.Enrichment.RDNS {
		noResolve = true
	}

	// Probe method from config
	if !changed("method") && defaults.ProbeMethod != "" {
		methodName = defaults.ProbeMethod
	}
	if !changed("src-port") && defaults.SrcPort > 0 {
		srcPort = defaults.SrcPort
	}
	if !changed("port") && defaults.DstPort > 0 {
		dstPort = defaults.DstPort
	}
	if !changed("tcp-ack") && defaults.TCPAck {
		tcpAck = true
	}
	if !changed("flow-label") && defaults.FlowLabel > 0 {
		flowLabel = defaults.FlowLabel
	}
	if !changed("size") && defaults.PacketSize > 0 {
		packetSize = defaults.PacketSize
	}
	if !changed("timeout") {
		timeout = orDuration(defaults.Timeout, engine.DefaultTimeout)
	}
	if !changed("concurrency") {
		concurrency = orInt(defaults.Concurrency, engine.DefaultConcurrency)
	}
	if !changed("pcap") && defaults.Pcap != "" {
		pcapFile = defaults.Pcap
	}

	// Network settings from config
	if !changed("ipv4") && defaults.IPv4 {
		forceIPv4 = true
	}
	if !changed("ipv6") && defaults.IPv6 {
		forceIPv6 = true
	}

	// Traceroute parameters from config
	tr := defaults.Traceroute
	if !changed("first-hop") {
		firstHop = orInt(tr.FirstHop, 1)
	}
	if !changed("max-hops") {
		maxHops = orInt(tr.MaxHops, 30)
	}
	if !changed("queries") {
		probeCount = orInt(tr.Queries, 3)
	}
	if !changed("max-undiscovered") {
		maxUndiscovered = orInt(tr.MaxUndiscovered, 3)
	}

	// Ping parameters from config
	p := defaults.Ping
	if !changed("count") {
		pingCount = orInt(p.Count, 5)
	}
	if !changed("interval") {
		pingInterval = orDuration(p.Interval, time.Second)
	}
	if !changed("ttl") {
		pingTTL = orInt(p.TTL, 64)
	}
	if !changed("timestamp") && p.ShowTimestamp {
		showTimestamp = true
	}
}

func orInt(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}

func orDuration(v, def time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return def
}

// targets returns the command line targets with aliases resolved, or
// prompts for one.
func targets(args []string) ([]string, error) {
	if len(args) == 0 {
		target, err := promptForTarget()
		if err != nil {
			return nil, err
		}
		args = []string{target}
	}
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = a
		if cfg != nil {
			out[i] = cfg.ResolveAlias(a)
		}
	}
	return out, nil
}

func runTrace(cmd *cobra.Command, args []string) error {
	names, err := targets(args)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, err := newRunEnv()
	if err != nil {
		return err
	}
	defer env.Close()

	stdoutColors()

	// If TUI mode requested, run TUI
	if tuiMode {
		if len(names) != 1 {
			return errors.New("--tui takes a single target")
		}
		return runTraceTUI(ctx, env, names[0])
	}

	results := make([]*trace.TraceResult, len(names))
	jobs := make([]engine.Job, len(names))
	stream := streaming(len(names))
	for i, name := range names {
		i, name := i, name
		jobs[i] = engine.Job{Name: name, Run: func(ctx context.Context) error {
			res, err := traceOne(ctx, env, name, i, stream)
			results[i] = res
			return err
		}}
	}

	jobResults := engine.RunAll(ctx, jobs, concurrency)

	for _, res := range results {
		if res == nil {
			continue
		}
		if !stream {
			writer := output.NewWriter(outputFormat(), outputConfig())
			if err := writer.Write(res); err != nil {
				return err
			}
		}
		if outFile != "" {
			if err := output.WriteToFile(res, outFile, fileFormatter(outFile)); err != nil {
				return fmt.Errorf("failed to write %s: %w", outFile, err)
			}
		}
	}

	return jobErrors(jobResults)
}

// traceOne runs a traceroute to target. With stream set, hops are printed
// as they are resolved.
func traceOne(ctx context.Context, env *runEnv, target string, index int, stream bool) (*trace.TraceResult, error) {
	pt, err := openTarget(ctx, env, target, index)
	if err != nil {
		return nil, err
	}
	defer pt.Close()

	opts := tracerouteOptions(pt.dst)
	rec := trace.NewRecorder(target, pt.dst, pt.skel.Method.String())

	handlers := []trace.Handler{rec.Handle, env.prefetch(ctx)}
	tf := output.NewTextFormatter(outputConfig())
	if stream {
		fmt.Print(tf.TraceHeader(target, net.IP(pt.dst.AsSlice()), maxHops))
		ts := output.NewTraceStream(os.Stdout, tf, rec, env.names(ctx))
		handlers = append(handlers, ts.Handle)
	}

	m, err := trace.NewTraceroute(opts, probe.NewFactory(pt.skel), trace.Chain(handlers...))
	if err != nil {
		return nil, err
	}
	loop, err := engine.NewLoop(m, pt.conn, pt.conn, pt.skel, env.loopConfig())
	if err != nil {
		return nil, err
	}

	runErr := loop.Run(ctx)
	res := rec.Result()
	if env.resolver != nil {
		env.resolver.AnnotateTrace(context.WithoutCancel(ctx), res)
	}
	if stream {
		fmt.Print(tf.TraceSummary(res))
	}
	return res, runErr
}

func tracerouteOptions(dst netip.Addr) trace.TracerouteOptions {
	opts := trace.DefaultTracerouteOptions()
	opts.MinTTL = firstHop
	opts.MaxTTL = maxHops
	opts.NumProbes = probeCount
	opts.MaxUndiscovered = maxUndiscovered
	opts.Destination = dst
	opts.DoResolve = !noResolve
	return opts
}

// runTraceTUI shows a single traceroute in the interactive UI.
func runTraceTUI(ctx context.Context, env *runEnv, target string) error {
	pt, err := openTarget(ctx, env, target, 0)
	if err != nil {
		return err
	}
	defer pt.Close()

	// The UI owns the terminal.
	env.logger.SetOutput(io.Discard)

	rec := trace.NewRecorder(target, pt.dst, pt.skel.Method.String())
	session := &tui.Session{
		Target:   target,
		Method:   pt.skel.Method.String(),
		MaxHops:  maxHops,
		Recorder: rec,
		Names:    env.names(ctx),
		Theme:    tuiTheme,
		Run: func(ctx context.Context, h trace.Handler) error {
			m, err := trace.NewTraceroute(tracerouteOptions(pt.dst), probe.NewFactory(pt.skel),
				trace.Chain(env.prefetch(ctx), h))
			if err != nil {
				return err
			}
			loop, err := engine.NewLoop(m, pt.conn, pt.conn, pt.skel, env.loopConfig())
			if err != nil {
				return err
			}
			return loop.Run(ctx)
		},
	}

	res, err := tui.Run(ctx, session)
	if err != nil {
		return err
	}
	if outFile != "" {
		if err := output.WriteToFile(res, outFile, fileFormatter(outFile)); err != nil {
			return fmt.Errorf("failed to write %s: %w", outFile, err)
		}
	}
	return nil
}

// promptForTarget displays an interactive prompt for the user to enter a target
func promptForTarget() (string, error) {
	if !output.IsTerminal(os.Stdin) {
		return "", errors.New("no target given")
	}

	// Title
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	fmt.Println()
	cyan.Println("╔═══════════════════════════════════════════════════════════╗")
	cyan.Println("║          parisprobe - Paris traceroute and ping           ║")
	cyan.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	// Show aliases if any
	if cfg != nil && len(cfg.Aliases) > 0 {
		aliases := make([]string, 0, len(cfg.Aliases))
		for alias := range cfg.Aliases {
			aliases = append(aliases, alias)
		}
		sort.Strings(aliases)

		fmt.Println("  Aliases:")
		for _, alias := range aliases {
			yellow.Printf("    • %s → %s\n", alias, cfg.Aliases[alias])
		}
		fmt.Println()
	}

	// Prompt
	reader := bufio.NewReader(os.Stdin)

	for {
		green.Print("  Enter target (IP or hostname): ")

		input, err := reader.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", fmt.Errorf("no input provided")
			}
			return "", fmt.Errorf("failed to read input: %w", err)
		}

		// Clean input
		target := strings.TrimSpace(input)

		// Validate
		if target == "" {
			color.Red("  ✗ Target cannot be empty. Please try again.")
			fmt.Println()
			continue
		}

		// Check for quit commands
		if target == "q" || target == "quit" || target == "exit" {
			return "", errors.New("aborted")
		}

		fmt.Println()
		return target, nil
	}
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// SetVersion sets version information for the CLI.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}
