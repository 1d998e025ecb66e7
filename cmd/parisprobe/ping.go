package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KilimcininKorOglu/parisprobe/internal/engine"
	"github.com/KilimcininKorOglu/parisprobe/internal/output"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

var (
	pingCount     int
	pingInterval  time.Duration
	pingTTL       int
	pingQuiet     bool
	showTimestamp bool
)

var pingCmd = &cobra.Command{
	Use:   "ping [flags] <target>...",
	Short: "Paris ping: repeated probes in a single flow",
	Long: `Send a series of probes that all follow the same path.

Every probe keeps the flow fields of the first one, so the round-trip
times are measured along a single path even behind load balancers. With
-t, probes expire at that hop and the router there answers instead.

Examples:
  parisprobe ping example.com            Five ICMP echo probes
  parisprobe ping -U -c 20 example.com   UDP probes to port 53
  parisprobe ping -t 5 example.com       Ping the 5th router on the path`,
	Args: cobra.ArbitraryArgs,
	RunE: runPing,
}

func init() {
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 0, "Number of probes")
	pingCmd.Flags().DurationVarP(&pingInterval, "interval", "i", 0, "Time between probes")
	pingCmd.Flags().IntVarP(&pingTTL, "ttl", "t", 0, "IP time to live of the probes")
	pingCmd.Flags().BoolVarP(&pingQuiet, "quiet", "q", false, "Only print the summary")
	pingCmd.Flags().BoolVarP(&showTimestamp, "timestamp", "D", false, "Print the receive time before each line")
}

func runPing(cmd *cobra.Command, args []string) error {
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

	results := make([]*trace.PingResult, len(names))
	jobs := make([]engine.Job, len(names))
	stream := streaming(len(names))
	for i, name := range names {
		i, name := i, name
		jobs[i] = engine.Job{Name: name, Run: func(ctx context.Context) error {
			res, err := pingOne(ctx, env, name, i, stream)
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
			if err := writer.WritePing(res); err != nil {
				return err
			}
		}
		if outFile != "" {
			if err := output.WritePingToFile(res, outFile, fileFormatter(outFile)); err != nil {
				return fmt.Errorf("failed to write %s: %w", outFile, err)
			}
		}
	}

	return jobErrors(jobResults)
}

// pingOne pings target. With stream set, replies are printed as they
// arrive.
func pingOne(ctx context.Context, env *runEnv, target string, index int, stream bool) (*trace.PingResult, error) {
	pt, err := openTarget(ctx, env, target, index)
	if err != nil {
		return nil, err
	}
	defer pt.Close()

	opts := trace.DefaultPingOptions()
	opts.TTL = pingTTL
	opts.Count = pingCount
	opts.PacketSize = packetSize
	opts.Interval = pingInterval
	opts.Quiet = pingQuiet
	opts.Verbose = verbose
	opts.ShowTimestamp = showTimestamp
	opts.Destination = pt.dst
	opts.DoResolve = !noResolve

	rec := trace.NewPingRecorder(target, pt.dst, pt.skel.Method.String())

	handlers := []trace.Handler{rec.Handle, env.prefetch(ctx)}
	tf := output.NewTextFormatter(outputConfig())
	if stream {
		size := pt.skel.PacketSize
		if size == 0 {
			size = pt.skel.MinPacketSize()
		}
		fmt.Print(tf.PingHeader(target, net.IP(pt.dst.AsSlice()), size))
		lineOpts := output.PingLineOptions{Verbose: opts.Verbose, ShowTimestamp: opts.ShowTimestamp}
		ps := output.NewPingStream(os.Stdout, tf, lineOpts, opts.Quiet, env.names(ctx))
		handlers = append(handlers, ps.Handle)
	}

	m, err := trace.NewPing(opts, probe.NewFactory(pt.skel), trace.Chain(handlers...))
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
		env.resolver.AnnotatePing(context.WithoutCancel(ctx), res)
	}
	if stream {
		fmt.Print(tf.PingSummary(res))
	}
	return res, runErr
}
