package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/KilimcininKorOglu/parisprobe/internal/capture"
	"github.com/KilimcininKorOglu/parisprobe/internal/engine"
	"github.com/KilimcininKorOglu/parisprobe/internal/enrich"
	"github.com/KilimcininKorOglu/parisprobe/internal/logging"
	"github.com/KilimcininKorOglu/parisprobe/internal/network"
	"github.com/KilimcininKorOglu/parisprobe/internal/output"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
)

// runEnv holds what every probing run of one command invocation shares.
type runEnv struct {
	logger   *log.Logger
	resolver *enrich.Resolver
	pcap     *capture.Writer
}

func newRunEnv() (*runEnv, error) {
	logCfg := logging.DefaultConfig()
	if cfg != nil {
		logCfg = cfg.Logging
	}
	if logLevel != "" {
		logCfg.Level = logLevel
	}
	if logFile != "" {
		logCfg.File = logFile
	}
	logger, err := logging.New(logCfg)
	if err != nil {
		return nil, err
	}

	env := &runEnv{logger: logger}

	if !noResolve {
		rcfg := enrich.DefaultConfig()
		if cfg != nil && cfg.Defaults.Enrichment.CacheTTL > 0 {
			rcfg.CacheTTL = cfg.Defaults.Enrichment.CacheTTL
		}
		rcfg.Logger = logger
		env.resolver = enrich.NewResolver(rcfg)
	}

	if pcapFile != "" {
		w, err := capture.Create(pcapFile)
		if err != nil {
			env.Close()
			return nil, err
		}
		env.pcap = w
	}
	return env, nil
}

func (e *runEnv) Close() {
	if e.resolver != nil {
		e.resolver.Close()
	}
	if e.pcap != nil {
		if err := e.pcap.Close(); err != nil {
			e.logger.Warnf("failed to close capture: %v", err)
		} else {
			e.logger.Infof("wrote %d packets to %s", e.pcap.Count(), pcapFile)
		}
	}
}

// capture returns the packet recorder of the loops, nil without --pcap.
func (e *runEnv) capture() engine.PacketRecorder {
	if e.pcap == nil {
		return nil
	}
	return e.pcap
}

// names returns the hostname lookup used by formatters, nil with -n.
func (e *runEnv) names(ctx context.Context) output.NameFunc {
	if e.resolver == nil {
		return nil
	}
	return func(ip net.IP) string {
		return e.resolver.NameOf(ctx, ip)
	}
}

// prefetch returns the handler warming the name cache, nil with -n.
func (e *runEnv) prefetch(ctx context.Context) trace.Handler {
	if e.resolver == nil {
		return nil
	}
	return e.resolver.Prefetch(ctx)
}

// probeTarget is a resolved destination with its open sockets.
type probeTarget struct {
	name string
	dst  netip.Addr
	skel *probe.Skeleton
	conn *network.Conn
}

func (t *probeTarget) Close() error {
	return t.conn.Close()
}

// loopConfig returns the engine settings shared by every run.
func (e *runEnv) loopConfig() engine.Config {
	return engine.Config{
		Timeout: timeout,
		Capture: e.capture(),
		Logger:  e.logger,
	}
}

// probeMethod returns the selected method and the destination port implied
// by the shortcut flags (0 when none).
func probeMethod() (probe.Method, uint16, error) {
	switch {
	case useUDP:
		return probe.MethodUDP, probe.DNSPort, nil
	case useTCP:
		return probe.MethodTCP, probe.HTTPPort, nil
	case useICMP:
		return probe.MethodICMP, 0, nil
	}
	m, err := probe.ParseMethod(methodName)
	return m, 0, err
}

func family() trace.Family {
	switch {
	case forceIPv4:
		return trace.FamilyIPv4
	case forceIPv6:
		return trace.FamilyIPv6
	}
	return trace.FamilyAny
}

// openTarget resolves target and prepares the skeleton and sockets of the
// index-th run. Each run gets its own ICMP identifier and source port so
// concurrent runs never match each other's replies.
func openTarget(ctx context.Context, env *runEnv, target string, index int) (*probeTarget, error) {
	if forceIPv4 && forceIPv6 {
		return nil, errors.New("-4 and -6 are mutually exclusive")
	}

	dst, err := trace.ResolveTarget(ctx, nil, target, family())
	if err != nil {
		return nil, err
	}

	var src netip.Addr
	if sourceIP != "" {
		src, err = netip.ParseAddr(sourceIP)
		if err != nil {
			return nil, fmt.Errorf("invalid source address %q: %w", sourceIP, err)
		}
		src = src.Unmap()
	} else {
		src, err = network.SourceFor(dst)
		if err != nil {
			return nil, err
		}
	}

	method, impliedPort, err := probeMethod()
	if err != nil {
		return nil, err
	}

	skel := probe.NewSkeleton(method, src, dst)
	switch {
	case dstPort > 0:
		skel.DstPort = uint16(dstPort)
	case impliedPort > 0:
		skel.DstPort = impliedPort
	}
	if srcPort > 0 {
		skel.SrcPort = uint16(srcPort)
	}
	skel.SrcPort += uint16(index)
	skel.Identifier += uint16(index)
	skel.TCPAck = tcpAck
	skel.FlowLabel = uint32(flowLabel)
	skel.PacketSize = packetSize
	if err := skel.Validate(); err != nil {
		return nil, err
	}

	conn, err := network.Open(network.Options{
		Method: method,
		Dst:    dst,
		Logger: env.logger,
	})
	if err != nil {
		if errors.Is(err, network.ErrPermissionDenied) {
			return nil, fmt.Errorf("%w (run as root or grant CAP_NET_RAW)", err)
		}
		return nil, err
	}

	env.logger.WithFields(log.Fields{
		"target": target,
		"dst":    dst,
		"src":    src,
		"method": method,
	}).Debug("target ready")

	return &probeTarget{name: target, dst: dst, skel: skel, conn: conn}, nil
}

// outputFormat returns the format selected by the output flags.
func outputFormat() output.Format {
	switch {
	case jsonOutput:
		return output.FormatJSON
	case csvOutput:
		return output.FormatCSV
	case verbose:
		return output.FormatVerbose
	}
	return output.FormatText
}

func outputConfig() output.Config {
	return output.Config{
		Colors:     !noColor,
		NoHostname: noResolve,
		MaxHops:    maxHops,
	}
}

// fileFormatter returns the formatter used for -o, chosen by extension
// unless an output flag was given.
func fileFormatter(path string) output.Formatter {
	format := outputFormat()
	if format == output.FormatText {
		switch {
		case strings.HasSuffix(path, ".json"):
			format = output.FormatJSON
		case strings.HasSuffix(path, ".csv"):
			format = output.FormatCSV
		}
	}
	c := outputConfig()
	c.Colors = false
	return output.NewFormatter(format, c)
}

// streaming reports whether results are printed line by line as they come.
func streaming(targets int) bool {
	return targets == 1 && outputFormat() == output.FormatText
}

// stdoutColors disables colors when stdout is not a terminal.
func stdoutColors() {
	if !output.IsTerminal(os.Stdout) {
		noColor = true
	}
}

// jobErrors reports the failed jobs on stderr and returns an error if any
// failed for another reason than cancellation.
func jobErrors(results []engine.JobResult) error {
	failed := 0
	for _, r := range results {
		if r.Err == nil || errors.Is(r.Err, context.Canceled) {
			continue
		}
		failed++
		fmt.Fprintf(os.Stderr, "%s: %v\n", r.Name, r.Err)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d targets failed", failed, len(results))
	}
	return nil
}
