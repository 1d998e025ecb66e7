package main

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KilimcininKorOglu/parisprobe/internal/config"
	"github.com/KilimcininKorOglu/parisprobe/internal/engine"
	"github.com/KilimcininKorOglu/parisprobe/internal/output"
	"github.com/KilimcininKorOglu/parisprobe/internal/probe"
)

// resetFlags restores the flag variables touched by a test.
func resetFlags(t *testing.T) {
	t.Helper()
	useICMP, useUDP, useTCP, methodName = false, false, false, "icmp"
	jsonOutput, csvOutput, verbose = false, false, false
	forceIPv4, forceIPv6 = false, false
	t.Cleanup(func() {
		useICMP, useUDP, useTCP, methodName = false, false, false, "icmp"
		jsonOutput, csvOutput, verbose = false, false, false
		forceIPv4, forceIPv6 = false, false
		cfg = nil
	})
}

func TestProbeMethod(t *testing.T) {
	tests := []struct {
		name   string
		set    func()
		method probe.Method
		port   uint16
	}{
		{"default", func() {}, probe.MethodICMP, 0},
		{"udp shortcut", func() { useUDP = true }, probe.MethodUDP, probe.DNSPort},
		{"tcp shortcut", func() { useTCP = true }, probe.MethodTCP, probe.HTTPPort},
		{"icmp shortcut", func() { useICMP = true; methodName = "udp" }, probe.MethodICMP, 0},
		{"method flag", func() { methodName = "tcp" }, probe.MethodTCP, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			tt.set()

			m, port, err := probeMethod()
			require.NoError(t, err)
			assert.Equal(t, tt.method, m)
			assert.Equal(t, tt.port, port)
		})
	}
}

func TestProbeMethodUnknown(t *testing.T) {
	resetFlags(t)
	methodName = "sctp"

	_, _, err := probeMethod()
	assert.ErrorIs(t, err, probe.ErrUnknownMethod)
}

func TestOutputFormat(t *testing.T) {
	resetFlags(t)
	assert.Equal(t, output.FormatText, outputFormat())

	verbose = true
	assert.Equal(t, output.FormatVerbose, outputFormat())

	csvOutput = true
	assert.Equal(t, output.FormatCSV, outputFormat())

	jsonOutput = true
	assert.Equal(t, output.FormatJSON, outputFormat())
}

func TestFileFormatter(t *testing.T) {
	resetFlags(t)

	assert.IsType(t, &output.JSONFormatter{}, fileFormatter("out.json"))
	assert.IsType(t, &output.CSVFormatter{}, fileFormatter("out.csv"))
	assert.IsType(t, &output.TextFormatter{}, fileFormatter("out.txt"))

	// An explicit format wins over the extension.
	csvOutput = true
	assert.IsType(t, &output.CSVFormatter{}, fileFormatter("out.json"))
}

func TestStreaming(t *testing.T) {
	resetFlags(t)
	assert.True(t, streaming(1))
	assert.False(t, streaming(2))

	jsonOutput = true
	assert.False(t, streaming(1))
}

func TestJobErrors(t *testing.T) {
	assert.NoError(t, jobErrors([]engine.JobResult{
		{Name: "a"},
		{Name: "b", Err: context.Canceled},
	}))

	err := jobErrors([]engine.JobResult{
		{Name: "a"},
		{Name: "b", Err: errors.New("no route")},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 targets failed")
}

func TestOrDefaults(t *testing.T) {
	assert.Equal(t, 7, orInt(0, 7))
	assert.Equal(t, 3, orInt(3, 7))
	assert.Equal(t, time.Second, orDuration(0, time.Second))
	assert.Equal(t, time.Minute, orDuration(time.Minute, time.Second))
}

func TestApplyConfigDefaults(t *testing.T) {
	resetFlags(t)

	cfg = config.DefaultConfig()
	cfg.Defaults.ProbeMethod = "udp"
	cfg.Defaults.Traceroute.MaxHops = 20
	cfg.Defaults.Ping.Count = 10
	cfg.Defaults.Timeout = 0

	applyConfigDefaults(rootCmd)

	assert.Equal(t, "udp", methodName)
	assert.Equal(t, 20, maxHops)
	assert.Equal(t, 1, firstHop)
	assert.Equal(t, 10, pingCount)
	assert.Equal(t, engine.DefaultTimeout, timeout)
}

func TestTracerouteOptions(t *testing.T) {
	resetFlags(t)
	firstHop, maxHops, probeCount, maxUndiscovered = 2, 12, 1, 4
	noResolve = true
	t.Cleanup(func() { noResolve = false })

	dst := netip.MustParseAddr("192.0.2.1")
	opts := tracerouteOptions(dst)

	assert.Equal(t, 2, opts.MinTTL)
	assert.Equal(t, 12, opts.MaxTTL)
	assert.Equal(t, 1, opts.NumProbes)
	assert.Equal(t, 4, opts.MaxUndiscovered)
	assert.Equal(t, dst, opts.Destination)
	assert.False(t, opts.DoResolve)
	assert.NoError(t, opts.Validate())
}

func TestOpenTargetRejectsBothFamilies(t *testing.T) {
	resetFlags(t)
	forceIPv4, forceIPv6 = true, true

	_, err := openTarget(context.Background(), &runEnv{}, "192.0.2.1", 0)
	assert.Error(t, err)
}
