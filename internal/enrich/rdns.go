// Package enrich resolves the names of the hosts that answered probes.
package enrich

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/parisprobe/internal/trace"
	log "github.com/sirupsen/logrus"
)

// AddrLookuper performs reverse lookups. *net.Resolver implements it.
type AddrLookuper interface {
	LookupAddr(ctx context.Context, addr string) ([]string, error)
}

// Resolver performs cached reverse DNS lookups.
type Resolver struct {
	lookuper AddrLookuper
	timeout  time.Duration
	negTTL   time.Duration
	cache    *Cache[netip.Addr, string]
	logger   *log.Logger
}

// Config holds configuration for the resolver.
type Config struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	// NegativeTTL is how long failed lookups are remembered
	NegativeTTL time.Duration
	Lookuper    AddrLookuper
	Logger      *log.Logger
}

// DefaultConfig returns default resolver configuration.
func DefaultConfig() Config {
	return Config{
		Timeout:     2 * time.Second,
		CacheSize:   1000,
		CacheTTL:    time.Hour,
		NegativeTTL: time.Minute,
	}
}

// NewResolver creates a new reverse DNS resolver.
func NewResolver(config Config) *Resolver {
	if config.Timeout == 0 {
		config.Timeout = 2 * time.Second
	}
	if config.NegativeTTL == 0 {
		config.NegativeTTL = time.Minute
	}
	if config.Lookuper == nil {
		config.Lookuper = net.DefaultResolver
	}

	return &Resolver{
		lookuper: config.Lookuper,
		timeout:  config.Timeout,
		negTTL:   config.NegativeTTL,
		cache:    NewCache[netip.Addr, string](config.CacheSize, config.CacheTTL),
		logger:   config.Logger,
	}
}

// Resolve returns the name of addr. DNS failures are common and only
// reported through the boolean; they are cached briefly.
func (r *Resolver) Resolve(ctx context.Context, addr netip.Addr) (string, bool) {
	if !addr.IsValid() {
		return "", false
	}

	if cached, ok := r.cache.Get(addr); ok {
		return cached, cached != ""
	}

	lookupCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	names, err := r.lookuper.LookupAddr(lookupCtx, addr.String())
	if err != nil || len(names) == 0 {
		if r.logger != nil {
			r.logger.WithField("addr", addr).Debugf("reverse lookup failed: %v", err)
		}
		// Cache negative result briefly to avoid repeated failures
		r.cache.SetWithTTL(addr, "", r.negTTL)
		return "", false
	}

	// Remove trailing dot from FQDN
	hostname := strings.TrimSuffix(names[0], ".")
	r.cache.Set(addr, hostname)
	return hostname, true
}

// ResolveBatch resolves several addresses concurrently.
func (r *Resolver) ResolveBatch(ctx context.Context, addrs []netip.Addr) map[netip.Addr]string {
	results := make(map[netip.Addr]string)
	var mu sync.Mutex
	var wg sync.WaitGroup

	// Limit concurrency
	sem := make(chan struct{}, 10)

	seen := make(map[netip.Addr]bool)
	for _, a := range addrs {
		if !a.IsValid() || seen[a] {
			continue
		}
		seen[a] = true

		wg.Add(1)
		go func(a netip.Addr) {
			defer wg.Done()

			sem <- struct{}{}
			defer func() { <-sem }()

			if name, ok := r.Resolve(ctx, a); ok {
				mu.Lock()
				results[a] = name
				mu.Unlock()
			}
		}(a)
	}

	wg.Wait()
	return results
}

// Prefetch returns a trace handler that starts resolving every responder in
// the background as events arrive, warming the cache for later formatting.
// The handler itself never blocks.
func (r *Resolver) Prefetch(ctx context.Context) trace.Handler {
	return func(ev trace.Event, opts trace.Options, _ trace.HopState) {
		if !opts.DoResolve || ev.Reply == nil {
			return
		}
		go r.Resolve(ctx, ev.Reply.Src)
	}
}

// Close releases resources held by the resolver.
func (r *Resolver) Close() error {
	r.cache.Clear()
	return nil
}
