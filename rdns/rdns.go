// Package rdns resolves a connecting client's numeric address to a
// hostname, with a forward-lookup check to guard against forged PTR
// records.
package rdns

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"
)

var validHostname = regexp.MustCompile(`^([a-zA-Z0-9][a-zA-Z0-9-]*\.)*[a-zA-Z0-9][a-zA-Z0-9-]*\.?$`)

// ErrForwardMismatch means the forward lookup on the PTR name didn't
// resolve back to the original address.
var ErrForwardMismatch = fmt.Errorf("address from forward RDNS lookup doesn't match actual address")

const cacheTTL = 30 * time.Minute

type cacheEntry struct {
	name string
	at   time.Time
}

// Resolver performs reverse-DNS lookups with a forward-confirmation
// check, bounding each lookup with a timeout the way ident.Query bounds
// its identd round trip, and caching results the way dnsbl.Checker
// caches blacklist answers so a client reconnecting within cacheTTL
// skips the round trip entirely.
type Resolver struct {
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// New returns a Resolver bounding each lookup to timeout (5s if zero).
func New(timeout time.Duration) *Resolver {
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &Resolver{timeout: timeout, cache: map[string]cacheEntry{}}
}

// Resolve performs a reverse lookup on ip and confirms it forward-resolves
// back to the same address. It is called from the connection-enrichment
// goroutine spawned by the event loop on accept, never from the loop
// itself (see server/enrich.go); the returned error carries no meaning
// beyond "don't trust this name".
func (r *Resolver) Resolve(ip net.IP) (string, error) {
	key := ip.String()

	r.mu.Lock()
	if e, ok := r.cache[key]; ok && time.Since(e.at) < cacheTTL {
		r.mu.Unlock()
		return e.name, nil
	}
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	name, err := reverseLookup(ctx, key)
	if err != nil {
		return "", err
	}
	if err := confirmForward(ctx, name, key); err != nil {
		return name, err
	}

	r.mu.Lock()
	r.cache[key] = cacheEntry{name: name, at: time.Now()}
	r.mu.Unlock()

	return name, nil
}

func reverseLookup(ctx context.Context, ip string) (string, error) {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("no RDNS name found")
	}
	if len(names) != 1 {
		return "", fmt.Errorf("got multiple RDNS names (%#v), not using any of them", names)
	}

	name := names[0]
	if !validHostname.MatchString(name) {
		return "", fmt.Errorf("invalid hostname received from RDNS")
	}
	return name, nil
}

func confirmForward(ctx context.Context, name, ip string) error {
	addrs, err := net.DefaultResolver.LookupHost(ctx, name)
	if err != nil {
		return err
	}
	if len(addrs) == 0 {
		return fmt.Errorf("no results for forward lookup on received RDNS name")
	}
	if len(addrs) != 1 {
		return fmt.Errorf("got multiple results for forward lookup on received RDNS name")
	}
	if addrs[0] != ip {
		return ErrForwardMismatch
	}
	return nil
}
