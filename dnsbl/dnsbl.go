// Package dnsbl checks connecting addresses against a DNS blackhole list,
// caching results so repeat connections from the same address don't
// re-query on every accept.
package dnsbl

import (
	"fmt"
	"net"
	"sync"
	"time"
)

const (
	expireSweepInterval = 30 * time.Minute
	entryTTL            = 8 * time.Hour
)

type entry struct {
	listed net.IP
	at     time.Time
}

// Checker queries a single DNSBL zone (e.g. "zen.spamhaus.org") and caches
// results in memory for entryTTL.
type Checker struct {
	zone  string
	mu    sync.Mutex
	cache map[string]entry
	stop  chan struct{}
}

// New starts a Checker against the given DNSBL zone and its background
// cache-expiry sweep. Call Stop when the server shuts down.
func New(zone string) *Checker {
	c := &Checker{
		zone:  zone,
		cache: map[string]entry{},
		stop:  make(chan struct{}),
	}
	go c.expireLoop()
	return c
}

func (c *Checker) Stop() {
	close(c.stop)
}

func (c *Checker) expireLoop() {
	t := time.NewTicker(expireSweepInterval)
	defer t.Stop()
	for {
		select {
		case <-c.stop:
			return
		case now := <-t.C:
			c.mu.Lock()
			for k, v := range c.cache {
				if now.Sub(v.at) > entryTTL {
					delete(c.cache, k)
				}
			}
			c.mu.Unlock()
		}
	}
}

func (c *Checker) query(ip net.IP) (net.IP, error) {
	ip4 := ip.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("dnsbl: IPv6 not supported")
	}

	query := fmt.Sprintf("%d.%d.%d.%d.%s", ip4[3], ip4[2], ip4[1], ip4[0], c.zone)
	addrs, err := net.LookupIP(query)
	if err != nil {
		return nil, err
	}
	if len(addrs) == 0 {
		return nil, nil
	}
	if len(addrs) != 1 {
		return nil, fmt.Errorf("dnsbl: several replies received, ignoring all of them")
	}

	return addrs[0].To4(), nil
}

// Check returns a non-nil IP (the blacklist's answer code) if ip is
// listed. Private and non-global addresses are never queried.
func (c *Checker) Check(ip net.IP) (net.IP, error) {
	if !ip.IsGlobalUnicast() || ip.IsPrivate() {
		return nil, nil
	}

	key := ip.String()

	c.mu.Lock()
	if e, ok := c.cache[key]; ok {
		c.mu.Unlock()
		return e.listed, nil
	}
	c.mu.Unlock()

	listed, err := c.query(ip)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[key] = entry{listed: listed, at: time.Now()}
	c.mu.Unlock()

	return listed, nil
}
