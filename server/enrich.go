package server

import (
	"net"
	"time"

	"github.com/MarSonyTM/ft-irc/ident"
	"github.com/MarSonyTM/ft-irc/portscan"
)

const enrichTimeout = 5 * time.Second

// enrichResult carries the outcome of one background enrichment lookup
// back to the event loop. The loop is the only goroutine allowed to touch
// Client fields; enrichment goroutines only ever write to this struct and
// send it on Server.enrich, per spec.md §5's single-mutator invariant.
type enrichResult struct {
	fd int

	hostname string // set if rDNS resolved
	ident    string // set if ident resolved

	blacklisted bool
	proxyPort   uint16

	killReason string // non-empty: loop must disconnect this fd
}

// startEnrichment launches the optional connection-time lookups configured
// in cfg for a freshly accepted client. It never blocks the caller; each
// lookup runs in its own goroutine and reports through s.enrich.
func (s *Server) startEnrichment(fd int, remoteIP net.IP, remotePort uint16, localIP net.IP, localPort uint16) {
	if s.cfg.EnableRDNS {
		go s.enrichRDNS(fd, remoteIP)
	}
	if s.cfg.EnableIdent {
		go s.enrichIdent(fd, localIP, remoteIP, localPort, remotePort)
	}
	if s.dnsblChecker != nil {
		go s.enrichDNSBL(fd, remoteIP)
	}
	if s.cfg.EnableProxyScan {
		go s.enrichProxyScan(fd, remoteIP)
	}
}

func (s *Server) enrichRDNS(fd int, ip net.IP) {
	name, err := s.rdnsResolver.Resolve(ip)
	if err != nil {
		s.log.Debugf("rdns lookup for fd %d failed: %v", fd, err)
		return
	}
	s.enrich <- enrichResult{fd: fd, hostname: name}
}

func (s *Server) enrichIdent(fd int, localIP, remoteIP net.IP, localPort, remotePort uint16) {
	username, err := ident.Query(localIP, remoteIP, localPort, remotePort, enrichTimeout)
	if err != nil {
		s.log.Debugf("ident lookup for fd %d failed: %v", fd, err)
		return
	}
	s.enrich <- enrichResult{fd: fd, ident: username}
}

func (s *Server) enrichDNSBL(fd int, ip net.IP) {
	listed, err := s.dnsblChecker.Check(ip)
	if err != nil {
		s.log.Debugf("dnsbl check for fd %d failed: %v", fd, err)
		return
	}
	if listed == nil {
		return
	}
	s.enrich <- enrichResult{fd: fd, blacklisted: true, killReason: "Closing Link: (DNSBL listed)"}
}

func (s *Server) enrichProxyScan(fd int, ip net.IP) {
	port := portscan.ProbeOpenProxy(ip, enrichTimeout)
	if port == 0 {
		return
	}
	s.enrich <- enrichResult{fd: fd, proxyPort: port, killReason: "Closing Link: (open proxy detected)"}
}

// applyEnrichResult folds one background lookup's outcome into Registry
// state. Called only from the event-loop goroutine.
func (s *Server) applyEnrichResult(r enrichResult) {
	c, ok := s.clientsByFd[r.fd]
	if !ok {
		return
	}

	if r.hostname != "" {
		c.hostname = r.hostname
		s.log.Debugf("fd %d resolved to hostname %s", r.fd, r.hostname)
	}
	if r.ident != "" {
		c.ident = r.ident
		s.log.Debugf("fd %d resolved ident %s", r.fd, r.ident)
	}
	if r.killReason != "" {
		s.sendRaw(c, "ERROR :"+r.killReason+"\r\n")
		s.disconnect(c, r.killReason)
	}
}
