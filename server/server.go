// Package server implements the connection registry, channel/membership
// state machine, and command dispatcher of the IRC daemon core. The event
// loop itself lives in loop.go and is built on the netpoll package; this
// file holds the Registry and the operations every handler needs.
package server

import (
	"fmt"
	"time"

	"github.com/MarSonyTM/ft-irc/dnsbl"
	"github.com/MarSonyTM/ft-irc/internal/logging"
	"github.com/MarSonyTM/ft-irc/netpoll"
	"github.com/MarSonyTM/ft-irc/rdns"
)

// Config carries everything the embedding process supplies per spec.md
// §6: the fields the core dispatcher and event loop need, plus the
// optional connection-enrichment toggles SPEC_FULL.md adds.
type Config struct {
	Port     int
	Password string

	// HostToken is the fixed server-host string used as the source of
	// every server-originated message (reference value "ft_irc").
	HostToken string

	LogLevel logging.Level
	MOTD     []string

	EnableRDNS      bool
	EnableIdent     bool
	EnableProxyScan bool
	DNSBLDomain     string
}

// Server owns every Client and Channel for the process's lifetime: the
// Registry described in spec.md §3.
type Server struct {
	cfg Config
	log logging.Logger

	poller   *netpoll.Poller
	listenFd int

	clientsByFd map[int]*Client
	channels    map[string]*Channel

	enrich       chan enrichResult
	dnsblChecker *dnsbl.Checker
	rdnsResolver *rdns.Resolver

	stopCh chan struct{}
}

// New constructs a Server and its poller, but performs no listening I/O;
// call Start to bind and begin serving. The poller (and its wakeup
// eventfd) is created here rather than in Start so that Stop can always
// reach it safely, even if called concurrently with or just before Start.
func New(cfg Config, log logging.Logger) (*Server, error) {
	if cfg.HostToken == "" {
		cfg.HostToken = "ft_irc"
	}

	poller, err := netpoll.New()
	if err != nil {
		return nil, fmt.Errorf("create poller: %w", err)
	}

	s := &Server{
		cfg:         cfg,
		log:         log,
		poller:      poller,
		clientsByFd: map[int]*Client{},
		channels:    map[string]*Channel{},
		enrich:      make(chan enrichResult, 64),
		stopCh:      make(chan struct{}),
	}
	if cfg.DNSBLDomain != "" {
		s.dnsblChecker = dnsbl.New(cfg.DNSBLDomain)
	}
	if cfg.EnableRDNS {
		s.rdnsResolver = rdns.New(enrichTimeout)
	}
	return s, nil
}

// findClientByNick performs the linear scan spec.md §3 calls out as the
// Registry's nickname lookup strategy: "acceptable at IRC fan-in scale".
func (s *Server) findClientByNick(nick string) *Client {
	for _, c := range s.clientsByFd {
		if c.nickname == nick {
			return c
		}
	}
	return nil
}

func (s *Server) findChannel(name string) *Channel {
	return s.channels[name]
}

func (s *Server) createChannel(name string) *Channel {
	ch := newChannel(name)
	s.channels[name] = ch
	return ch
}

// destroyChannelIfEmpty removes ch from the Registry immediately once its
// member list is empty, per spec.md §3's invariant 3.
func (s *Server) destroyChannelIfEmpty(ch *Channel) {
	if ch.empty() {
		delete(s.channels, ch.name)
		s.log.Debugf("destroyed empty channel %s", ch.name)
	}
}

// sendRaw writes msg to c's socket, best-effort: per spec.md §7, a failed
// or short write is never retried or queued. It is left for the next read
// on that fd to discover the disconnect.
func (s *Server) sendRaw(c *Client, msg string) {
	if _, err := netpoll.Write(c.fd, []byte(msg)); err != nil {
		s.log.Debugf("write to fd %d failed: %v", c.fd, err)
	}
}

// numericReply formats and sends a numeric reply per spec.md §4.3:
// ":<host> NNN <nick-or-*> <text>\r\n".
func (s *Server) numericReply(c *Client, code int, text string) {
	target := c.nickname
	if target == "" {
		target = "*"
	}
	msg := fmt.Sprintf(":%s %03d %s %s\r\n", s.cfg.HostToken, code, target, text)
	s.sendRaw(c, msg)
}

// broadcastToChannel writes msg to every member of ch except exclude; if
// exclude is a member it additionally receives the message too. This is
// the echo-to-sender behaviour spec.md §4.4 pins down as intentional for
// PRIVMSG and deliberately preserved everywhere broadcast is used.
func (s *Server) broadcastToChannel(ch *Channel, msg string, exclude *Client) {
	for _, m := range ch.members {
		if m != exclude {
			s.sendRaw(m, msg)
		}
	}
	if exclude != nil && ch.hasMember(exclude) {
		s.sendRaw(exclude, msg)
	}
}

func sourcePrefix(c *Client, hostToken string) string {
	return ":" + c.mask(hostToken)
}

func unixNow() int64 {
	return time.Now().Unix()
}
