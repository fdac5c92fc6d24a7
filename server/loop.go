package server

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/MarSonyTM/ft-irc/netpoll"
	"github.com/MarSonyTM/ft-irc/parse"
)

// Start binds the listening socket and runs the event loop until Stop is
// called or an unrecoverable poller error occurs. It blocks the calling
// goroutine: the whole server is single-threaded by design (spec.md §4.5),
// with the sole exception of the best-effort connection-enrichment
// goroutines in enrich.go, which never touch Client state directly.
func (s *Server) Start() error {
	listenFd, err := netpoll.Listen(s.cfg.Port)
	if err != nil {
		return fmt.Errorf("listen on port %d: %w", s.cfg.Port, err)
	}
	s.listenFd = listenFd

	if err := s.poller.Add(s.listenFd); err != nil {
		return fmt.Errorf("watch listen socket: %w", err)
	}

	s.log.Infof("listening on port %d", s.cfg.Port)
	return s.run()
}

// Stop requests a graceful shutdown: every connected client is sent an
// ERROR line and disconnected, then run returns. Safe to call from any
// goroutine (typically a signal handler); it wakes the loop out of a
// possibly indefinite Wait rather than merely setting a flag the loop
// would otherwise only notice on its next readiness event.
func (s *Server) Stop() {
	close(s.stopCh)
	_ = s.poller.Wake()
}

func (s *Server) run() error {
	for {
		select {
		case <-s.stopCh:
			s.shutdown()
			return nil
		default:
		}

		ready, err := s.poller.Wait()
		if err != nil {
			return fmt.Errorf("poll wait: %w", err)
		}

		for _, fd := range ready {
			switch fd {
			case s.poller.WakeFd():
				s.poller.DrainWake()
			case s.listenFd:
				s.acceptAll()
			default:
				s.handleReadable(fd)
			}
		}

		s.drainEnrichment()
	}
}

func (s *Server) shutdown() {
	for _, c := range s.clientsByFd {
		s.sendRaw(c, "ERROR :Closing Link: "+c.hostname+" (Server shutting down)\r\n")
		netpoll.Close(c.fd)
	}
	s.poller.Remove(s.listenFd)
	netpoll.Close(s.listenFd)
	s.poller.Close()
	if s.dnsblChecker != nil {
		s.dnsblChecker.Stop()
	}
}

// acceptAll drains every pending connection on the listening socket in one
// pass, since a burst of simultaneous connects can leave more than one
// pending, rather than accepting one per Wait.
func (s *Server) acceptAll() {
	for {
		fd, addr, err := netpoll.Accept(s.listenFd)
		if err != nil {
			s.log.Debugf("accept failed: %v", err)
			return
		}
		if fd == -1 {
			return
		}
		s.acceptOne(fd, addr)
	}
}

func (s *Server) acceptOne(fd int, addr unix.Sockaddr) {
	if err := s.poller.Add(fd); err != nil {
		s.log.Debugf("failed to watch new connection fd %d: %v", fd, err)
		netpoll.Close(fd)
		return
	}

	hostname := netpoll.NumericHost(addr)
	c := newClient(fd, hostname, s.log)
	s.clientsByFd[fd] = c
	c.log.Infof("accepted connection from %s", hostname)

	remoteIP, remotePort := netpoll.SockaddrToIP(addr)
	if remoteIP != nil {
		localIP, localPort, err := netpoll.LocalAddr(fd)
		if err == nil {
			s.startEnrichment(fd, remoteIP, remotePort, localIP, localPort)
		}
	}
}

func (s *Server) handleReadable(fd int) {
	c, ok := s.clientsByFd[fd]
	if !ok {
		return
	}

	buf := make([]byte, 4096)
	n, err := netpoll.Read(fd, buf)
	if err != nil {
		s.log.Debugf("read from fd %d failed: %v", fd, err)
		s.disconnect(c, "read error")
		return
	}
	if n == 0 {
		s.disconnect(c, "connection closed")
		return
	}

	if !c.lineBuf.Append(buf[:n]) {
		s.sendRaw(c, "ERROR :Closing Link: "+c.hostname+" (Input line too long)\r\n")
		s.disconnect(c, "line buffer overflow")
		return
	}

	for {
		line, ok := c.lineBuf.TakeLine()
		if !ok {
			break
		}
		s.dispatch(c, parse.Line(line))
	}
}

func (s *Server) drainEnrichment() {
	for {
		select {
		case r := <-s.enrich:
			s.applyEnrichResult(r)
		default:
			return
		}
	}
}

// disconnect tears down a client's socket and Registry entry. Callers that
// need to notify peers (QUIT, KICK) must broadcast before calling this.
func (s *Server) disconnect(c *Client, reason string) {
	for _, ch := range append([]*Channel{}, c.channels...) {
		ch.removeMember(c)
		s.destroyChannelIfEmpty(ch)
	}
	c.channels = nil

	s.poller.Remove(c.fd)
	netpoll.Close(c.fd)
	delete(s.clientsByFd, c.fd)
	c.log.Debugf("disconnected: %s", reason)
}
