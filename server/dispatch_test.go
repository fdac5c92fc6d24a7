package server

import (
	"io"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/MarSonyTM/ft-irc/internal/logging"
	"github.com/MarSonyTM/ft-irc/netpoll"
	"github.com/MarSonyTM/ft-irc/parse"
)

// newTestPair returns a connected socket pair: fd is handed to a Client,
// peer is read from the test to observe what the dispatcher wrote. Client
// state is driven through fd-based sockets (unix.Socketpair) rather than
// net.Pipe, matching the raw-fd model the event loop itself uses.
func newTestPair(t *testing.T) (fd, peer int) {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if err := unix.SetNonblock(fds[1], true); err != nil {
		t.Fatalf("set nonblock: %v", err)
	}
	t.Cleanup(func() {
		netpoll.Close(fds[0])
		netpoll.Close(fds[1])
	})
	return fds[0], fds[1]
}

func newTestServer(t *testing.T, password string) *Server {
	t.Helper()
	log := logging.New(io.Discard, logging.LevelError)
	s, err := New(Config{Password: password, HostToken: "test.irc"}, log)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func newTestClient(t *testing.T, s *Server, hostname string) (*Client, int) {
	t.Helper()
	fd, peer := newTestPair(t)
	c := newClient(fd, hostname, s.log)
	s.clientsByFd[fd] = c
	return c, peer
}

func drain(t *testing.T, peer int) string {
	t.Helper()
	buf := make([]byte, 8192)
	deadline := time.Now().Add(200 * time.Millisecond)
	var out strings.Builder
	for time.Now().Before(deadline) {
		n, err := unix.Read(peer, buf)
		if err != nil {
			if err == unix.EAGAIN {
				time.Sleep(2 * time.Millisecond)
				continue
			}
			break
		}
		if n == 0 {
			break
		}
		out.Write(buf[:n])
	}
	return out.String()
}

func registerClient(t *testing.T, s *Server, c *Client, nick, user string) {
	t.Helper()
	s.dispatch(c, parse.Line("PASS "+s.cfg.Password))
	s.dispatch(c, parse.Line("NICK "+nick))
	s.dispatch(c, parse.Line("USER "+user+" 0 * :"+user+" Realname"))
}

func TestRegistrationSendsWelcomeOnce(t *testing.T) {
	s := newTestServer(t, "secret")
	c, peer := newTestClient(t, s, "10.0.0.1")

	registerClient(t, s, c, "alice", "alice")

	out := drain(t, peer)
	if !c.registered {
		t.Fatalf("client not registered after PASS/NICK/USER, output: %q", out)
	}
	if strings.Count(out, " 001 ") != 1 {
		t.Fatalf("expected exactly one RPL_WELCOME, got: %q", out)
	}

	// Re-sending NICK after registration must not re-trigger welcome.
	s.dispatch(c, parse.Line("NICK alice2"))
	out2 := drain(t, peer)
	if strings.Contains(out2, " 001 ") {
		t.Fatalf("unexpected second RPL_WELCOME: %q", out2)
	}
}

func TestBadPasswordRejected(t *testing.T) {
	s := newTestServer(t, "secret")
	c, peer := newTestClient(t, s, "10.0.0.1")

	s.dispatch(c, parse.Line("PASS wrong"))
	out := drain(t, peer)
	if !strings.Contains(out, " 464 ") {
		t.Fatalf("expected ERR_PASSWDMISMATCH, got: %q", out)
	}
	if c.authenticated {
		t.Fatalf("client must not be authenticated after wrong password")
	}
}

func TestNicknameCollision(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "bob", "bob")
	drain(t, peerA)

	s.dispatch(b, parse.Line("PASS secret"))
	s.dispatch(b, parse.Line("NICK bob"))
	out := drain(t, peerB)
	if !strings.Contains(out, " 433 ") {
		t.Fatalf("expected ERR_NICKNAMEINUSE, got: %q", out)
	}
	if b.nickname == "bob" {
		t.Fatalf("colliding nick must not be assigned")
	}
}

func TestJoinBroadcastsToAllMembersIncludingJoiner(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "alice", "alice")
	registerClient(t, s, b, "bob", "bob")
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("JOIN #test"))
	outA := drain(t, peerA)
	if !strings.Contains(outA, "JOIN #test") {
		t.Fatalf("joiner did not see its own JOIN broadcast: %q", outA)
	}

	ch := s.findChannel("#test")
	if ch == nil || !ch.hasMember(a) {
		t.Fatalf("channel not created or client not a member")
	}
	if !ch.isOperator(a) {
		t.Fatalf("channel creator must become operator")
	}

	s.dispatch(b, parse.Line("JOIN #test"))
	drain(t, peerB)
	outA2 := drain(t, peerA)
	if !strings.Contains(outA2, "bob!bob@test.irc JOIN #test") {
		t.Fatalf("existing member did not observe bob's JOIN: %q", outA2)
	}
}

func TestRejoinExistingChannelIsNoOp(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "alice", "alice")
	registerClient(t, s, b, "bob", "bob")
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("JOIN #locked"))
	drain(t, peerA)
	s.dispatch(b, parse.Line("JOIN #locked"))
	drain(t, peerA)
	drain(t, peerB)

	ch := s.findChannel("#locked")
	s.dispatch(a, parse.Line("MODE #locked +i"))
	drain(t, peerA)
	drain(t, peerB)

	// bob is already a member: re-sending JOIN to a now-invite-only channel
	// must be a silent no-op, not an ERR_INVITEONLYCHAN rejection.
	s.dispatch(b, parse.Line("JOIN #locked"))
	outB := drain(t, peerB)
	if outB != "" {
		t.Fatalf("re-JOIN by existing member must be silent, got: %q", outB)
	}
	if !ch.hasMember(b) {
		t.Fatalf("bob should remain a member after re-JOIN")
	}
}

func TestPrivmsgToChannelEchoesToSender(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "alice", "alice")
	registerClient(t, s, b, "bob", "bob")
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("JOIN #chat"))
	drain(t, peerA)
	s.dispatch(b, parse.Line("JOIN #chat"))
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("PRIVMSG #chat :hello there"))
	outA := drain(t, peerA)
	outB := drain(t, peerB)

	if !strings.Contains(outA, "PRIVMSG #chat :hello there") {
		t.Fatalf("sender did not receive echo of its own PRIVMSG: %q", outA)
	}
	if !strings.Contains(outB, "PRIVMSG #chat :hello there") {
		t.Fatalf("other member did not receive PRIVMSG: %q", outB)
	}
}

func TestModeOperatorGrantAndKick(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "alice", "alice")
	registerClient(t, s, b, "bob", "bob")
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("JOIN #ops"))
	drain(t, peerA)
	s.dispatch(b, parse.Line("JOIN #ops"))
	drain(t, peerA)
	drain(t, peerB)

	ch := s.findChannel("#ops")

	s.dispatch(b, parse.Line("KICK #ops alice"))
	outB := drain(t, peerB)
	if !strings.Contains(outB, " 482 ") {
		t.Fatalf("non-operator kick must be rejected: %q", outB)
	}

	s.dispatch(a, parse.Line("MODE #ops +o bob"))
	drain(t, peerA)
	drain(t, peerB)
	if !ch.isOperator(b) {
		t.Fatalf("bob should be operator after MODE +o")
	}

	s.dispatch(b, parse.Line("KICK #ops alice :bye"))
	outA := drain(t, peerA)
	if !strings.Contains(outA, "KICK #ops alice :bye") {
		t.Fatalf("expected KICK broadcast to reach alice: %q", outA)
	}
	if ch.hasMember(a) {
		t.Fatalf("alice should have been removed from channel")
	}
}

func TestQuitRemovesFromAllChannelsAndDisconnects(t *testing.T) {
	s := newTestServer(t, "secret")
	a, peerA := newTestClient(t, s, "10.0.0.1")
	b, peerB := newTestClient(t, s, "10.0.0.2")

	registerClient(t, s, a, "alice", "alice")
	registerClient(t, s, b, "bob", "bob")
	drain(t, peerA)
	drain(t, peerB)

	s.dispatch(a, parse.Line("JOIN #q"))
	drain(t, peerA)
	s.dispatch(b, parse.Line("JOIN #q"))
	drain(t, peerA)
	drain(t, peerB)

	// New already created the poller, so the QUIT handler's disconnect
	// step runs here without Start().
	ch := s.findChannel("#q")
	s.dispatch(a, parse.Line("QUIT :leaving"))

	outB := drain(t, peerB)
	if !strings.Contains(outB, "QUIT :leaving") {
		t.Fatalf("expected bob to observe alice's QUIT: %q", outB)
	}
	if ch.hasMember(a) {
		t.Fatalf("alice should no longer be a channel member after QUIT")
	}
	if _, ok := s.clientsByFd[a.fd]; ok {
		t.Fatalf("alice should have been disconnected and dropped from the registry after QUIT")
	}
}
