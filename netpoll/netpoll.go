//go:build linux

// Package netpoll is the thin, single-threaded readiness-poll wrapper the
// event loop is built on: a listening socket plus a dynamic set of client
// sockets, all watched by one epoll instance, with no threads and no
// blocking calls anywhere but the wait itself.
//
// This is deliberately minimal: everything socket-related that isn't
// "wait for readiness, then read/accept" belongs to the server package.
package netpoll

import (
	"encoding/binary"
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// Poller owns one epoll instance and the set of fds registered with it,
// plus an eventfd used to wake a goroutine parked in Wait from any other
// goroutine (Wait's timeout is otherwise infinite).
type Poller struct {
	epfd   int
	wakeFd int
}

// New creates an epoll instance and its wakeup eventfd, registering the
// latter for readability so Wake can interrupt an in-progress Wait.
func New() (*Poller, error) {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return nil, fmt.Errorf("epoll_create1: %w", err)
	}

	wakeFd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, fmt.Errorf("eventfd: %w", err)
	}

	p := &Poller{epfd: epfd, wakeFd: wakeFd}
	if err := p.Add(wakeFd); err != nil {
		unix.Close(epfd)
		unix.Close(wakeFd)
		return nil, err
	}

	return p, nil
}

// WakeFd returns the eventfd registered for wakeups. Wait can report it
// ready like any other watched fd; callers must recognise it and drain it
// (a plain 8-byte read) rather than treating it as a client connection.
func (p *Poller) WakeFd() int {
	return p.wakeFd
}

// Wake unblocks a goroutine parked in Wait. Safe to call from any
// goroutine, any number of times; the loop only needs to be told "check
// your stop condition", not how many times Wake was called.
func (p *Poller) Wake() error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 1)
	if _, err := unix.Write(p.wakeFd, buf); err != nil && err != unix.EAGAIN {
		return fmt.Errorf("eventfd write: %w", err)
	}
	return nil
}

// DrainWake consumes a pending wakeup notification so the eventfd doesn't
// stay perpetually readable.
func (p *Poller) DrainWake() {
	buf := make([]byte, 8)
	_, _ = unix.Read(p.wakeFd, buf)
}

// Add registers fd for readability notifications.
func (p *Poller) Add(fd int) error {
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(fd)}
	if err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, &ev); err != nil {
		return fmt.Errorf("epoll_ctl(add, %d): %w", fd, err)
	}
	return nil
}

// Remove deregisters fd. It is not an error to remove an fd that has
// already been closed (the kernel does this automatically on close, so a
// stale removal is tolerated).
func (p *Poller) Remove(fd int) {
	_ = unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
}

// Wait blocks with an infinite timeout until at least one registered fd is
// ready, then returns the ready fds (which may include WakeFd, if Wake was
// called). EINTR is retried internally so callers never observe it,
// matching the C reference's "if interrupted, retry" loop step.
func (p *Poller) Wait() ([]int, error) {
	events := make([]unix.EpollEvent, 128)
	for {
		n, err := unix.EpollWait(p.epfd, events, -1)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return nil, fmt.Errorf("epoll_wait: %w", err)
		}

		ready := make([]int, 0, n)
		for i := 0; i < n; i++ {
			ready = append(ready, int(events[i].Fd))
		}
		return ready, nil
	}
}

// Close releases the epoll instance and its wakeup eventfd.
func (p *Poller) Close() error {
	unix.Close(p.wakeFd)
	return unix.Close(p.epfd)
}

// Listen opens a non-blocking TCP listening socket per spec: AF_INET,
// INADDR_ANY, SO_REUSEADDR, backlog 5.
func Listen(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, fmt.Errorf("socket: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("setsockopt(SO_REUSEADDR): %w", err)
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("set non-blocking: %w", err)
	}

	addr := &unix.SockaddrInet4{Port: port}
	if err := unix.Bind(fd, addr); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("bind: %w", err)
	}

	if err := unix.Listen(fd, 5); err != nil {
		unix.Close(fd)
		return -1, fmt.Errorf("listen: %w", err)
	}

	return fd, nil
}

// Accept accepts one pending connection off the listening fd and puts it
// in non-blocking mode. It returns (-1, nil, nil) if there is nothing to
// accept (EAGAIN/EWOULDBLOCK), which the caller treats as a no-op rather
// than an error.
func Accept(listenFd int) (fd int, addr unix.Sockaddr, err error) {
	fd, addr, err = unix.Accept(listenFd)
	if err != nil {
		if err == unix.EAGAIN {
			return -1, nil, nil
		}
		return -1, nil, err
	}

	if err := unix.SetNonblock(fd, true); err != nil {
		unix.Close(fd)
		return -1, nil, err
	}

	return fd, addr, nil
}

// Read performs one read of up to len(buf) bytes. It reports io.EOF-like
// semantics the way the C reference does: n == 0 means the peer closed
// the connection.
func Read(fd int, buf []byte) (int, error) {
	n, err := unix.Read(fd, buf)
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Write is a best-effort single send; per spec §7 the server never queues
// unsent bytes on a short write.
func Write(fd int, data []byte) (int, error) {
	return unix.Write(fd, data)
}

// Close closes fd, ignoring "already closed" races.
func Close(fd int) {
	_ = unix.Close(fd)
}

// NumericHost renders addr's IP portion the way getnameinfo(NI_NUMERICHOST)
// would: a bare numeric address string, used as a connecting client's
// hostname before any optional reverse-DNS enrichment completes.
func NumericHost(addr unix.Sockaddr) string {
	switch a := addr.(type) {
	case *unix.SockaddrInet4:
		return fmt.Sprintf("%d.%d.%d.%d", a.Addr[0], a.Addr[1], a.Addr[2], a.Addr[3])
	case *unix.SockaddrInet6:
		return fmt.Sprintf("%x", a.Addr)
	default:
		return "unknown"
	}
}

// SockaddrToIP extracts a net.IP and port from a unix.Sockaddr, for
// callers (connection enrichment) that need the standard library's
// address types rather than raw socket structures.
func SockaddrToIP(addr unix.Sockaddr) (net.IP, uint16) {
	switch a := addr.(type) {
	case *unix.SockaddrInet4:
		ip := make(net.IP, 4)
		copy(ip, a.Addr[:])
		return ip, uint16(a.Port)
	case *unix.SockaddrInet6:
		ip := make(net.IP, 16)
		copy(ip, a.Addr[:])
		return ip, uint16(a.Port)
	default:
		return nil, 0
	}
}

// LocalAddr returns the local address a socket fd is bound to.
func LocalAddr(fd int) (net.IP, uint16, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return nil, 0, fmt.Errorf("getsockname: %w", err)
	}
	ip, port := SockaddrToIP(sa)
	return ip, port, nil
}
