// Package ident queries the RFC 1413 identification protocol on a
// connecting client's host to resolve the username to embed in its mask,
// as an alternative to trusting the client-supplied USER username.
package ident

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"regexp"
	"strings"
	"time"
)

var validUsername = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_-]{0,31}$`)

// Query asks the ident server at remoteIP:113 who owns the connection
// identified by the (serverPort, remotePort) pair, per RFC 1413. localIP
// is the address the daemon is listening on, used to source the identd
// dial from the same interface.
func Query(localIP, remoteIP net.IP, serverPort, remotePort uint16, timeout time.Duration) (string, error) {
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	d := net.Dialer{
		Timeout:   timeout,
		LocalAddr: &net.TCPAddr{IP: localIP},
	}

	conn, err := d.Dial("tcp", net.JoinHostPort(remoteIP.String(), "113"))
	if err != nil {
		return "", err
	}
	defer conn.Close()
	conn.SetDeadline(time.Now().Add(timeout))

	if _, err := fmt.Fprintf(conn, "%d, %d\r\n", remotePort, serverPort); err != nil {
		return "", err
	}

	r := bufio.NewReader(conn)
	line, err := r.ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}

	line = strings.Trim(line, " \r\n")
	fields := strings.Split(line, ":")
	if len(fields) < 4 {
		return "", fmt.Errorf("malformed response from ident server: %s", line)
	}

	switch strings.TrimSpace(fields[1]) {
	case "USERID":
		username := strings.TrimSpace(fields[3])
		if !validUsername.MatchString(username) {
			return "", fmt.Errorf("malformed username from ident server: %s", username)
		}
		return username, nil
	default:
		return "", fmt.Errorf("error or unknown response from ident server: %s", strings.TrimSpace(fields[1]))
	}
}
