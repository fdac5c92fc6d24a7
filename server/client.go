package server

import (
	"github.com/google/uuid"

	"github.com/MarSonyTM/ft-irc/buffer"
	"github.com/MarSonyTM/ft-irc/internal/logging"
)

// Client is a single connection's identity and framing state. Created on
// accept, destroyed on disconnect. A Client never outlives its Registry
// entry in Server.clientsByFd; Channel membership slices hold the same
// pointer as a weak reference (see DESIGN.md).
type Client struct {
	fd     int
	connID uuid.UUID
	log    logging.Logger

	hostname string // numeric at accept, may be replaced by rDNS enrichment
	nickname string
	username string
	realname string
	ident    string // set by optional ident lookup; overrides username in masks

	authenticated bool
	registered    bool
	welcomed      bool // RPL_WELCOME must be sent exactly once

	lineBuf *buffer.LineBuffer

	// channels this client currently has joined, in join order. Weak
	// references: the Server/Registry owns the *Channel values.
	channels []*Channel
}

func newClient(fd int, hostname string, log logging.Logger) *Client {
	id := uuid.New()
	return &Client{
		fd:       fd,
		connID:   id,
		log:      log.With(id),
		hostname: hostname,
		lineBuf:  buffer.New(),
	}
}

// maskUsername is the username portion of this client's nick!user@host
// mask: the ident-resolved name if ident enrichment completed, else the
// USER-supplied username.
func (c *Client) maskUsername() string {
	if c.ident != "" {
		return c.ident
	}
	return c.username
}

// mask renders this client's nick!user@host source string against the
// given server host token.
func (c *Client) mask(hostToken string) string {
	return c.nickname + "!" + c.maskUsername() + "@" + hostToken
}

func (c *Client) inChannel(ch *Channel) bool {
	for _, m := range c.channels {
		if m == ch {
			return true
		}
	}
	return false
}

func (c *Client) addChannel(ch *Channel) {
	if c.inChannel(ch) {
		return
	}
	c.channels = append(c.channels, ch)
}

func (c *Client) removeChannel(ch *Channel) {
	for i, m := range c.channels {
		if m == ch {
			c.channels = append(c.channels[:i], c.channels[i+1:]...)
			return
		}
	}
}
