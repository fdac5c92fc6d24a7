package server

// Channel is a named group conversation. The Registry exclusively owns
// Channel lifetimes; Clients hold weak backrefs only (see DESIGN.md).
type Channel struct {
	name string

	topic      string
	topicSetBy string
	topicSetAt int64 // unix seconds; meaningful iff topic != ""

	key string // empty = no key

	members   []*Client
	operators []*Client
	voiced    []*Client
	invited   []*Client
	banList   []string

	inviteOnly     bool
	topicRestricted bool
	limit          int // 0 = unlimited
}

func newChannel(name string) *Channel {
	return &Channel{name: name}
}

func (ch *Channel) hasMember(c *Client) bool {
	return containsClient(ch.members, c)
}

func (ch *Channel) isOperator(c *Client) bool {
	return containsClient(ch.operators, c)
}

func (ch *Channel) isVoiced(c *Client) bool {
	return containsClient(ch.voiced, c)
}

func (ch *Channel) isInvited(c *Client) bool {
	return containsClient(ch.invited, c)
}

func (ch *Channel) addMember(c *Client) {
	if !ch.hasMember(c) {
		ch.members = append(ch.members, c)
	}
}

func (ch *Channel) addOperator(c *Client) {
	if !ch.isOperator(c) {
		ch.operators = append(ch.operators, c)
	}
}

func (ch *Channel) removeOperator(c *Client) {
	ch.operators = removeClient(ch.operators, c)
}

func (ch *Channel) addVoice(c *Client) {
	if !ch.isVoiced(c) {
		ch.voiced = append(ch.voiced, c)
	}
}

func (ch *Channel) removeVoice(c *Client) {
	ch.voiced = removeClient(ch.voiced, c)
}

func (ch *Channel) addInvite(c *Client) {
	if !ch.isInvited(c) {
		ch.invited = append(ch.invited, c)
	}
}

func (ch *Channel) consumeInvite(c *Client) {
	ch.invited = removeClient(ch.invited, c)
}

// removeMember removes c from every membership-related list: members,
// operators, voiced, and invited. Per spec.md §4.4, removal must also purge
// operator and invite state.
func (ch *Channel) removeMember(c *Client) {
	ch.members = removeClient(ch.members, c)
	ch.removeOperator(c)
	ch.removeVoice(c)
	ch.consumeInvite(c)
}

func (ch *Channel) empty() bool {
	return len(ch.members) == 0
}

// isBanned checks c's three canonical candidate masks against the ban
// list, per spec.md §4.4: exact string comparison only, no wildcard
// expansion beyond the three synthesised patterns.
func (ch *Channel) isBanned(c *Client, hostToken string) bool {
	candidates := []string{
		c.nickname + "!*@" + c.hostname,
		c.nickname + "!*@*",
		"*!*@" + c.hostname,
	}
	for _, ban := range ch.banList {
		for _, cand := range candidates {
			if ban == cand {
				return true
			}
		}
	}
	return false
}

func (ch *Channel) addBan(mask string) {
	for _, b := range ch.banList {
		if b == mask {
			return
		}
	}
	ch.banList = append(ch.banList, mask)
}

func (ch *Channel) removeBan(mask string) {
	for i, b := range ch.banList {
		if b == mask {
			ch.banList = append(ch.banList[:i], ch.banList[i+1:]...)
			return
		}
	}
}

// namesReply renders the member list the way RPL_NAMREPLY presents it:
// space-separated nicknames, operators prefixed with @, in member order.
func (ch *Channel) namesReply() string {
	out := ""
	for i, m := range ch.members {
		if i > 0 {
			out += " "
		}
		if ch.isOperator(m) {
			out += "@"
		}
		out += m.nickname
	}
	return out
}

func containsClient(list []*Client, c *Client) bool {
	for _, m := range list {
		if m == c {
			return true
		}
	}
	return false
}

func removeClient(list []*Client, c *Client) []*Client {
	for i, m := range list {
		if m == c {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
