package server

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/MarSonyTM/ft-irc/parse"
)

// dispatch is the top-level command router, spec.md §4.3. It enforces the
// registration gate before handing off to a per-command handler.
func (s *Server) dispatch(c *Client, m *parse.Message) {
	if m == nil {
		return
	}

	switch m.Command {
	case "PASS":
		s.cmdPass(c, m.Params)
		return
	case "NICK":
		s.cmdNick(c, m.Params)
		return
	case "USER":
		s.cmdUser(c, m.Params)
		return
	}

	if !c.registered {
		s.numericReply(c, errNotRegistered, ":You have not registered")
		return
	}

	switch m.Command {
	case "QUIT":
		s.cmdQuit(c, m.Params)
	case "JOIN":
		s.cmdJoin(c, m.Params)
	case "PART":
		s.cmdPart(c, m.Params)
	case "PRIVMSG":
		s.cmdPrivmsg(c, m.Params)
	case "NAMES":
		s.cmdNames(c, m.Params)
	case "TOPIC":
		s.cmdTopic(c, m.Params)
	case "INVITE":
		s.cmdInvite(c, m.Params)
	case "KICK":
		s.cmdKick(c, m.Params)
	case "MODE":
		s.cmdMode(c, m.Params)
	default:
		s.numericReply(c, errUnknownCommand, m.Command+" :Unknown command")
	}
}

func (s *Server) cmdPass(c *Client, params []string) {
	if c.authenticated {
		s.numericReply(c, errAlreadyRegistered, ":You are already registered")
		return
	}
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "PASS :Not enough parameters")
		return
	}
	if params[0] != s.cfg.Password {
		s.numericReply(c, errPasswdMismatch, ":Password incorrect")
		return
	}
	c.authenticated = true
}

func (s *Server) cmdNick(c *Client, params []string) {
	if !c.authenticated {
		s.numericReply(c, errNotRegistered, ":You have not registered")
		return
	}
	if len(params) < 1 || params[0] == "" {
		s.numericReply(c, errNoNicknameGiven, ":No nickname given")
		return
	}

	nick := params[0]
	if !isValidNickname(nick) {
		s.numericReply(c, errErroneusNickname, nick+" :Erroneous nickname")
		return
	}
	if existing := s.findClientByNick(nick); existing != nil && existing != c {
		s.numericReply(c, errNicknameInUse, nick+" :Nickname is already in use")
		return
	}

	c.nickname = nick
	s.tryCompleteRegistration(c)
}

func (s *Server) cmdUser(c *Client, params []string) {
	if !c.authenticated {
		s.numericReply(c, errNotRegistered, ":You have not registered")
		return
	}
	if c.registered {
		s.numericReply(c, errAlreadyRegistered, ":You may not reregister")
		return
	}
	if len(params) < 4 {
		s.numericReply(c, errNeedMoreParams, "USER :Not enough parameters")
		return
	}

	c.username = params[0]
	c.realname = params[3]
	s.tryCompleteRegistration(c)
}

// tryCompleteRegistration emits RPL_WELCOME exactly once, the first time
// both nickname and username are set, per spec.md §8 invariant 5.
func (s *Server) tryCompleteRegistration(c *Client) {
	if c.nickname == "" || c.username == "" || c.welcomed {
		return
	}
	c.registered = true
	c.welcomed = true
	s.numericReply(c, rplWelcome, ":Welcome to the Internet Relay Network "+c.mask(s.cfg.HostToken))
	s.sendMOTD(c)
}

func (s *Server) sendMOTD(c *Client) {
	if len(s.cfg.MOTD) == 0 {
		return
	}
	for _, line := range s.cfg.MOTD {
		s.numericReply(c, rplMotd, ":"+line)
	}
	s.numericReply(c, rplEndOfMotd, ":End of MOTD command")
}

// cmdQuit broadcasts the quit to every channel the client belongs to and
// tears the connection down immediately, per SPEC_FULL.md's resolution of
// spec.md §9's QUIT redesign flag (the original left teardown to the next
// failed read).
func (s *Server) cmdQuit(c *Client, params []string) {
	reason := "Client Quit"
	if len(params) > 0 {
		reason = params[0]
	}

	quitMsg := fmt.Sprintf("%s QUIT :%s\r\n", sourcePrefix(c, s.cfg.HostToken), reason)
	for _, ch := range append([]*Channel{}, c.channels...) {
		s.broadcastToChannel(ch, quitMsg, nil)
		ch.removeMember(c)
		s.destroyChannelIfEmpty(ch)
	}
	c.channels = nil

	s.disconnect(c, "quit")
}

func (s *Server) cmdJoin(c *Client, params []string) {
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "JOIN :Not enough parameters")
		return
	}

	name := params[0]
	key := ""
	if len(params) > 1 {
		key = params[1]
	}

	if !isValidChannelName(name) {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}

	ch := s.findChannel(name)
	created := ch == nil
	if created {
		ch = s.createChannel(name)
	} else if ch.hasMember(c) {
		// Already in the channel: re-joining is a silent no-op, checked
		// before the entry gates below since none of +i/+k/+l/+b apply to
		// someone who is already a member.
		return
	} else {
		if ch.isBanned(c, s.cfg.HostToken) {
			s.numericReply(c, errBannedFromChan, name+" :Cannot join channel (+b) - you are banned")
			return
		}
		if ch.inviteOnly && !ch.isInvited(c) {
			s.numericReply(c, errInviteOnlyChan, name+" :Cannot join channel (+i) - invite only")
			return
		}
		if ch.key != "" && key != ch.key {
			s.numericReply(c, errBadChannelKey, name+" :Cannot join channel (+k) - wrong channel key")
			return
		}
		if ch.limit > 0 && len(ch.members) >= ch.limit {
			s.numericReply(c, errChannelIsFull, name+" :Cannot join channel (+l) - channel is full")
			return
		}
	}

	ch.addMember(c)
	c.addChannel(ch)

	if created {
		ch.addOperator(c)
		if key != "" {
			ch.key = key
		}
	} else {
		ch.consumeInvite(c)
	}

	joinMsg := fmt.Sprintf("%s JOIN %s\r\n", sourcePrefix(c, s.cfg.HostToken), name)
	s.broadcastToChannel(ch, joinMsg, nil)

	s.sendNames(c, ch)

	if ch.topic != "" {
		s.numericReply(c, rplTopic, name+" :"+ch.topic)
	}
}

func (s *Server) sendNames(c *Client, ch *Channel) {
	msg := fmt.Sprintf(":%s %03d %s = %s :%s\r\n", s.cfg.HostToken, rplNamReply, c.nickname, ch.name, ch.namesReply())
	s.sendRaw(c, msg)
	s.numericReply(c, rplEndOfNames, ch.name+" :End of NAMES list")
}

func (s *Server) cmdPart(c *Client, params []string) {
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "PART :Not enough parameters")
		return
	}

	name := params[0]
	ch := s.findChannel(name)
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}
	if !ch.hasMember(c) {
		s.numericReply(c, errNotOnChannel, name+" :You're not on that channel")
		return
	}

	partMsg := fmt.Sprintf("%s PART %s", sourcePrefix(c, s.cfg.HostToken), name)
	if len(params) > 1 {
		partMsg += " :" + params[1]
	}
	partMsg += "\r\n"

	s.broadcastToChannel(ch, partMsg, nil)
	ch.removeMember(c)
	c.removeChannel(ch)
	s.destroyChannelIfEmpty(ch)
}

func (s *Server) cmdPrivmsg(c *Client, params []string) {
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "PRIVMSG :Not enough parameters")
		return
	}
	if len(params) < 2 {
		return
	}

	target := params[0]
	text := params[1]

	if isChannelName(target) {
		ch := s.findChannel(target)
		if ch == nil {
			s.numericReply(c, errNoSuchChannel, target+" :No such channel")
			return
		}
		if !ch.hasMember(c) {
			s.numericReply(c, errCannotSendToChan, target+" :Cannot send to channel")
			return
		}

		msg := fmt.Sprintf("%s PRIVMSG %s :%s\r\n", sourcePrefix(c, s.cfg.HostToken), target, text)
		s.broadcastToChannel(ch, msg, c)
		return
	}

	dest := s.findClientByNick(target)
	if dest == nil {
		s.numericReply(c, errNoSuchNick, target+" :No such nick/channel")
		return
	}

	msg := fmt.Sprintf("%s PRIVMSG %s :%s\r\n", sourcePrefix(c, s.cfg.HostToken), target, text)
	s.sendRaw(dest, msg)
}

func (s *Server) cmdNames(c *Client, params []string) {
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "NAMES :Not enough parameters")
		return
	}
	ch := s.findChannel(params[0])
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, params[0]+" :No such channel")
		return
	}
	s.sendNames(c, ch)
}

func (s *Server) cmdTopic(c *Client, params []string) {
	if len(params) < 1 {
		s.numericReply(c, errNeedMoreParams, "TOPIC :Not enough parameters")
		return
	}

	name := params[0]
	ch := s.findChannel(name)
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}
	if !ch.hasMember(c) {
		s.numericReply(c, errNotOnChannel, name+" :You're not on that channel")
		return
	}

	if len(params) == 1 {
		if ch.topic == "" {
			s.numericReply(c, rplNoTopic, name+" :No topic is set")
		} else {
			s.numericReply(c, rplTopic, name+" :"+ch.topic)
		}
		return
	}

	if ch.topicRestricted && !ch.isOperator(c) {
		s.numericReply(c, errChanOPrivsNeeded, name+" :You're not channel operator")
		return
	}

	ch.topic = params[1]
	ch.topicSetBy = c.nickname
	ch.topicSetAt = unixNow()

	msg := fmt.Sprintf("%s TOPIC %s :%s\r\n", sourcePrefix(c, s.cfg.HostToken), name, ch.topic)
	s.broadcastToChannel(ch, msg, nil)
}

func (s *Server) cmdInvite(c *Client, params []string) {
	if len(params) < 2 {
		s.numericReply(c, errNeedMoreParams, "INVITE :Not enough parameters")
		return
	}

	nick := params[0]
	name := params[1]

	target := s.findClientByNick(nick)
	if target == nil {
		s.numericReply(c, errNoSuchNick, nick+" :No such nick")
		return
	}

	ch := s.findChannel(name)
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}
	if !ch.hasMember(c) {
		s.numericReply(c, errNotOnChannel, name+" :You're not on that channel")
		return
	}
	if !ch.isOperator(c) {
		s.numericReply(c, errChanOPrivsNeeded, name+" :You're not channel operator")
		return
	}

	ch.addInvite(target)

	inviteMsg := fmt.Sprintf("%s INVITE %s %s\r\n", sourcePrefix(c, s.cfg.HostToken), nick, name)
	s.sendRaw(target, inviteMsg)

	s.numericReply(c, rplInviting, nick+" "+name)
}

func (s *Server) cmdKick(c *Client, params []string) {
	if len(params) < 2 {
		s.numericReply(c, errNeedMoreParams, "KICK :Not enough parameters")
		return
	}

	name := params[0]
	targetNick := params[1]
	reason := c.nickname
	if len(params) > 2 {
		reason = params[2]
	}

	ch := s.findChannel(name)
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}
	if !ch.hasMember(c) {
		s.numericReply(c, errNotOnChannel, name+" :You're not on that channel")
		return
	}
	if !ch.isOperator(c) {
		s.numericReply(c, errChanOPrivsNeeded, name+" :You're not channel operator")
		return
	}

	target := s.findClientByNick(targetNick)
	if target == nil {
		s.numericReply(c, errNoSuchNick, targetNick+" :No such nick/channel")
		return
	}
	if !ch.hasMember(target) {
		s.numericReply(c, errUserNotInChannel, name+" :They aren't on that channel")
		return
	}

	kickMsg := fmt.Sprintf("%s KICK %s %s :%s\r\n", sourcePrefix(c, s.cfg.HostToken), name, targetNick, reason)
	s.broadcastToChannel(ch, kickMsg, nil)

	ch.removeMember(target)
	target.removeChannel(ch)
	s.destroyChannelIfEmpty(ch)
}

// cmdMode implements the MODE command with a single left-to-right scan
// and one shared argument cursor, per SPEC_FULL.md §4's resolution of
// spec.md §9's dual-cursor redesign flag.
func (s *Server) cmdMode(c *Client, params []string) {
	if len(params) < 2 {
		s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
		return
	}

	name := params[0]
	modestring := params[1]
	args := params[2:]
	argIdx := 0

	ch := s.findChannel(name)
	if ch == nil {
		s.numericReply(c, errNoSuchChannel, name+" :No such channel")
		return
	}
	if !ch.hasMember(c) {
		s.numericReply(c, errNotOnChannel, name+" :You're not on that channel")
		return
	}
	if !ch.isOperator(c) {
		s.numericReply(c, errChanOPrivsNeeded, name+" :You're not channel operator")
		return
	}

	adding := true
	var changes []string

	for _, r := range modestring {
		switch r {
		case '+':
			adding = true
			continue
		case '-':
			adding = false
			continue
		}

		switch r {
		case 't':
			ch.topicRestricted = adding
			changes = append(changes, sign(adding)+"t")

		case 'i':
			ch.inviteOnly = adding
			changes = append(changes, sign(adding)+"i")

		case 'k':
			if adding {
				if argIdx >= len(args) {
					s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
					return
				}
				ch.key = args[argIdx]
				changes = append(changes, sign(adding)+"k "+args[argIdx])
				argIdx++
			} else {
				ch.key = ""
				changes = append(changes, sign(adding)+"k")
			}

		case 'l':
			if adding {
				if argIdx >= len(args) {
					s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
					return
				}
				n, err := strconv.Atoi(args[argIdx])
				if err != nil || n < 0 {
					s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
					return
				}
				ch.limit = n
				changes = append(changes, sign(adding)+"l "+args[argIdx])
				argIdx++
			} else {
				ch.limit = 0
				changes = append(changes, sign(adding)+"l")
			}

		case 'o':
			if argIdx >= len(args) {
				s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
				return
			}
			nick := args[argIdx]
			argIdx++
			target := s.findClientByNick(nick)
			if target == nil {
				s.numericReply(c, errNoSuchNick, nick+" :No such nick")
				return
			}
			if !ch.hasMember(target) {
				s.numericReply(c, errUserNotInChannel, name+" :They aren't on that channel")
				return
			}
			if adding {
				ch.addOperator(target)
			} else {
				ch.removeOperator(target)
			}
			changes = append(changes, sign(adding)+"o "+nick)

		case 'v':
			if argIdx >= len(args) {
				s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
				return
			}
			nick := args[argIdx]
			argIdx++
			target := s.findClientByNick(nick)
			if target == nil {
				s.numericReply(c, errNoSuchNick, nick+" :No such nick")
				return
			}
			if !ch.hasMember(target) {
				s.numericReply(c, errUserNotInChannel, name+" :They aren't on that channel")
				return
			}
			if adding {
				ch.addVoice(target)
			} else {
				ch.removeVoice(target)
			}
			changes = append(changes, sign(adding)+"v "+nick)

		case 'b':
			if argIdx >= len(args) {
				s.numericReply(c, errNeedMoreParams, "MODE :Not enough parameters")
				return
			}
			mask := args[argIdx]
			argIdx++
			if adding {
				ch.addBan(mask)
			} else {
				ch.removeBan(mask)
			}
			changes = append(changes, sign(adding)+"b "+mask)

		default:
			s.numericReply(c, errUnknownMode, string(r)+" :is unknown mode char to me")
		}
	}

	for _, change := range changes {
		parts := strings.SplitN(change, " ", 2)
		msg := fmt.Sprintf("%s MODE %s %s", sourcePrefix(c, s.cfg.HostToken), name, parts[0])
		if len(parts) > 1 {
			msg += " " + parts[1]
		}
		msg += "\r\n"
		s.broadcastToChannel(ch, msg, nil)
	}
}

func sign(adding bool) string {
	if adding {
		return "+"
	}
	return "-"
}
