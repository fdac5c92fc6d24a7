package server

// isValidNickname implements spec.md §4.3: 1-9 bytes, first byte ASCII
// alpha, remaining bytes alphanumeric, '-' or '_'.
func isValidNickname(nick string) bool {
	if len(nick) < 1 || len(nick) > 9 {
		return false
	}
	if !isAlpha(nick[0]) {
		return false
	}
	for i := 1; i < len(nick); i++ {
		c := nick[i]
		if !isAlnum(c) && c != '-' && c != '_' {
			return false
		}
	}
	return true
}

// isValidChannelName implements spec.md §3: 1-50 bytes, starting with '#'
// or '&', no space/comma/colon/BEL.
func isValidChannelName(name string) bool {
	if len(name) < 1 || len(name) > 50 {
		return false
	}
	if name[0] != '#' && name[0] != '&' {
		return false
	}
	for i := 1; i < len(name); i++ {
		switch name[i] {
		case ' ', ',', ':', 7:
			return false
		}
	}
	return true
}

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isAlnum(c byte) bool {
	return isAlpha(c) || isDigit(c)
}

func isChannelName(target string) bool {
	return len(target) > 0 && (target[0] == '#' || target[0] == '&')
}
