package parse

import (
	"reflect"
	"testing"
)

func TestLine(t *testing.T) {
	type item struct {
		s    string
		want *Message
	}

	ss := []item{
		{"", nil},
		{"\r\n", nil},
		{"PING", &Message{Command: "PING", Params: []string{}}},
		{"ping", &Message{Command: "PING", Params: []string{}}},
		{"NICK alice", &Message{Command: "NICK", Params: []string{"alice"}}},
		{"USER a 0 * :Alice A", &Message{Command: "USER", Params: []string{"a", "0", "*", "Alice A"}}},
		{"PRIVMSG #x :hello there friend", &Message{Command: "PRIVMSG", Params: []string{"#x", "hello there friend"}}},
		{"JOIN   #x", &Message{Command: "JOIN", Params: []string{"#x"}}},
		{"043 okay well :this is a numeric", &Message{Command: "043", Params: []string{"okay", "well", "this is a numeric"}}},
		{":server PING", &Message{Command: ":SERVER", Params: []string{"PING"}}},
	}

	for _, i := range ss {
		got := Line(i.s)
		if !reflect.DeepEqual(got, i.want) {
			t.Errorf("Line(%q) = %+v, want %+v", i.s, got, i.want)
		}
	}
}

func TestLineTrailingParamRoundTrips(t *testing.T) {
	m := Line("TOPIC #x :  spaced   out   topic  ")
	if m == nil || len(m.Params) != 2 {
		t.Fatalf("expected a trailing parameter, got %+v", m)
	}
	if m.Params[1] != "  spaced   out   topic  " {
		t.Errorf("trailing parameter not preserved verbatim: %q", m.Params[1])
	}
}
