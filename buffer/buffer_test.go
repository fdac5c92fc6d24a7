package buffer

import "testing"

func TestAppendAndTakeLine(t *testing.T) {
	type step struct {
		chunk string
		lines []string
	}

	cases := []struct {
		name  string
		steps []step
	}{
		{
			name: "single line with crlf",
			steps: []step{
				{chunk: "NICK alice\r\n", lines: []string{"NICK alice"}},
			},
		},
		{
			name: "bare lf tolerated",
			steps: []step{
				{chunk: "NICK bob\n", lines: []string{"NICK bob"}},
			},
		},
		{
			name: "split across two chunks",
			steps: []step{
				{chunk: "NICK ca", lines: nil},
				{chunk: "rol\r\n", lines: []string{"NICK carol"}},
			},
		},
		{
			name: "multiple lines in one chunk",
			steps: []step{
				{chunk: "JOIN #x\r\nPART #x\r\n", lines: []string{"JOIN #x", "PART #x"}},
			},
		},
		{
			name: "empty line preserved as empty string",
			steps: []step{
				{chunk: "\r\n", lines: []string{""}},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			b := New()
			for _, s := range c.steps {
				if !b.Append([]byte(s.chunk)) {
					t.Fatalf("append failed unexpectedly for chunk %q", s.chunk)
				}

				var got []string
				for b.HasCompleteLine() {
					line, ok := b.TakeLine()
					if !ok {
						t.Fatalf("HasCompleteLine true but TakeLine failed")
					}
					got = append(got, line)
				}

				if len(got) != len(s.lines) {
					t.Fatalf("got %d lines %v, want %v", len(got), got, s.lines)
				}
				for i := range got {
					if got[i] != s.lines[i] {
						t.Errorf("line %d: got %q, want %q", i, got[i], s.lines[i])
					}
				}
			}
		})
	}
}

func TestAppendOverflowDisconnects(t *testing.T) {
	b := New()
	burst := make([]byte, MaxSize+1)
	for i := range burst {
		burst[i] = 'a'
	}

	if b.Append(burst) {
		t.Fatalf("expected overflow append to fail")
	}
}

func TestAppendExactlyAtLimitSucceeds(t *testing.T) {
	b := New()
	burst := make([]byte, MaxSize)
	for i := range burst {
		burst[i] = 'a'
	}

	if !b.Append(burst) {
		t.Fatalf("expected append at exactly MaxSize to succeed")
	}
	if b.HasCompleteLine() {
		t.Fatalf("unterminated burst must not report a complete line")
	}
}

func TestTakeLineWithLongRemainder(t *testing.T) {
	b := New()
	remainder := make([]byte, MaxSize-10)
	for i := range remainder {
		remainder[i] = 'b'
	}

	first := append([]byte("PING\r\n"), remainder...)
	if !b.Append(first) {
		t.Fatalf("append failed unexpectedly")
	}

	line, ok := b.TakeLine()
	if !ok || line != "PING" {
		t.Fatalf("got line %q, ok=%v, want %q", line, ok, "PING")
	}
	if b.Len() != len(remainder) {
		t.Fatalf("got remainder length %d, want %d", b.Len(), len(remainder))
	}
}

func TestTakeLineNoTerminator(t *testing.T) {
	b := New()
	b.Append([]byte("INCOMPLETE"))
	if b.HasCompleteLine() {
		t.Fatalf("unterminated data must not report a complete line")
	}
	if _, ok := b.TakeLine(); ok {
		t.Fatalf("TakeLine should fail when no terminator is buffered")
	}
}
