package router

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ", nil},
		{"/reserve 10 13:40", []string{"/reserve", "10", "13:40"}},
		{"/reserve 10 13:40 --wait", []string{"/reserve", "10", "13:40", "--wait"}},
		{`/admin user 123 "02.01.2026"`, []string{"/admin", "user", "123", "02.01.2026"}},
		{"/admin user 123 'a b'", []string{"/admin", "user", "123", "a b"}},
		{"/cancel\t--all", []string{"/cancel", "--all"}},
	}
	for _, tc := range tests {
		if got := tokenize(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Errorf("tokenize(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestParseArgs(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseArgs([]string{"10", "13:40", "--wait"})
	if !reflect.DeepEqual(pos, []string{"10", "13:40"}) {
		t.Fatalf("pos = %v", pos)
	}
	if !bools["wait"] {
		t.Fatal("wait flag not set")
	}

	pos, flags, bools = parseArgs([]string{"--at", "13:40"})
	if len(pos) != 0 {
		t.Fatalf("pos = %v", pos)
	}
	if flags["at"] != "13:40" {
		t.Fatalf("at = %q", flags["at"])
	}

	_, flags, _ = parseArgs([]string{"--at=14:00"})
	if flags["at"] != "14:00" {
		t.Fatalf("at = %q", flags["at"])
	}

	pos, _, bools = parseArgs([]string{"--all", "--wait", "x"})
	if !bools["all"] || !bools["wait"] {
		t.Fatalf("bools = %v", bools)
	}
	if !reflect.DeepEqual(pos, []string{"x"}) {
		t.Fatalf("pos = %v", pos)
	}
}

func TestCommandWord(t *testing.T) {
	t.Parallel()
	tests := []struct{ in, want string }{
		{"/reserve", "reserve"},
		{"/Reserve", "reserve"},
		{"/break@breakbot", "break"},
		{"/admin@BreakBot", "admin"},
	}
	for _, tc := range tests {
		if got := commandWord(tc.in); got != tc.want {
			t.Errorf("commandWord(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
