package ui

import (
	"bytes"
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"short", 10, "short"},
		{"exactly ten", 11, "exactly ten"},
		{"a longer todo item", 10, "a longe..."},
		{"tiny", 4, "tiny"},
		{"tiny", 3, "tin"},
		{"a longer todo item", 2, "a "},
		{"anything", 0, ""},
		{"anything", -5, ""},
		{"", 0, ""},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d): got %q, want %q", tt.in, tt.n, got, tt.want)
		}
	}
}

func TestOKAndFailWriters(t *testing.T) {
	var out, errOut bytes.Buffer
	oldOut, oldErr := Stdout, Stderr
	Stdout, Stderr = &out, &errOut
	defer func() { Stdout, Stderr = oldOut, oldErr }()

	OK("added")
	Fail("nope")
	if !strings.Contains(out.String(), "added") || strings.Contains(out.String(), "nope") {
		t.Errorf("stdout: got %q", out.String())
	}
	if !strings.Contains(errOut.String(), "nope") {
		t.Errorf("stderr: got %q", errOut.String())
	}
}

func TestSetTheme(t *testing.T) {
	defer SetTheme("classic")
	SetTheme("mono")
	if got := Current().SymOK; got != "ok" {
		t.Errorf("mono SymOK: got %q, want ok", got)
	}
	SetTheme("does-not-exist")
	if got, want := Current().SymOK, classic().SymOK; got != want {
		t.Errorf("unknown theme SymOK: got %q, want %q", got, want)
	}
}
