package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Hello", "hello"},
		{"  Hello  ", "hello"},
		{"HELLO WORLD", "hello world"},
		{"", ""},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNewAndLookup(t *testing.T) {
	c := New([]Entry{
		{Input: "Hello", Output: "Hi there!"},
		{Input: "how are you", Output: "Doing well, thanks for asking."},
	})

	reply, ok := c.Lookup("hello")
	if !ok || reply != "Hi there!" {
		t.Errorf("Lookup(\"hello\") = %q, %v; want \"Hi there!\", true", reply, ok)
	}

	if _, ok := c.Lookup("Hello"); ok {
		t.Error("Lookup expects normalized keys; raw input should miss")
	}

	if _, ok := c.Lookup("goodbye"); ok {
		t.Error("Lookup(\"goodbye\") should miss")
	}

	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
}

func TestNewLastEntryWins(t *testing.T) {
	c := New([]Entry{
		{Input: "hello", Output: "first"},
		{Input: "HELLO", Output: "second"},
	})
	if c.Len() != 1 {
		t.Errorf("Len() = %d, want 1", c.Len())
	}
	if reply, _ := c.Lookup("hello"); reply != "second" {
		t.Errorf("duplicate input should keep last entry, got %q", reply)
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.json")
	data := `[
		{"input": "Hello", "output": "Hi there!"},
		{"input": "I feel sad", "output": "That sounds heavy. Want to talk about it?"}
	]`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("failed to write catalog file: %v", err)
	}

	c, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d, want 2", c.Len())
	}
	reply, ok := c.Lookup("i feel sad")
	if !ok || reply != "That sounds heavy. Want to talk about it?" {
		t.Errorf("Lookup after Load = %q, %v", reply, ok)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("Load() of missing file should return an error")
	}
}

func TestLoadMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.json")
	if err := os.WriteFile(path, []byte("{not json"), 0644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("Load() of malformed file should return an error")
	}
}

func TestEmpty(t *testing.T) {
	c := Empty()
	if c.Len() != 0 {
		t.Errorf("Empty().Len() = %d, want 0", c.Len())
	}
	if _, ok := c.Lookup("hello"); ok {
		t.Error("Empty() catalog should miss every lookup")
	}
}
