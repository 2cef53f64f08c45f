// Package catalog provides the static phrase-to-reply lookup table.
//
// The catalog is loaded once at startup from a JSON file of input/output
// pairs and is immutable afterwards. Lookup keys are normalized (lower-cased,
// trimmed) message texts.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
)

// Entry is one input/output pair in the catalog data file.
type Entry struct {
	Input  string `json:"input"`
	Output string `json:"output"`
}

// Catalog maps normalized input phrases to canned replies.
type Catalog struct {
	replies map[string]string
}

// Normalize lower-cases and trims a message for catalog lookup.
func Normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// New builds a catalog from entries. Inputs are normalized; when the same
// normalized input appears more than once, the last entry wins.
func New(entries []Entry) *Catalog {
	replies := make(map[string]string, len(entries))
	for _, e := range entries {
		replies[Normalize(e.Input)] = e.Output
	}
	return &Catalog{replies: replies}
}

// Empty returns a catalog with no entries. Every lookup misses.
func Empty() *Catalog {
	return &Catalog{replies: map[string]string{}}
}

// Load reads the JSON catalog file at path. Callers that want to tolerate a
// missing or malformed file should fall back to Empty.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file %s: %w", path, err)
	}

	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse catalog file %s: %w", path, err)
	}

	c := New(entries)
	slog.Debug("catalog.Load: catalog loaded", "path", path, "entries", len(entries), "unique", c.Len())
	return c, nil
}

// Lookup returns the reply for an already-normalized message.
func (c *Catalog) Lookup(normalized string) (string, bool) {
	reply, ok := c.replies[normalized]
	return reply, ok
}

// Len reports the number of distinct normalized inputs.
func (c *Catalog) Len() int {
	return len(c.replies)
}
