package logger

import (
	"encoding/json"
	"sync"
)

const defaultCaptureSize = 500

// Entry is a parsed log line kept for the recent-logs endpoint.
type Entry struct {
	Timestamp string         `json:"timestamp"`
	Level     string         `json:"level"`
	Component string         `json:"component,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Capture implements io.Writer over a fixed ring of parsed entries. It is
// teed into the logger output so the API can serve recent log lines; once
// full, new entries overwrite the oldest.
type Capture struct {
	mu      sync.RWMutex
	entries []Entry
	start   int
	count   int
}

// NewCapture creates a capture holding the last size entries.
func NewCapture(size int) *Capture {
	if size <= 0 {
		size = defaultCaptureSize
	}
	return &Capture{entries: make([]Entry, size)}
}

// Write receives JSON log lines from zerolog. Malformed lines are dropped.
func (c *Capture) Write(p []byte) (int, error) {
	entry, err := parseEntry(p)
	if err != nil {
		return len(p), nil
	}

	c.mu.Lock()
	c.entries[(c.start+c.count)%len(c.entries)] = entry
	if c.count < len(c.entries) {
		c.count++
	} else {
		c.start = (c.start + 1) % len(c.entries)
	}
	c.mu.Unlock()
	return len(p), nil
}

// Recent returns the buffered entries from oldest to newest.
func (c *Capture) Recent() []Entry {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Entry, c.count)
	for i := range out {
		out[i] = c.entries[(c.start+i)%len(c.entries)]
	}
	return out
}

// Clear discards all buffered entries.
func (c *Capture) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = 0
	c.count = 0
}

func parseEntry(data []byte) (Entry, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return Entry{}, err
	}

	entry := Entry{Fields: make(map[string]any)}

	if ts, ok := raw["time"].(string); ok {
		entry.Timestamp = ts
		delete(raw, "time")
	}
	if level, ok := raw["level"].(string); ok {
		entry.Level = level
		delete(raw, "level")
	}
	if component, ok := raw["component"].(string); ok {
		entry.Component = component
		delete(raw, "component")
	}
	if msg, ok := raw["message"].(string); ok {
		entry.Message = msg
		delete(raw, "message")
	}
	for k, v := range raw {
		entry.Fields[k] = v
	}
	return entry, nil
}
