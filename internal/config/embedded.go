package config

// Embedded API keys injected at build time via ldflags.
// These serve as defaults and can be overridden by environment
// variables or config file.
//
// Build with:
//   go build -ldflags "-X 'github.com/riptide/riptide/internal/config.EmbeddedTMDBKey=xxx'"
var (
	EmbeddedTMDBKey string
)
