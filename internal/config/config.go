package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ErrConfiguration marks problems that must abort a run before any file is touched.
var ErrConfiguration = errors.New("configuration error")

// Mode selects what happens to an accepted file.
type Mode int

const (
	ModeUnset Mode = iota
	ModeCopy
	ModeMove
)

func (m Mode) String() string {
	switch m {
	case ModeCopy:
		return "copy"
	case ModeMove:
		return "move"
	default:
		return "unset"
	}
}

// Config holds the settings for one invocation. It is built once at startup
// and passed by value afterwards.
type Config struct {
	Source            string        // Directory to scan
	SourceName        string        // Folder name used by PreserveOwnFolder; base name of Source when empty
	Destination       string        // Directory that receives matched files
	Extensions        []string      // Extensions to accept, with or without the leading dot
	FileNames         []string      // Exact file names to accept
	Exclude           []string      // Glob patterns to reject
	PreserveStructure bool          // Keep paths relative to Source under Destination
	PreserveOwnFolder bool          // Place results under Destination/<base name of Source>
	Mode              Mode          // Copy or move
	DryRun            bool          // If true, don't touch the filesystem
	LogLevel          string        // Logging level: debug, info, warn, error
	Watch             bool          // Keep running and handle files created after the first pass
	Daemonize         bool          // If true, run the watcher as a daemon
	Delay             time.Duration // Time to wait before handling a created file
	Notifications     bool          // If true, send desktop notifications
	Report            string        // Optional path of a YAML run summary
}

// Validate reports the first setting that makes the configuration unusable.
func (c Config) Validate() error {
	if c.Mode != ModeCopy && c.Mode != ModeMove {
		return fmt.Errorf("%w: exactly one of --copy or --cut is required", ErrConfiguration)
	}
	if c.Source == "" {
		return fmt.Errorf("%w: source directory is empty", ErrConfiguration)
	}
	if c.Destination == "" {
		return fmt.Errorf("%w: destination directory is empty", ErrConfiguration)
	}
	if c.Daemonize && !c.Watch {
		return fmt.Errorf("%w: --daemonize only applies together with --watch", ErrConfiguration)
	}
	if c.Delay < 0 {
		return fmt.Errorf("%w: delay must not be negative", ErrConfiguration)
	}
	return nil
}

// DestinationRoot returns the directory that computed destinations are joined to.
func (c Config) DestinationRoot() string {
	if c.PreserveOwnFolder {
		name := c.SourceName
		if name == "" {
			name = filepath.Base(filepath.Clean(c.Source))
		}
		return filepath.Join(c.Destination, name)
	}
	return c.Destination
}

// SplitList flattens repeated and comma-separated values, dropping blanks.
func SplitList(values []string) []string {
	var merged []string
	for _, v := range values {
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				merged = append(merged, item)
			}
		}
	}
	return merged
}
