package organizer

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mahyarmirrashed/fileorg/internal/config"
	"github.com/mahyarmirrashed/fileorg/internal/transfer"
	"github.com/mahyarmirrashed/fileorg/internal/traverser"
	"gopkg.in/yaml.v3"
)

// Summary counts what happened to every file of one run.
type Summary struct {
	Source      string    `yaml:"source"`
	Destination string    `yaml:"destination"`
	Mode        string    `yaml:"mode"`
	DryRun      bool      `yaml:"dry_run"`
	Started     time.Time `yaml:"started"`
	Rejected    int       `yaml:"rejected"`
	Reported    int       `yaml:"reported"`
	Succeeded   int       `yaml:"succeeded"`
	Failed      int       `yaml:"failed"`
	Skipped     int       `yaml:"skipped"`
	WalkErrors  int       `yaml:"walk_errors"`
	FailedFiles []string  `yaml:"failed_files,omitempty"`
}

func newSummary(cfg config.Config) Summary {
	return Summary{
		Source:      cfg.Source,
		Destination: cfg.DestinationRoot(),
		Mode:        cfg.Mode.String(),
		DryRun:      cfg.DryRun,
		Started:     time.Now().UTC().Truncate(time.Second),
	}
}

func (s *Summary) record(entry traverser.FileEntry, outcome transfer.Outcome) {
	switch outcome {
	case transfer.Rejected:
		s.Rejected++
	case transfer.Reported:
		s.Reported++
	case transfer.Succeeded:
		s.Succeeded++
	case transfer.Failed:
		s.Failed++
		s.FailedFiles = append(s.FailedFiles, filepath.ToSlash(entry.Rel))
	case transfer.Skipped:
		s.Skipped++
	}
}

// Message is the one-line result shown in the end-of-run notification.
func (s Summary) Message() string {
	switch {
	case s.DryRun:
		return fmt.Sprintf("%d files would be transferred", s.Reported)
	case s.Failed > 0:
		return fmt.Sprintf("%d of %d files could not be transferred", s.Failed, s.Failed+s.Succeeded)
	default:
		return fmt.Sprintf("%d files transferred", s.Succeeded)
	}
}

// WriteReport saves the summary as YAML.
func WriteReport(path string, s Summary) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("could not create report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
