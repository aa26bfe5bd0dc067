package organizer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mahyarmirrashed/fileorg/internal/config"
	"github.com/mahyarmirrashed/fileorg/internal/excluder"
	"github.com/mahyarmirrashed/fileorg/internal/filter"
	"github.com/mahyarmirrashed/fileorg/internal/transfer"
	"github.com/mahyarmirrashed/fileorg/internal/traverser"
	"github.com/mahyarmirrashed/fileorg/internal/utils"
	log "github.com/sirupsen/logrus"
)

const notificationTitle = "fileorg"

// Organizer runs the traverse, filter and transfer stages for one configuration.
type Organizer struct {
	cfg    config.Config
	filter *filter.Filter
	xfer   *transfer.Transferer
}

// Option adjusts an Organizer built by New.
type Option func(*Organizer)

// WithOutput sets where dry-run lines are printed.
func WithOutput(w io.Writer) Option {
	return func(o *Organizer) { o.xfer.Out = w }
}

// WithRetry overrides the number of attempts per file and the pause between them.
func WithRetry(attempts int, delay time.Duration) Option {
	return func(o *Organizer) {
		o.xfer.Attempts = attempts
		o.xfer.Delay = delay
	}
}

// New validates cfg and prepares an Organizer. Every error it returns wraps
// config.ErrConfiguration.
func New(cfg config.Config, opts ...Option) (*Organizer, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// The own-folder name follows --dir as given, not its link target.
	if cfg.SourceName == "" {
		if abs, err := filepath.Abs(cfg.Source); err == nil {
			cfg.SourceName = filepath.Base(abs)
		}
	}

	source, err := traverser.Root(cfg.Source)
	if err != nil {
		return nil, fmt.Errorf("%w: source: %w", config.ErrConfiguration, err)
	}
	cfg.Source = source
	cfg.Destination = traverser.Resolve(cfg.Destination)

	if info, err := os.Stat(cfg.Destination); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("%w: destination: %w: %s", config.ErrConfiguration, traverser.ErrNotADirectory, cfg.Destination)
	}

	ex, err := excluder.New(cfg.Exclude)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	o := &Organizer{
		cfg:    cfg,
		filter: filter.New(cfg.Extensions, cfg.FileNames, ex),
		xfer:   transfer.New(cfg.DryRun, os.Stdout),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Config returns the resolved configuration the Organizer works with.
func (o *Organizer) Config() config.Config {
	return o.cfg
}

// Run walks the source tree once and handles every file in turn. Failures
// on single files are logged and counted; they never stop the run.
func (o *Organizer) Run() (Summary, error) {
	summary := newSummary(o.cfg)

	seq, err := traverser.Walk(o.cfg.Source, o.cfg.DestinationRoot())
	if err != nil {
		return summary, fmt.Errorf("%w: %w", config.ErrConfiguration, err)
	}

	for entry, err := range seq {
		if err != nil {
			log.Errorf("Error walking %s: %v", filepath.ToSlash(entry.Path), err)
			summary.WalkErrors++
			continue
		}

		outcome, _ := o.Process(entry)
		summary.record(entry, outcome)
	}

	log.WithFields(log.Fields{
		"succeeded": summary.Succeeded,
		"failed":    summary.Failed,
		"rejected":  summary.Rejected,
		"reported":  summary.Reported,
		"skipped":   summary.Skipped,
	}).Info("Run complete")

	utils.SendNotification(o.cfg.Notifications, notificationTitle, summary.Message())

	return summary, nil
}

// Process sends one entry through the filter and, when accepted, the transfer.
func (o *Organizer) Process(entry traverser.FileEntry) (transfer.Outcome, error) {
	if !o.filter.Accept(entry) {
		log.Debugf("Rejected: %s", filepath.ToSlash(entry.Rel))
		return transfer.Rejected, nil
	}

	plan := transfer.PlanFor(entry, o.cfg)
	outcome, err := o.xfer.Execute(plan)

	switch outcome {
	case transfer.Succeeded:
		verb := "Copied"
		if plan.Mode == config.ModeMove {
			verb = "Moved"
		}
		log.Infof("%s %s -> %s", verb, filepath.ToSlash(plan.Source), filepath.ToSlash(plan.Destination))
	case transfer.Failed:
		out := fmt.Sprintf("Error transferring %s: %v", entry.Name, err)
		log.Error(out)
		utils.SendNotification(o.cfg.Notifications, notificationTitle, out)
	case transfer.Skipped:
		log.Debugf("Already in place: %s", filepath.ToSlash(plan.Source))
	case transfer.Reported:
		log.Debugf("[dry run] %s", plan)
	}

	return outcome, err
}

// ErrOutsideSource is returned by ProcessPath for paths that are not regular
// files below the source root or that sit in the destination tree.
var ErrOutsideSource = errors.New("not a file under the source directory")

// ProcessPath handles a single path, as reported by a filesystem watcher.
func (o *Organizer) ProcessPath(path string) (transfer.Outcome, error) {
	path = filepath.Join(traverser.Resolve(filepath.Dir(path)), filepath.Base(path))

	info, err := os.Lstat(path)
	if err != nil {
		return transfer.Rejected, err
	}
	if !info.Mode().IsRegular() {
		return transfer.Rejected, fmt.Errorf("%w: %s", ErrOutsideSource, path)
	}
	// Files landing in a destination nested under the source are our own output.
	if dest := o.cfg.DestinationRoot(); dest != o.cfg.Source && within(dest, path) {
		return transfer.Rejected, fmt.Errorf("%w: %s", ErrOutsideSource, path)
	}

	entry, err := traverser.NewEntry(o.cfg.Source, path)
	if err != nil {
		return transfer.Rejected, fmt.Errorf("%w: %w", ErrOutsideSource, err)
	}
	return o.Process(entry)
}

// within reports whether path lies inside dir.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
