package transfer

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/mahyarmirrashed/fileorg/internal/config"
	"github.com/mahyarmirrashed/fileorg/internal/traverser"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultAttempts = 3
	DefaultDelay    = time.Second
)

var (
	ErrDirectoryCreation = errors.New("could not create destination directory")
	ErrTransfer          = errors.New("could not transfer file")
)

// Outcome is the terminal state of a single file.
type Outcome int

const (
	Rejected  Outcome = iota // Filtered out
	Reported                 // Dry run, nothing touched
	Succeeded                // Copied or moved
	Failed                   // Every attempt failed
	Skipped                  // Source and destination are the same file
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Reported:
		return "reported"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	case Skipped:
		return "skipped"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Plan is what will happen to one file.
type Plan struct {
	Source      string
	Destination string
	Mode        config.Mode
}

// PlanFor computes where entry goes under cfg. With PreserveStructure the
// entry keeps its path relative to the source root, otherwise only its name.
func PlanFor(entry traverser.FileEntry, cfg config.Config) Plan {
	rel := entry.Name
	if cfg.PreserveStructure {
		rel = entry.Rel
	}
	return Plan{
		Source:      entry.Path,
		Destination: filepath.Join(cfg.DestinationRoot(), rel),
		Mode:        cfg.Mode,
	}
}

func (p Plan) String() string {
	verb := "copy"
	if p.Mode == config.ModeMove {
		verb = "move"
	}
	return fmt.Sprintf("%s %s -> %s", verb, filepath.ToSlash(p.Source), filepath.ToSlash(p.Destination))
}

// Transferer executes plans, retrying failed attempts.
type Transferer struct {
	Attempts int           // Tries per file, DefaultAttempts when zero
	Delay    time.Duration // Pause between tries
	DryRun   bool          // Print plans instead of executing them
	Out      io.Writer     // Where dry-run lines go
}

// New returns a Transferer with the default retry policy.
func New(dryRun bool, out io.Writer) *Transferer {
	return &Transferer{
		Attempts: DefaultAttempts,
		Delay:    DefaultDelay,
		DryRun:   dryRun,
		Out:      out,
	}
}

// Execute carries out p. The returned error is the last attempt's error and
// is only set for Failed.
func (t *Transferer) Execute(p Plan) (Outcome, error) {
	if samePath(p.Source, p.Destination) {
		return Skipped, nil
	}

	if t.DryRun {
		t.report(p)
		return Reported, nil
	}

	attempts := t.Attempts
	if attempts <= 0 {
		attempts = DefaultAttempts
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = p.apply(); err == nil {
			return Succeeded, nil
		}

		log.WithFields(log.Fields{
			"attempt": attempt,
			"of":      attempts,
		}).Warnf("Error on %s: %v", filepath.ToSlash(p.Source), err)

		if attempt < attempts && t.Delay > 0 {
			time.Sleep(t.Delay)
		}
	}
	return Failed, fmt.Errorf("gave up on %s after %d attempts: %w", p.Source, attempts, err)
}

func (t *Transferer) report(p Plan) {
	out := t.Out
	if out == nil {
		out = os.Stdout
	}
	prefix := color.New(color.FgYellow).Sprint("[dry run]")
	fmt.Fprintf(out, "%s Would %s\n", prefix, p)
}

// apply runs a single attempt.
func (p Plan) apply() error {
	if err := os.MkdirAll(filepath.Dir(p.Destination), 0o755); err != nil {
		return fmt.Errorf("%w: %w", ErrDirectoryCreation, err)
	}

	var err error
	switch p.Mode {
	case config.ModeCopy:
		err = copyFile(p.Source, p.Destination)
	case config.ModeMove:
		err = moveFile(p.Source, p.Destination)
	default:
		err = fmt.Errorf("unsupported mode %s", p.Mode)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransfer, err)
	}
	return nil
}

// copyFile copies src to dst byte for byte, overwriting dst, and carries over
// the permission bits and modification time.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}

// rename is swapped out in tests to simulate cross-device moves.
var rename = os.Rename

// moveFile renames src to dst, copying and removing when they sit on
// different devices.
func moveFile(src, dst string) error {
	err := rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	log.Debugf("Rename crosses devices, copying %s instead", src)
	return copyAndRemove(src, dst)
}

// copyAndRemove moves src by copying it to dst first. src is kept if the
// copy fails.
func copyAndRemove(src, dst string) error {
	if err := copyFile(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// samePath reports whether a and b name the same file, either literally or
// through links.
func samePath(a, b string) bool {
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	ai, err := os.Stat(a)
	if err != nil {
		return false
	}
	bi, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ai, bi)
}
