package transfer

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/mahyarmirrashed/fileorg/internal/config"
	"github.com/mahyarmirrashed/fileorg/internal/traverser"
	log "github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
}

func newEntry(t *testing.T, root, rel string) traverser.FileEntry {
	t.Helper()
	e, err := traverser.NewEntry(root, filepath.Join(root, rel))
	require.NoError(t, err)
	return e
}

func quick(dryRun bool, out io.Writer) *Transferer {
	tr := New(dryRun, out)
	tr.Delay = 0
	return tr
}

func TestPlanFor(t *testing.T) {
	src := filepath.Join(string(filepath.Separator), "source")
	dst := filepath.Join(string(filepath.Separator), "dest")
	e := newEntry(t, src, filepath.Join("a", "b", "c.txt"))

	tests := []struct {
		name string
		cfg  config.Config
		want string
	}{
		{
			name: "flat",
			cfg:  config.Config{Source: src, Destination: dst, Mode: config.ModeCopy},
			want: filepath.Join(dst, "c.txt"),
		},
		{
			name: "preserve structure",
			cfg:  config.Config{Source: src, Destination: dst, Mode: config.ModeCopy, PreserveStructure: true},
			want: filepath.Join(dst, "a", "b", "c.txt"),
		},
		{
			name: "own folder flat",
			cfg:  config.Config{Source: src, Destination: dst, Mode: config.ModeMove, PreserveOwnFolder: true},
			want: filepath.Join(dst, "source", "c.txt"),
		},
		{
			name: "own folder preserved",
			cfg: config.Config{
				Source: src, Destination: dst, Mode: config.ModeMove,
				PreserveOwnFolder: true, PreserveStructure: true,
			},
			want: filepath.Join(dst, "source", "a", "b", "c.txt"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := PlanFor(e, tt.cfg)
			assert.Equal(t, e.Path, p.Source)
			assert.Equal(t, tt.want, p.Destination)
			assert.Equal(t, tt.cfg.Mode, p.Mode)
		})
	}
}

func TestCopyKeepsSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.txt")
	dst := filepath.Join(dir, "dst", "deep", "a.txt")
	writeFile(t, src, "hello")

	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(src, mtime, mtime))

	outcome, err := quick(false, nil).Execute(Plan{Source: src, Destination: dst, Mode: config.ModeCopy})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
	assert.FileExists(t, src)

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	assert.True(t, dstInfo.ModTime().Equal(mtime))
}

func TestCopyOverwritesDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "out", "a.txt")
	writeFile(t, src, "new")
	writeFile(t, dst, "old and longer")

	outcome, err := quick(false, nil).Execute(Plan{Source: src, Destination: dst, Mode: config.ModeCopy})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestMoveRemovesSource(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.txt")
	dst := filepath.Join(dir, "dst", "a.txt")
	writeFile(t, src, "payload")

	outcome, err := quick(false, nil).Execute(Plan{Source: src, Destination: dst, Mode: config.ModeMove})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)

	assert.NoFileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestDryRunTouchesNothing(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	dst := filepath.Join(dir, "out", "a.txt")
	writeFile(t, src, "x")

	var out bytes.Buffer
	outcome, err := quick(true, &out).Execute(Plan{Source: src, Destination: dst, Mode: config.ModeMove})
	require.NoError(t, err)
	assert.Equal(t, Reported, outcome)

	assert.FileExists(t, src)
	assert.NoDirExists(t, filepath.Join(dir, "out"))
	assert.Contains(t, out.String(), "Would move "+filepath.ToSlash(src)+" -> "+filepath.ToSlash(dst))
}

func TestSamePathIsSkipped(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "keep me")

	outcome, err := quick(false, nil).Execute(Plan{Source: src, Destination: src, Mode: config.ModeCopy})
	require.NoError(t, err)
	assert.Equal(t, Skipped, outcome)

	got, err := os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "keep me", string(got))
}

func TestFailureIsRetriedThenReported(t *testing.T) {
	hook := logtest.NewGlobal()
	defer hook.Reset()

	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	// A regular file where a parent directory is needed.
	blocker := filepath.Join(dir, "blocked")
	writeFile(t, blocker, "")

	tr := quick(false, nil)
	outcome, err := tr.Execute(Plan{Source: src, Destination: filepath.Join(blocker, "a.txt"), Mode: config.ModeCopy})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryCreation)
	assert.Equal(t, Failed, outcome)
	assert.FileExists(t, src)

	warnings := 0
	for _, entry := range hook.AllEntries() {
		if entry.Level == log.WarnLevel {
			warnings++
		}
	}
	assert.Equal(t, DefaultAttempts, warnings)
}

func TestNewUsesDefaultRetryPolicy(t *testing.T) {
	tr := New(false, nil)
	assert.Equal(t, 3, tr.Attempts)
	assert.Equal(t, time.Second, tr.Delay)
	assert.Equal(t, DefaultAttempts, tr.Attempts)
	assert.Equal(t, DefaultDelay, tr.Delay)
}

func TestDelayOnlyBetweenAttempts(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "x")
	blocker := filepath.Join(dir, "blocked")
	writeFile(t, blocker, "")

	const delay = 50 * time.Millisecond
	tr := New(false, nil)
	tr.Delay = delay

	start := time.Now()
	outcome, err := tr.Execute(Plan{Source: src, Destination: filepath.Join(blocker, "a.txt"), Mode: config.ModeCopy})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Equal(t, Failed, outcome)
	assert.GreaterOrEqual(t, elapsed, time.Duration(tr.Attempts-1)*delay)
	assert.Less(t, elapsed, time.Duration(tr.Attempts)*delay)
}

func TestMoveAcrossDevicesFallsBackToCopy(t *testing.T) {
	orig := rename
	defer func() { rename = orig }()
	rename = func(oldpath, newpath string) error {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: syscall.EXDEV}
	}

	dir := t.TempDir()
	src := filepath.Join(dir, "src", "a.txt")
	dst := filepath.Join(dir, "dst", "a.txt")
	writeFile(t, src, "payload")

	outcome, err := quick(false, nil).Execute(Plan{Source: src, Destination: dst, Mode: config.ModeMove})
	require.NoError(t, err)
	assert.Equal(t, Succeeded, outcome)

	assert.NoFileExists(t, src)
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestCopyAndRemoveKeepsSourceOnFailure(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	writeFile(t, src, "payload")
	// dst is an existing directory, so the copy cannot open it for writing.
	dst := filepath.Join(dir, "taken")
	require.NoError(t, os.MkdirAll(dst, 0o755))

	require.Error(t, copyAndRemove(src, dst))
	assert.FileExists(t, src)
}

func TestMissingSourceIsTransferError(t *testing.T) {
	dir := t.TempDir()

	tr := quick(false, nil)
	tr.Attempts = 1
	outcome, err := tr.Execute(Plan{
		Source:      filepath.Join(dir, "gone.txt"),
		Destination: filepath.Join(dir, "out", "gone.txt"),
		Mode:        config.ModeMove,
	})
	assert.Equal(t, Failed, outcome)
	assert.ErrorIs(t, err, ErrTransfer)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "rejected", Rejected.String())
	assert.Equal(t, "failed", Failed.String())
	assert.Equal(t, "outcome(42)", Outcome(42).String())
}
