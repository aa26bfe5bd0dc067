package utils

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/beeep"
	log "github.com/sirupsen/logrus"
)

// Stock icon name understood by the freedesktop notification daemons.
const icon = "dialog-information"

func init() {
	beeep.AppName = "fileorg"
}

// ExpandTilde will resolve to the correct location on disk.
func ExpandTilde(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}

// SendNotification shows a desktop notification when enabled. Failures are
// only logged.
func SendNotification(enabled bool, title string, message string) {
	if enabled {
		if err := beeep.Notify(title, message, icon); err != nil {
			log.Warnf("Notification failed: %v", err)
		}
	}
}
