package infra

import (
	"path/filepath"
	"testing"
)

func TestWorkDirPath(t *testing.T) {
	t.Parallel()

	if got := workDirPath("/var/lib/gab", "bot.db"); got != filepath.Join("/var/lib/gab", "bot.db") {
		t.Errorf("configured base ignored, got %q", got)
	}
	if got := workDirPath("~/custom"); got != "~/custom" {
		t.Errorf("tilde base mangled, got %q", got)
	}
	if got := workDirPath(""); got != filepath.Join("~", ".gab") {
		t.Errorf("empty base must fall back to ~/.gab, got %q", got)
	}
}
