package version

import (
	"strings"
	"testing"
)

func TestInfoLines(t *testing.T) {
	old := Version
	Version = "1.2.3"
	defer func() { Version = old }()

	lines := Get().Lines()
	if len(lines) != 2 || !strings.HasPrefix(lines[0], "syncapp 1.2.3 (") {
		t.Errorf("Lines() = %q", lines)
	}
	if got := UserAgent(); got != "syncapp/1.2.3" {
		t.Errorf("UserAgent() = %q", got)
	}
}
