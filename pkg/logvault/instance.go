package logvault

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ensureInstanceID returns the id stored in ~/.logvault/id, creating it on
// first use. It falls back to an ephemeral id when the home directory is not
// writable.
func ensureInstanceID() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return uuid.NewString()
	}

	dir := filepath.Join(homeDir, ".logvault")
	if err := os.MkdirAll(dir, 0755); err != nil {
		return uuid.NewString()
	}

	idFile := filepath.Join(dir, "id")
	if data, err := os.ReadFile(idFile); err == nil {
		if id := strings.TrimSpace(string(data)); uuid.Validate(id) == nil {
			return id
		}
	}

	newID := uuid.NewString()
	_ = os.WriteFile(idFile, []byte(newID), 0644)
	return newID
}
