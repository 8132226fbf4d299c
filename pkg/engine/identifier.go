package engine

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"

	"github.com/sidkik/orangeshare/pkg/errors"
)

// MarkerFile stores the folder identifier in the root of the folder. It's
// hidden on platforms where dot files are hidden.
const MarkerFile = ".sparkleshare"

// loadIdentifier reads the folder identifier from the marker file. If the
// marker doesn't exist yet, it's computed and written so that later calls
// return the same identifier.
func loadIdentifier(localPath string, compute func() (string, error)) (string, error) {
	markerPath := filepath.Join(localPath, MarkerFile)

	contents, err := afero.ReadFile(fs, markerPath)
	switch {
	case err == nil:
		if id := strings.TrimSpace(string(contents)); id != "" {
			return id, nil
		}
	case !os.IsNotExist(err):
		return "", errors.WithContext(err, "read marker")
	}

	id, err := compute()
	if err != nil {
		return "", errors.WithContext(err, "compute identifier")
	}

	if err := afero.WriteFile(fs, markerPath, []byte(id), 0644); err != nil {
		return "", errors.WithContext(err, "write marker")
	}
	return id, nil
}
