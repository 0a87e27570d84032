// Package file persists blocks as files in a directory, one file per
// block, named by the block's content address.
package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jrhy/hstore"
)

// Persist implements the hstore.Persist interface for storing and
// loading blocks from files.
type Persist struct {
	basepath string
}

// Load loads the bytes persisted in the named file.
func (p Persist) Load(ctx context.Context, name string) ([]byte, error) {
	b, err := os.ReadFile(filepath.Join(p.basepath, name))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("file %s: %w", name, hstore.ErrNotFound)
	}
	return b, err
}

// Store persists the given bytes in a file of the given name. Content
// addresses are written once and skipped when the file already exists;
// the reserved head key is the one name that is overwritten.
func (p Persist) Store(ctx context.Context, name string, bytes []byte) error {
	path := filepath.Join(p.basepath, name)
	if name != hstore.HeadKey {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
	}
	return os.WriteFile(path, bytes, 0o644)
}

// NewPersistForPath returns a Persist that loads and stores blocks as
// files in the directory at the given path.
func NewPersistForPath(path string) Persist {
	return Persist{path}
}
