// Package secret loads the 32-byte group secret shared by the server and its
// clients.
package secret

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AtDexters-Lab/nexus-rendezvous/internal/protocol"
)

var (
	// ErrPermissions means the file is not a regular file with mode 0400 or 0600.
	ErrPermissions = errors.New("secret file must be a regular file, chmod 0400 or 0600")
	// ErrTooShort means the file holds fewer than 32 bytes.
	ErrTooShort = errors.New("secret must be 32 bytes long")
)

// Read returns the first 32 bytes of the file at path.
func Read(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("can't open secret file %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("can't stat secret file %s: %w", path, err)
	}
	mode := info.Mode()
	if !mode.IsRegular() || (mode.Perm() != 0o400 && mode.Perm() != 0o600) {
		return nil, fmt.Errorf("%w: %s has mode %s", ErrPermissions, path, mode)
	}

	buf := make([]byte, protocol.SecretSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTooShort, path)
	}
	return buf, nil
}
