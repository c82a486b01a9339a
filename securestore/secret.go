package securestore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/jmcleod/kycagent/internal/util"
)

const secretBytes = 32

// LoadOrCreateSecret returns the device secret kept in path, creating a new
// random one (mode 0600) if the file does not exist. It stands in for a
// platform keystore when no passphrase is configured.
func LoadOrCreateSecret(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err == nil {
		secret := strings.TrimSpace(string(data))
		if secret == "" {
			return "", fmt.Errorf("device secret %s is empty", path)
		}
		return secret, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("reading device secret: %w", err)
	}

	secret, err := util.RandomToken(secretBytes)
	if err != nil {
		return "", err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if errors.Is(err, fs.ErrExist) {
		return LoadOrCreateSecret(path)
	}
	if err != nil {
		return "", fmt.Errorf("creating device secret: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(secret + "\n"); err != nil {
		return "", fmt.Errorf("writing device secret: %w", err)
	}
	return secret, nil
}
