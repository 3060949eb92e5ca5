package transport

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/ssp-bridge/internal/sspproto"
)

func TestOpenRejectsMissingDevice(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "does-not-exist"))
	assert.ErrorIs(t, err, sspproto.ErrDeviceNotFound)
}

func TestOpenRejectsRegularFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not-a-serial-port")
	require := os.WriteFile(path, []byte("x"), 0o600)
	assert.NoError(t, require)

	_, err := Open(path)
	assert.ErrorIs(t, err, sspproto.ErrNotCharacterDevice)
}
