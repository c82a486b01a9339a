package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmcleod/kycagent/internal/config"
	"github.com/jmcleod/kycagent/session"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	l, err := newLogger(&buf, "warn")
	require.NoError(t, err)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))

	_, err = newLogger(&buf, "loud")
	assert.Error(t, err)
}

func TestReadLine(t *testing.T) {
	line, err := readLine(strings.NewReader("s3cret\r\nignored\n"))
	require.NoError(t, err)
	assert.Equal(t, "s3cret", line)

	line, err = readLine(strings.NewReader("no-newline"))
	require.NoError(t, err)
	assert.Equal(t, "no-newline", line)
}

func TestPrintMessage(t *testing.T) {
	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	printMessage(c, "", "Password changed.")
	printMessage(c, "Reset token sent to a@b.com", "unused")
	assert.Equal(t, "Password changed.\nReset token sent to a@b.com\n", out.String())
}

func TestCommandsRegistered(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"login", "logout", "status", "refresh", "kyc", "register", "password", "faqs", "sandbox"} {
		assert.True(t, names[want], "missing command %q", want)
	}
}

func TestReportLogout(t *testing.T) {
	t.Run("token not cleared", func(t *testing.T) {
		var out, errOut bytes.Buffer
		err := fmt.Errorf("%w: %w", session.ErrTokenNotCleared, errors.New("disk full"))
		require.NoError(t, reportLogout(&out, &errOut, err))
		assert.Equal(t, "Signed out\n", out.String())
		assert.Contains(t, errOut.String(), "Warning: persisted token not cleared: disk full")
	})

	t.Run("other failure", func(t *testing.T) {
		var out, errOut bytes.Buffer
		boom := errors.New("boom")
		assert.ErrorIs(t, reportLogout(&out, &errOut, boom), boom)
		assert.Empty(t, out.String())
	})

	t.Run("success", func(t *testing.T) {
		var out, errOut bytes.Buffer
		require.NoError(t, reportLogout(&out, &errOut, nil))
		assert.Equal(t, "Signed out\n", out.String())
		assert.Empty(t, errOut.String())
	})
}

func TestConfigDir(t *testing.T) {
	env := func(m map[string]string) func(string) (string, bool) {
		return func(k string) (string, bool) {
			v, ok := m[k]
			return v, ok
		}
	}
	t.Cleanup(func() { dataDir = "" })

	dataDir = ""
	assert.Equal(t, "/env/dir", configDir(env(map[string]string{config.EnvDataDir: "/env/dir"})))
	assert.Equal(t, config.DefaultDataDir(), configDir(env(nil)))

	dataDir = "/flag/dir"
	assert.Equal(t, "/flag/dir", configDir(env(map[string]string{config.EnvDataDir: "/env/dir"})))
}
