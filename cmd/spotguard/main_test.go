package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withFlags(t *testing.T, understand, confirm bool) {
	t.Helper()
	prevU, prevC := runUnderstand, runConfirm
	runUnderstand, runConfirm = understand, confirm
	t.Cleanup(func() { runUnderstand, runConfirm = prevU, prevC })
}

func TestConfirmLive(t *testing.T) {
	t.Run("requires risk flag", func(t *testing.T) {
		withFlags(t, false, true)
		err := confirmLive(strings.NewReader(""), &bytes.Buffer{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--i-understand-risks")
	})
	t.Run("confirm flag skips prompt", func(t *testing.T) {
		withFlags(t, true, true)
		var out bytes.Buffer
		require.NoError(t, confirmLive(strings.NewReader(""), &out))
		assert.Empty(t, out.String())
	})
	t.Run("typed phrase", func(t *testing.T) {
		withFlags(t, true, false)
		var out bytes.Buffer
		require.NoError(t, confirmLive(strings.NewReader(riskPhrase+"\n"), &out))
		assert.Contains(t, out.String(), riskPhrase)
	})
	t.Run("wrong phrase", func(t *testing.T) {
		withFlags(t, true, false)
		err := confirmLive(strings.NewReader("yes\n"), &bytes.Buffer{})
		require.Error(t, err)
	})
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	t.Cleanup(func() { rootCmd.SetArgs(nil); rootCmd.SetOut(nil) })
	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "spotguard dev")
}
