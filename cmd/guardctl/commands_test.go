package main

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contact-guard-proxy/internal/security"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("CONFIG_FILE", "")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestSimilarityCommand(t *testing.T) {
	out, err := execute(t, "similarity", "kitten", "sitting")
	require.NoError(t, err)

	var decoded struct {
		Distance   int     `json:"distance"`
		Similarity float64 `json:"similarity"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Equal(t, 3, decoded.Distance)
	assert.InDelta(t, 4.0/7.0, decoded.Similarity, 1e-9)
}

func TestCheckCommandReportsIssue(t *testing.T) {
	out, err := execute(t, "check",
		"--name", "Ana",
		"--email", "ana@example.com",
		"--subject", "Oi",
		"--message", "Ganhe bitcoin agora mesmo!",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, security.ErrContentInvalid)
	assert.Contains(t, out, `"suspicious_pattern"`)
}

func TestCheckCommandSanitizes(t *testing.T) {
	out, err := execute(t, "check",
		"--name", "Ana",
		"--email", "ana@example.com",
		"--subject", "Oi",
		"--message", "<b>Olá</b>, tudo bem com você?",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "bOlá/b, tudo bem com você?")
	assert.Contains(t, out, `"valid": true`)
}

func TestReportAndResetCommands(t *testing.T) {
	out, err := execute(t, "report", "--client", "198.51.100.7")
	require.NoError(t, err)
	assert.Contains(t, out, `"remaining_submissions": 3`)

	out, err = execute(t, "reset", "--client", "198.51.100.7")
	require.NoError(t, err)
	assert.Contains(t, out, "contact-guard:guard:")
}

func TestPurgeRequiresSQLite(t *testing.T) {
	_, err := execute(t, "purge")
	require.Error(t, err)
}
