package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleCard = `{
  "type": "AdaptiveCard",
  "version": "1.5",
  "body": [
    {"type": "TextBlock", "text": "Weekly report", "size": "large", "weight": "bolder"},
    {"type": "TextBlock", "text": "All systems nominal", "isSubtle": true}
  ]
}`

func writeCard(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "card.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestRun(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run(&buf, writeCard(t, sampleCard), 60, false, zap.NewNop()))

	out := buf.String()
	assert.Contains(t, out, "Terminal")
	assert.Contains(t, out, "Weekly report")
	assert.Contains(t, out, "<div")
}

func TestRun_HTMLOnly(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, run(&buf, writeCard(t, sampleCard), 60, true, zap.NewNop()))

	out := buf.String()
	assert.NotContains(t, out, "Terminal")
	assert.Contains(t, out, "All systems nominal")
}

func TestRun_Errors(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, run(&buf, filepath.Join(t.TempDir(), "missing.json"), 60, false, zap.NewNop()))
	assert.Error(t, run(&buf, writeCard(t, "not json"), 60, false, zap.NewNop()))
}
