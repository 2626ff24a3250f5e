package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/mentalcare-crisis-engine/internal/crisis"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LEXICON_DIR", "")
	t.Setenv("DEFAULT_LANGUAGE", "es")
	t.Setenv("ESCALATION_THRESHOLD", "")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestClassifyArguments(t *testing.T) {
	out, err := runCLI(t, "", "classify", "Ya", "no", "quiero", "seguir")
	require.NoError(t, err)
	assert.Contains(t, out, "high_priority")
	assert.Contains(t, out, `matched "ya no quiero seguir"`)
}

func TestClassifyStdinJSON(t *testing.T) {
	out, err := runCLI(t, "hola\n\nsuicidio\n911\n", "classify", "--json")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	var results []classifyResult
	for _, line := range lines {
		var r classifyResult
		require.NoError(t, json.Unmarshal([]byte(line), &r))
		results = append(results, r)
	}
	assert.Equal(t, crisis.TierNone, results[0].Tier)
	assert.Equal(t, crisis.TierGeneralCrisis, results[1].Tier)
	assert.Equal(t, "suicidio", results[1].MatchedPhrase)
	assert.Equal(t, crisis.TierNone, results[2].Tier, "the shortcut is never a crisis")
}

func TestReplayActivatesOnConsecutiveGeneralCrisis(t *testing.T) {
	transcript := "# session 12\nhola\nno quiero vivir\nes mejor muerto\nquiero morir\n"
	out, err := runCLI(t, transcript, "replay", "-")
	require.NoError(t, err)

	assert.Contains(t, out, "activate_emergency")
	assert.Contains(t, out, `Multiple (2) crisis messages. Last: "es mejor muerto"`)
	assert.Contains(t, out, "activations: 1", "an active emergency absorbs later utterances")
}

func TestReplayResumeCountsEveryActivation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transcript.txt")
	require.NoError(t, os.WriteFile(path, []byte("quiero morir\nhola\nme quiero matar\n"), 0o644))

	out, err := runCLI(t, "", "replay", "--resume", path)
	require.NoError(t, err)
	assert.Contains(t, out, "activations: 2")
}

func TestReplayThresholdFlag(t *testing.T) {
	out, err := runCLI(t, "suicidio\n", "replay", "--threshold", "1", "-")
	require.NoError(t, err)
	assert.Contains(t, out, "activations: 1")
}

func TestReplayMissingFile(t *testing.T) {
	_, err := runCLI(t, "", "replay", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open transcript")
}

func TestLexiconValidate(t *testing.T) {
	dir := t.TempDir()
	doc := "language: es\nversion: v2\nhigh_priority:\n  - quiero morir\ngeneral:\n  - desesperado\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.yaml"), []byte(doc), 0o644))

	out, err := runCLI(t, "", "lexicon", "validate", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "version=v2 high_priority=1 general=1")
	assert.Contains(t, out, "ok: 1 lexicon(s)")
}

func TestLexiconValidateRejectsBadFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "es.yaml"), []byte("language: es\nphrases: []\n"), 0o644))
	_, err := runCLI(t, "", "lexicon", "validate", dir)
	assert.Error(t, err, "unknown fields are rejected")

	empty := t.TempDir()
	_, err = runCLI(t, "", "lexicon", "validate", empty)
	assert.Error(t, err)

	other := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(other, "pt.yaml"), []byte("language: pt\nhigh_priority:\n  - quero morrer\n"), 0o644))
	_, err = runCLI(t, "", "lexicon", "validate", other)
	assert.Error(t, err, "default language must be present")
}

func TestLexiconShowEmbedded(t *testing.T) {
	out, err := runCLI(t, "", "lexicon", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "language: es")
	assert.Contains(t, out, "quiero morir")
}
