package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignite/outreach-guard/internal/domain"
	"github.com/ignite/outreach-guard/internal/templates"
)

func setupLocal(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("storage:\n  backend: local\n"), 0644))
	t.Setenv("STORAGE_BACKEND", "local")
	t.Setenv("REJECTION_LOCAL_PATH", filepath.Join(dir, "rejections"))
	return cfgPath
}

func run(t *testing.T, cfgPath string, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(openGate)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--config", cfgPath, "--server", ""}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFile(t *testing.T, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

func TestGuardctl_RejectThenCheck(t *testing.T) {
	cfgPath := setupLocal(t)

	body := "Hi Sam,\nSaw Brightline moved billing to Stripe last quarter. Teams that switch usually rebuild dunning rules by hand. We automate that in a day. Worth a look?"
	bodyPath := filepath.Join(t.TempDir(), "body.txt")
	require.NoError(t, os.WriteFile(bodyPath, []byte(body), 0644))

	out, err := run(t, cfgPath, "reject",
		"--recipient", "sam@brightline.io",
		"--tag", "wrong_angle",
		"--subject", "Dunning after the Stripe move",
		"--body-file", bodyPath,
		"--template", "tpl-billing")
	require.NoError(t, err, out)

	var rec domain.RejectionRecord
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, 1, rec.RejectionCount)

	draft := writeFile(t, "draft.json", domain.LeadDraft{
		RecipientEmail: "sam@brightline.io",
		Subject:        "Dunning after the Stripe move",
		Body:           body,
	})
	out, err = run(t, cfgPath, "check", "--draft", draft)
	assert.ErrorContains(t, err, "draft blocked: repeat_draft")

	var res domain.QualityGuardResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Failed(domain.RuleRepeatDraft))
}

func TestGuardctl_History(t *testing.T) {
	cfgPath := setupLocal(t)

	out, err := run(t, cfgPath, "history", "nobody@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, "no rejection history")

	_, err = run(t, cfgPath, "reject", "--recipient", "nobody@example.com", "--tag", "too_generic")
	require.NoError(t, err)

	out, err = run(t, cfgPath, "history", "NOBODY@example.com")
	require.NoError(t, err)
	assert.Contains(t, out, `"rejection_count": 1`)
}

func TestGuardctl_SelectTemplate(t *testing.T) {
	cfgPath := setupLocal(t)

	_, err := run(t, cfgPath, "reject", "--recipient", "sam@brightline.io", "--tag", "wrong_angle", "--template", "tpl-a")
	require.NoError(t, err)

	out, err := run(t, cfgPath, "select-template", "sam@brightline.io", "tpl-a", "tpl-b")
	require.NoError(t, err)

	var sel templates.Selection
	require.NoError(t, json.Unmarshal([]byte(out), &sel))
	assert.Equal(t, "tpl-b", sel.TemplateID)
	assert.Equal(t, 1, sel.Skipped)
}

func TestGuardctl_ArgumentErrors(t *testing.T) {
	cfgPath := setupLocal(t)

	_, err := run(t, cfgPath, "check")
	assert.Error(t, err, "--draft is required")

	_, err = run(t, cfgPath, "select-template", "sam@brightline.io")
	assert.Error(t, err)

	_, err = run(t, cfgPath, "check", "--draft", filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
