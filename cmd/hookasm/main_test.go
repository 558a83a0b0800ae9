package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

const counterPlan = `
classes:
  - name: app/Counter
    methods:
      - name: next
        desc: (I)I
        access: public
        code: |
          ILOAD 1
          ICONST_1
          IADD
          IRETURN
      - name: reset
        desc: ()V
        access: public
        code: RETURN

handlers:
  - owner: app/Counter
    name: onNext
    desc: (I)V
    access: private
    params:
      - param: 0
        arg: {}
    inject:
      method: [%s]
      at: [HEAD, RETURN]
`

func writePlan(t *testing.T, method string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	src := []byte(counterPlan)
	src = bytes.Replace(src, []byte("%s"), []byte(method), 1)
	require.NoError(t, os.WriteFile(path, src, 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(append(args, "--no-color"))
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestApplyText(t *testing.T) {
	stdout, _, err := execute(t, "apply", writePlan(t, "next"), "--verify")
	require.NoError(t, err)
	require.Contains(t, stdout, "TARGET")
	require.Contains(t, stdout, "app/Counter.next(I)I")
	require.Contains(t, stdout, "app/Counter.onNext(I)V")
	require.Contains(t, stdout, "LIGHT")
	require.Contains(t, stdout, ": 2 injection point(s)")
}

func TestApplyJSON(t *testing.T) {
	stdout, _, err := execute(t, "apply", writePlan(t, "next"), "--output", "json")
	require.NoError(t, err)

	var result struct {
		RunID    string `json:"run_id"`
		Injected int    `json:"injected"`
		Classes  []struct {
			Class   string `json:"class"`
			Results []struct {
				Target string `json:"target"`
				Points int    `json:"points"`
			} `json:"results"`
		} `json:"classes"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.NotEmpty(t, result.RunID)
	require.Equal(t, 2, result.Injected)
	require.Len(t, result.Classes, 1)
	require.Equal(t, "app/Counter", result.Classes[0].Class)
	require.Equal(t, 2, result.Classes[0].Results[0].Points)
}

func TestApplyJSONSendsListingsToStderr(t *testing.T) {
	path := writePlan(t, "next")
	src, err := os.ReadFile(path)
	require.NoError(t, err)
	src = bytes.Replace(src, []byte("at: [HEAD, RETURN]"), []byte("at: [HEAD, RETURN]\n      print: true"), 1)
	require.NoError(t, os.WriteFile(path, src, 0o644))

	stdout, stderr, err := execute(t, "apply", path, "--output", "json")
	require.NoError(t, err)
	var result map[string]any
	require.NoError(t, json.Unmarshal([]byte(stdout), &result))
	require.Contains(t, stderr, "INVOKESPECIAL app/Counter.onNext(I)V")

	stdout, _, err = execute(t, "apply", path)
	require.NoError(t, err)
	require.Contains(t, stdout, "INVOKESPECIAL app/Counter.onNext(I)V")
}

func TestApplySnapshotThenDis(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "counter.snap")
	stdout, _, err := execute(t, "apply", writePlan(t, "next"), "--out", snap)
	require.NoError(t, err)
	require.Contains(t, stdout, "snapshot written to "+snap)

	stdout, _, err = execute(t, "dis", snap, "--method", "next")
	require.NoError(t, err)
	require.Contains(t, stdout, "app/Counter.next(I)I")
	require.Contains(t, stdout, "INVOKESPECIAL")
	require.NotContains(t, stdout, "reset")
}

func TestApplyReportsErrors(t *testing.T) {
	snap := filepath.Join(t.TempDir(), "counter.snap")
	_, stderr, err := execute(t, "apply", writePlan(t, "nxt"), "--out", snap)
	require.EqualError(t, err, "found 1 error(s)")
	require.Contains(t, stderr, "E5003")
	require.Contains(t, stderr, "Did you mean 'next'?")
	require.NoFileExists(t, snap)
}

func TestApplyBadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("classes:\n  - nme: x\n"), 0o644))
	_, stderr, err := execute(t, "apply", path)
	require.Error(t, err)
	require.Contains(t, stderr, "E5001")
}

func TestApplyUnknownOutput(t *testing.T) {
	_, _, err := execute(t, "apply", writePlan(t, "next"), "--output", "xml")
	require.EqualError(t, err, "unknown output format: xml")
}

func TestDisPlan(t *testing.T) {
	stdout, _, err := execute(t, "dis", writePlan(t, "next"))
	require.NoError(t, err)
	require.Contains(t, stdout, "public app/Counter.next(I)I")
	require.Contains(t, stdout, "public app/Counter.reset()V")
	require.NotContains(t, stdout, "INVOKESPECIAL")

	_, _, err = execute(t, "dis", writePlan(t, "next"), "--method", "missing")
	require.EqualError(t, err, `method "missing" not found`)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "version")
	require.NoError(t, err)
	require.Equal(t, "hookasm dev (commit unknown, built unknown)\n", stdout)

	stdout, _, err = execute(t, "version", "--output", "json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &info))
	require.Equal(t, "dev", info["version"])
}
