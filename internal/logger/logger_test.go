package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDefaultsToInfoLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf, HumanReadable: true, Component: "manifest"})
	require.NoError(t, err)

	log.Debug("should not appear")
	log.Info("hello")

	out := buf.String()
	require.NotContains(t, out, "should not appear")
	require.Contains(t, out, "hello")
	require.Contains(t, out, "component=manifest")
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	t.Parallel()

	_, err := New(Options{Level: "not-a-level"})
	require.Error(t, err)
}

func TestJSONFormatterWhenNotHumanReadable(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf, HumanReadable: false, Component: "taskgraph"})
	require.NoError(t, err)

	log.Info("materialized task graph", "tasks", 12)

	line := strings.TrimSpace(buf.String())
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	require.Equal(t, "materialized task graph", decoded["msg"])
	require.Equal(t, "taskgraph", decoded["component"])
	require.Equal(t, float64(12), decoded["tasks"])
}

func TestWithFieldsMergesDeterministically(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf, HumanReadable: false, Component: "plan"})
	require.NoError(t, err)

	derived := log.WithFields(map[string]any{"layer": 2, "project": "utils"})
	derived.Info("scheduled layer")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	require.Equal(t, "plan", decoded["component"])
	require.Equal(t, float64(2), decoded["layer"])
	require.Equal(t, "utils", decoded["project"])
}

func TestErrorIncludesErrorField(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log, err := New(Options{Writer: &buf, HumanReadable: false, Component: "exec"})
	require.NoError(t, err)

	log.Error(errExitNonZero, "task failed", "task", "utils:build")

	line := strings.TrimSpace(buf.String())
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(line), &decoded))
	require.Equal(t, "task failed", decoded["msg"])
	require.Equal(t, "utils:build", decoded["task"])
	require.Contains(t, decoded["error"], "exit status 1")
}

var errExitNonZero = stdError("exit status 1")

type stdError string

func (e stdError) Error() string { return string(e) }
