package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioPath = "../../internal/scenario/testdata/kerbin.yaml"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var out bytes.Buffer
	root := newRootCommand()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	return out.String(), err
}

func TestInspectTable(t *testing.T) {
	out, err := execute(t, "inspect", "--scenario", scenarioPath, "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "VESSEL")
	for _, name := range []string{"Relay One", "Probe", "Dormant Lander"} {
		assert.Contains(t, out, name)
	}
}

func TestInspectJSON(t *testing.T) {
	out, err := execute(t, "inspect", "--scenario", scenarioPath, "--log-level", "error", "--json")
	require.NoError(t, err)

	var doc struct {
		Vessels []struct {
			Name  string `json:"name"`
			Valid bool   `json:"valid"`
		} `json:"vessels"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	require.Len(t, doc.Vessels, 3)
	assert.Equal(t, "Dormant Lander", doc.Vessels[0].Name)
	for _, v := range doc.Vessels {
		assert.True(t, v.Valid, v.Name)
	}
}

func TestInspectRequiresScenario(t *testing.T) {
	t.Setenv("VESSELSIM_SCENARIO", "")
	_, err := execute(t, "inspect")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no scenario")
}

func TestSimulateWritesEvents(t *testing.T) {
	dir := t.TempDir()
	events := filepath.Join(dir, "events.jsonl")

	out, err := execute(t, "simulate",
		"--scenario", scenarioPath,
		"--log-level", "error",
		"--duration", "5s",
		"--tick", "1s",
		"--mode", "accelerated",
		"--events", events,
		"--db", filepath.Join(dir, "parts.db"),
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Relay One")

	f, err := os.Open(events)
	require.NoError(t, err)
	defer f.Close()

	kinds := map[string]int{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev struct {
			Kind   string `json:"kind"`
			Vessel string `json:"vessel"`
		}
		require.NoError(t, json.Unmarshal(sc.Bytes(), &ev), sc.Text())
		assert.NotEmpty(t, ev.Vessel)
		kinds[ev.Kind]++
	}
	require.NoError(t, sc.Err())
	assert.NotEmpty(t, kinds)
}

func TestSimulateRejectsBadMode(t *testing.T) {
	_, err := execute(t, "simulate", "--scenario", scenarioPath, "--mode", "sideways")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "invalid configuration"), err.Error())
}
