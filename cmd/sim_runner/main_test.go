package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miretskiy/procsim/simulator"
)

const testConfigYAML = `seed: 99
duration_sec: 60
iterations: 5
content:
  - id: crusader
    template: stat_proc
actors:
  - name: paladin
    effects:
      - id: crusader
        params: {rppm: 4, duration: 15, value: 100}
    attacks:
      - action: melee
        school: physical
        interval_sec: 2.5
        amount: 200
        crit_chance: 0.2
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sim.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func TestCommandPresence(t *testing.T) {
	cmd := newRootCommand()
	for _, name := range []string{"run", "validate", "trace"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
			assert.NotNil(t, sub.Flags().Lookup("config"))
		})
	}
	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
}

func TestRunJSONReport(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	out, _, err := execute(t, "run", "--config", path, "--format", "json", "--iterations", "3")
	require.NoError(t, err)

	var report RunReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, int64(99), report.Seed)
	assert.Equal(t, 3, report.Config.Iterations, "flag overrides the file")
	assert.Equal(t, 3, report.Metrics.Trials)
	require.Len(t, report.Metrics.Actors, 1)
	am := report.Metrics.Actors[0]
	assert.Equal(t, "paladin", am.Name)
	assert.Equal(t, 3*24, am.Dispatched)
	require.Len(t, am.Procs, 1)
	assert.Equal(t, "crusader", am.Procs[0].Name)
}

func TestRunTextSummaryAndFiles(t *testing.T) {
	path := writeConfig(t, testConfigYAML)
	dir := t.TempDir()
	reportPath := filepath.Join(dir, "report.json")
	metricsPath := filepath.Join(dir, "procsim.prom")

	_, stderr, err := execute(t, "run", "-c", path, "-o", reportPath, "--metrics-file", metricsPath)
	require.NoError(t, err)
	assert.Contains(t, stderr, "Results written to")

	data, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report RunReport
	require.NoError(t, json.Unmarshal(data, &report))
	assert.Equal(t, 5, report.Metrics.Trials)

	prom, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `procsim_buff_uptime_percent{actor="paladin",buff="crusader"}`)
	assert.Contains(t, string(prom), "procsim_trials 5")

	out, _, err := execute(t, "run", "-c", path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "run "))
	assert.Contains(t, out, "proc crusader")
}

func TestRunErrors(t *testing.T) {
	_, _, err := execute(t, "run")
	require.ErrorContains(t, err, `required flag(s) "config" not set`)

	_, _, err = execute(t, "run", "-c", filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorContains(t, err, "read config")

	_, _, err = execute(t, "run", "-c", writeConfig(t, testConfigYAML), "--format", "xml")
	require.ErrorContains(t, err, "invalid format")
}

func TestValidate(t *testing.T) {
	out, _, err := execute(t, "validate", "-c", writeConfig(t, testConfigYAML))
	require.NoError(t, err)
	assert.Equal(t, "config valid: 1 actors, 1 content identifiers\n", out)

	bad := strings.Replace(testConfigYAML, "template: stat_proc", "template: mystery", 1)
	out, _, err = execute(t, "validate", "-c", writeConfig(t, bad), "--format", "json")
	require.Error(t, err)
	var res validationResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.False(t, res.Valid)
	assert.Contains(t, res.Error, "unknown content")
}

func TestTrace(t *testing.T) {
	path := writeConfig(t, testConfigYAML)

	out, _, err := execute(t, "trace", "-c", path, "--step", "10s")
	require.NoError(t, err)
	assert.Contains(t, out, "paladin")
	assert.Contains(t, out, "fires  crusader=")

	out, _, err = execute(t, "trace", "-c", path, "--step", "20s", "--format", "json")
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)

	_, _, err = execute(t, "trace", "-c", path, "--step", "0s")
	require.ErrorContains(t, err, "step must be positive")
}

func TestPromExporter(t *testing.T) {
	m := simulator.NewMetrics()
	e := newPromExporter()

	a := simulator.NewActor("mage", simulator.NewScheduler(), 1, nil)
	b, err := a.NewBuff(simulator.BuffConfig{Name: "Clearcasting"})
	require.NoError(t, err)
	b.Trigger()
	a.Scheduler().AdvanceTo(30 * time.Second)
	a.CombatEnd()
	m.RecordTrial([]*simulator.Actor{a}, 60*time.Second, 0)

	e.update(m)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.trials))
	assert.Equal(t, 60.0, testutil.ToFloat64(e.simulated))
	assert.InDelta(t, 50.0, testutil.ToFloat64(e.uptime.WithLabelValues("mage", "Clearcasting")), 1e-9)
	assert.Equal(t, 1.0, testutil.ToFloat64(e.triggers.WithLabelValues("mage", "Clearcasting")))
	assert.Equal(t, 1, testutil.CollectAndCount(e.uptime))
}
