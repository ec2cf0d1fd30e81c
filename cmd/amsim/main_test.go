package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ametal-go/ametal/nvic"
)

func TestWritePriority(t *testing.T) {
	var buf bytes.Buffer
	// Group 5 with 3 bits leaves 2 preemption bits and 1 sub bit.
	err := writePriority(&buf, nvic.CoreM4, 5, 3, 2, 1)
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"encoded:   5 (preempt 2, sub 1)", "register:  0xa0", "aircr:     0x5fa0500"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "warning") {
		t.Error("unexpected truncation warning")
	}

	buf.Reset()
	writePriority(&buf, nvic.CoreM0Plus, 0, 2, 7, 0)
	if !strings.Contains(buf.String(), "warning") {
		t.Errorf("expected truncation warning for preempt 7 in 2 bits:\n%s", buf.String())
	}
}

func TestRunCommand(t *testing.T) {
	scenario := filepath.Join(t.TempDir(), "beat.yaml")
	err := os.WriteFile(scenario, []byte("name: beat\nduration_ticks: 100\ntimers: [{name: t, period_ms: 10}]\n"), 0o644)
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetArgs([]string{"run", "--json", scenario})
	defer func() { runOpts.json = false }()
	if err := rootCmd.Execute(); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), `"fired":10`) {
		t.Errorf("unexpected report %s", buf.String())
	}
}
