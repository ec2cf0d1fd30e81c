// Package sim runs the scheduling core tick by tick against a simulated
// interrupt controller. A Scenario describes timers, jobs and interrupt
// lines; Run wires them to softimer, isrdefer and nvic exactly as firmware
// would and reports when every callback ran.
package sim

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ametal-go/ametal/jobq"
	"github.com/ametal-go/ametal/nvic"
)

// Scenario is the YAML description of a simulation.
type Scenario struct {
	Name       string         `yaml:"name"`
	TickRateHz uint32         `yaml:"tick_rate_hz"`
	Duration   uint32         `yaml:"duration_ticks"`
	Priorities int            `yaml:"priorities"`
	Jobs       []JobSpec      `yaml:"jobs"`
	Timers     []TimerSpec    `yaml:"timers"`
	Interrupts *InterruptSpec `yaml:"interrupts"`
}

// JobSpec declares a deferred job posted by timers or interrupt lines.
type JobSpec struct {
	Name     string `yaml:"name"`
	Priority uint   `yaml:"priority"`

	// Chain names a job posted when this job runs.
	Chain string `yaml:"chain"`
}

// TimerSpec declares a software timer.
type TimerSpec struct {
	Name     string `yaml:"name"`
	PeriodMs uint32 `yaml:"period_ms"`

	// StartTick and StopTick schedule Start and Stop. A zero StartTick starts
	// the timer before the first tick, a zero StopTick never stops it.
	StartTick uint32 `yaml:"start_tick"`
	StopTick  uint32 `yaml:"stop_tick"`

	// Posts names the job posted each time the timer fires.
	Posts string `yaml:"posts"`
}

// InterruptSpec configures the interrupt multiplexer and the interrupt sources.
type InterruptSpec struct {
	Start            int         `yaml:"start"`
	End              int         `yaml:"end"`
	Slots            int         `yaml:"slots"`
	PriorityGroup    uint32      `yaml:"priority_group"`
	PriorityBits     uint8       `yaml:"priority_bits"`
	Core             string      `yaml:"core"`
	StrictDisconnect bool        `yaml:"strict_disconnect"`
	Lines            []LineSpec  `yaml:"lines"`
	Raise            []RaiseSpec `yaml:"raise"`
}

// LineSpec connects a handler to an interrupt number.
type LineSpec struct {
	Name    string `yaml:"name"`
	Inum    int    `yaml:"inum"`
	Preempt uint32 `yaml:"preempt"`
	Sub     uint32 `yaml:"sub"`
	Posts   string `yaml:"posts"`

	// ConnectTick and DisconnectTick schedule the connection. Zero connects
	// before the first tick and never disconnects respectively.
	ConnectTick    uint32 `yaml:"connect_tick"`
	DisconnectTick uint32 `yaml:"disconnect_tick"`
}

// RaiseSpec asserts an interrupt periodically.
type RaiseSpec struct {
	Inum       int    `yaml:"inum"`
	FirstTick  uint32 `yaml:"first_tick"`
	EveryTicks uint32 `yaml:"every_ticks"`

	// Count limits the number of assertions, zero is unlimited.
	Count uint32 `yaml:"count"`
}

// Defaults applied by Load and Validate to unset fields.
const (
	DefaultTickRateHz   = 1000
	DefaultPriorities   = 8
	DefaultPriorityBits = 3
	DefaultSlots        = 8
)

var errScenario = errors.New("sim: invalid scenario")

// Load decodes a YAML scenario from r and validates it. Unknown fields are errors.
func Load(r io.Reader) (Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil {
		return Scenario{}, fmt.Errorf("sim: decoding scenario: %w", err)
	}
	if err := sc.Validate(); err != nil {
		return Scenario{}, err
	}
	return sc, nil
}

// Validate fills in defaults and checks cross references between jobs,
// timers and lines.
func (sc *Scenario) Validate() error {
	if sc.TickRateHz == 0 {
		sc.TickRateHz = DefaultTickRateHz
	}
	if sc.Priorities == 0 {
		sc.Priorities = DefaultPriorities
	}
	if sc.Priorities < 0 || sc.Priorities > jobq.MaxPriorities {
		return fmt.Errorf("%w: priorities %d outside 1..%d", errScenario, sc.Priorities, jobq.MaxPriorities)
	}
	if sc.Duration == 0 {
		return fmt.Errorf("%w: duration_ticks must be set", errScenario)
	}
	jobs := make(map[string]bool, len(sc.Jobs))
	for _, j := range sc.Jobs {
		if j.Name == "" || jobs[j.Name] {
			return fmt.Errorf("%w: job name %q empty or repeated", errScenario, j.Name)
		}
		jobs[j.Name] = true
	}
	ref := func(kind, name, job string) error {
		if job != "" && !jobs[job] {
			return fmt.Errorf("%w: %s %q posts unknown job %q", errScenario, kind, name, job)
		}
		return nil
	}
	chain := make(map[string]string, len(sc.Jobs))
	for _, j := range sc.Jobs {
		if err := ref("job", j.Name, j.Chain); err != nil {
			return err
		}
		chain[j.Name] = j.Chain
	}
	// A chained job runs in the same drain as its poster, a cycle never drains.
	for _, j := range sc.Jobs {
		seen := map[string]bool{j.Name: true}
		for next := chain[j.Name]; next != ""; next = chain[next] {
			if seen[next] {
				return fmt.Errorf("%w: job %q chain loops through %q", errScenario, j.Name, next)
			}
			seen[next] = true
		}
	}
	for _, t := range sc.Timers {
		if t.Name == "" {
			return fmt.Errorf("%w: timer without name", errScenario)
		}
		if t.PeriodMs == 0 {
			return fmt.Errorf("%w: timer %q period_ms must be positive", errScenario, t.Name)
		}
		if err := ref("timer", t.Name, t.Posts); err != nil {
			return err
		}
	}
	irq := sc.Interrupts
	if irq == nil {
		return nil
	}
	if irq.Slots == 0 {
		irq.Slots = DefaultSlots
	}
	if irq.PriorityBits == 0 {
		irq.PriorityBits = DefaultPriorityBits
	}
	if irq.End < irq.Start || irq.Start < 0 || irq.End >= nvic.NumIRQ {
		return fmt.Errorf("%w: interrupt range [%d,%d]", errScenario, irq.Start, irq.End)
	}
	if _, err := ParseCore(irq.Core); err != nil {
		return err
	}
	for _, l := range irq.Lines {
		if l.Name == "" {
			return fmt.Errorf("%w: line without name", errScenario)
		}
		if err := ref("line", l.Name, l.Posts); err != nil {
			return err
		}
	}
	for i := range irq.Raise {
		if irq.Raise[i].FirstTick == 0 {
			irq.Raise[i].FirstTick = 1
		}
	}
	return nil
}

// ParseCore maps a core name such as "m0+" or "cortex-m4" to an nvic.Core.
// The empty string selects Cortex-M4.
func ParseCore(s string) (nvic.Core, error) {
	switch strings.TrimPrefix(strings.ToLower(s), "cortex-") {
	case "m0":
		return nvic.CoreM0, nil
	case "m0+", "m0plus":
		return nvic.CoreM0Plus, nil
	case "m3":
		return nvic.CoreM3, nil
	case "m4", "":
		return nvic.CoreM4, nil
	}
	return 0, fmt.Errorf("%w: unknown core %q", errScenario, s)
}
