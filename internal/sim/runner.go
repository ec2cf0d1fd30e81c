package sim

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/internal/xlog"
	"github.com/ametal-go/ametal/isrdefer"
	"github.com/ametal-go/ametal/jobq"
	"github.com/ametal-go/ametal/nvic"
	"github.com/ametal-go/ametal/softimer"
)

// EventKind classifies trace events.
type EventKind uint8

const (
	EventTimer EventKind = iota + 1
	EventIRQ
	EventJob
	EventReject
	EventConnect
	EventDisconnect
)

func (k EventKind) String() string {
	switch k {
	case EventTimer:
		return "timer"
	case EventIRQ:
		return "irq"
	case EventJob:
		return "job"
	case EventReject:
		return "reject"
	case EventConnect:
		return "connect"
	case EventDisconnect:
		return "disconnect"
	}
	return "unknown"
}

// MarshalText implements encoding.TextMarshaler so reports carry kind names.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event records one callback in the order the core ran it.
type Event struct {
	Tick uint32    `json:"tick"`
	Kind EventKind `json:"kind"`
	Name string    `json:"name"`
}

// Options tunes a simulation run.
type Options struct {
	// Trace records every callback in Report.Events.
	Trace  bool
	Logger *slog.Logger
}

type simJob struct {
	spec     JobSpec
	job      jobq.Job
	sim      *Sim
	chain    *simJob
	posted   uint32
	rejected uint32
	postedAt uint32
	latency  uint32
	runs     []uint32
}

type simTimer struct {
	spec  TimerSpec
	timer softimer.Timer
	sim   *Sim
	posts *simJob
	fires []uint32
}

type simLine struct {
	spec       LineSpec
	sim        *Sim
	posts      *simJob
	connected  bool
	err        error
	dispatched uint32
}

type simRaise struct {
	spec RaiseSpec
	n    uint32
}

// Sim is a single simulation in progress. The zero value is not usable, see New.
type Sim struct {
	sc       Scenario
	opts     Options
	log      xlog.Logger
	mod      softimer.Module
	def      isrdefer.Defer
	mux      nvic.Mux
	ctrl     nvic.SimController
	jobs     []*simJob
	timers   []*simTimer
	lines    []*simLine
	raises   []simRaise
	now      uint32
	notified bool
	events   []Event
}

// Run validates sc, simulates it for its whole duration and returns the report.
func Run(ctx context.Context, sc Scenario, opts Options) (*Report, error) {
	s, err := New(sc, opts)
	if err != nil {
		return nil, err
	}
	if err := s.Run(ctx); err != nil {
		return nil, err
	}
	return s.Report(), nil
}

// New initializes the timer module, the deferred job queue and, if the
// scenario declares interrupts, the multiplexer. Timers and lines scheduled
// for tick zero are armed and connected before New returns.
func New(sc Scenario, opts Options) (*Sim, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	s := &Sim{sc: sc, opts: opts, log: xlog.New(opts.Logger)}
	err := s.mod.Init(softimer.Config{RateHz: sc.TickRateHz, Logger: opts.Logger})
	if err != nil {
		return nil, fmt.Errorf("sim: softimer: %w", err)
	}
	err = s.def.Init(isrdefer.Config{
		Priorities: sc.Priorities,
		Notify:     notify,
		NotifyArg:  s,
		Logger:     opts.Logger,
	})
	if err != nil {
		return nil, fmt.Errorf("sim: isrdefer: %w", err)
	}

	byName := make(map[string]*simJob, len(sc.Jobs))
	for _, spec := range sc.Jobs {
		j := &simJob{spec: spec, sim: s}
		isrdefer.JobInit(&j.job, runJob, j, spec.Priority)
		byName[spec.Name] = j
		s.jobs = append(s.jobs, j)
	}
	for _, j := range s.jobs {
		j.chain = byName[j.spec.Chain]
	}
	for _, spec := range sc.Timers {
		t := &simTimer{spec: spec, sim: s, posts: byName[spec.Posts]}
		if err := t.timer.Init(&s.mod, fireTimer, t); err != nil {
			return nil, fmt.Errorf("sim: timer %q: %w", spec.Name, err)
		}
		s.timers = append(s.timers, t)
	}
	if sc.Interrupts != nil {
		if err := s.initInterrupts(*sc.Interrupts, byName); err != nil {
			return nil, err
		}
	}
	s.schedule(0)
	return s, nil
}

func (s *Sim) initInterrupts(spec InterruptSpec, byName map[string]*simJob) error {
	core, err := ParseCore(spec.Core)
	if err != nil {
		return err
	}
	s.ctrl.Core = core
	s.ctrl.Handler = s.mux.Dispatch
	err = s.mux.Init(nvic.DevInfo{
		Start:            spec.Start,
		End:              spec.End,
		Map:              make([]uint8, spec.End-spec.Start+1),
		Slots:            make([]nvic.ISRInfo, spec.Slots),
		PriorityGroup:    spec.PriorityGroup,
		PriorityBits:     spec.PriorityBits,
		Controller:       &s.ctrl,
		Logger:           s.opts.Logger,
		StrictDisconnect: spec.StrictDisconnect,
	})
	if err != nil {
		return fmt.Errorf("sim: nvic: %w", err)
	}
	for _, l := range spec.Lines {
		s.lines = append(s.lines, &simLine{spec: l, sim: s, posts: byName[l.Posts]})
	}
	for _, r := range spec.Raise {
		s.raises = append(s.raises, simRaise{spec: r})
	}
	return nil
}

// Now returns the number of ticks simulated so far.
func (s *Sim) Now() uint32 { return s.now }

// Run simulates the remaining ticks of the scenario. Each tick applies the
// scheduled timer and connection changes, raises due interrupts, ticks the
// timer module and finally processes deferred jobs if any were added.
func (s *Sim) Run(ctx context.Context) error {
	for s.now < s.sc.Duration {
		if s.now&1023 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		if err := s.Step(); err != nil {
			return err
		}
	}
	return nil
}

// Step simulates a single tick.
func (s *Sim) Step() error {
	s.now++
	s.schedule(s.now)
	for i := range s.raises {
		r := &s.raises[i]
		if r.due(s.now) {
			r.n++
			s.ctrl.Raise(r.spec.Inum)
		}
	}
	s.mod.Tick()
	if !s.notified {
		return nil
	}
	s.notified = false
	err := s.def.JobProcess()
	if err != nil {
		return fmt.Errorf("sim: processing jobs at tick %d: %w", s.now, err)
	}
	return nil
}

func (r *simRaise) due(now uint32) bool {
	if now < r.spec.FirstTick || (r.spec.Count != 0 && r.n >= r.spec.Count) {
		return false
	}
	if r.spec.EveryTicks == 0 {
		return now == r.spec.FirstTick
	}
	return (now-r.spec.FirstTick)%r.spec.EveryTicks == 0
}

// schedule applies the start, stop, connect and disconnect actions for tick now.
func (s *Sim) schedule(now uint32) {
	for _, t := range s.timers {
		if t.spec.StartTick == now {
			if err := t.timer.Start(t.spec.PeriodMs); err != nil {
				s.log.Error("sim:timer-start", slog.String("timer", t.spec.Name), slog.String("err", err.Error()))
			}
		}
		if t.spec.StopTick != 0 && t.spec.StopTick == now {
			t.timer.Stop()
		}
	}
	for _, l := range s.lines {
		if l.spec.ConnectTick == now {
			s.connect(l)
		}
		if l.spec.DisconnectTick != 0 && l.spec.DisconnectTick == now {
			s.disconnect(l)
		}
	}
}

func (s *Sim) connect(l *simLine) {
	err := s.mux.Connect(l.spec.Inum, dispatchLine, l)
	if err == nil {
		err = s.mux.SetPriority(l.spec.Inum, l.spec.Preempt, l.spec.Sub)
	}
	if err == nil {
		err = s.mux.Enable(l.spec.Inum)
	}
	if err != nil {
		l.err = err
		s.log.Warn("sim:connect", slog.String("line", l.spec.Name), slog.Int("inum", l.spec.Inum), slog.String("err", err.Error()))
		return
	}
	l.connected = true
	s.record(EventConnect, l.spec.Name)
}

func (s *Sim) disconnect(l *simLine) {
	err := s.mux.Disconnect(l.spec.Inum, dispatchLine, l)
	if err != nil {
		l.err = err
		s.log.Warn("sim:disconnect", slog.String("line", l.spec.Name), slog.String("err", err.Error()))
		return
	}
	l.connected = false
	s.record(EventDisconnect, l.spec.Name)
}

func (s *Sim) post(j *simJob) {
	if j == nil {
		return
	}
	err := s.def.JobAdd(&j.job)
	switch {
	case err == nil:
		j.posted++
		j.postedAt = s.now
	case errors.Is(err, ametal.ErrBusy):
		j.rejected++
		s.record(EventReject, j.spec.Name)
	default:
		s.log.Error("sim:post", slog.String("job", j.spec.Name), slog.String("err", err.Error()))
	}
}

func (s *Sim) record(kind EventKind, name string) {
	if s.log.TraceEnabled() {
		s.log.Trace("sim:event", slog.Uint64("tick", uint64(s.now)), slog.String("kind", kind.String()), slog.String("name", name))
	}
	if s.opts.Trace {
		s.events = append(s.events, Event{Tick: s.now, Kind: kind, Name: name})
	}
}

func notify(arg any) { arg.(*Sim).notified = true }

func fireTimer(arg any) {
	t := arg.(*simTimer)
	t.fires = append(t.fires, t.sim.now)
	t.sim.record(EventTimer, t.spec.Name)
	t.sim.post(t.posts)
}

func dispatchLine(arg any) {
	l := arg.(*simLine)
	l.dispatched++
	l.sim.record(EventIRQ, l.spec.Name)
	l.sim.post(l.posts)
}

func runJob(arg any) {
	j := arg.(*simJob)
	s := j.sim
	j.runs = append(j.runs, s.now)
	j.latency = max(j.latency, s.now-j.postedAt)
	s.record(EventJob, j.spec.Name)
	s.post(j.chain)
}
