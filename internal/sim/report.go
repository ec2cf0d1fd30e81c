package sim

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"github.com/sugawarayuuta/sonnet"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/ametal-go/ametal/jobq"
	"github.com/ametal-go/ametal/nvic"
	"github.com/ametal-go/ametal/softimer"
)

// IntervalStats summarises the spacing between consecutive events.
type IntervalStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"stddev"`
	Min    float64 `json:"min"`
	Max    float64 `json:"max"`
}

// Intervals computes the statistics of the differences between consecutive
// ticks. Fewer than two ticks yields a zero value.
func Intervals(ticks []uint32) IntervalStats {
	if len(ticks) < 2 {
		return IntervalStats{}
	}
	d := make([]float64, len(ticks)-1)
	for i := range d {
		d[i] = float64(ticks[i+1] - ticks[i])
	}
	return Summarize(d)
}

// Summarize computes the statistics of a set of intervals in any unit.
func Summarize(d []float64) IntervalStats {
	if len(d) == 0 {
		return IntervalStats{}
	}
	is := IntervalStats{Count: len(d), Min: floats.Min(d), Max: floats.Max(d)}
	if len(d) == 1 {
		is.Mean = d[0]
		return is
	}
	is.Mean, is.StdDev = stat.MeanStdDev(d, nil)
	if math.IsNaN(is.StdDev) {
		is.StdDev = 0
	}
	return is
}

type TimerReport struct {
	Name        string        `json:"name"`
	PeriodTicks uint32        `json:"period_ticks"`
	Fired       int           `json:"fired"`
	Armed       bool          `json:"armed"`
	Interval    IntervalStats `json:"interval"`
}

type JobReport struct {
	Name       string        `json:"name"`
	Priority   uint          `json:"priority"`
	Posted     uint32        `json:"posted"`
	Rejected   uint32        `json:"rejected"`
	Runs       int           `json:"runs"`
	MaxLatency uint32        `json:"max_latency_ticks"`
	Interval   IntervalStats `json:"interval"`
}

type LineReport struct {
	Name       string `json:"name"`
	Inum       int    `json:"inum"`
	Connected  bool   `json:"connected"`
	Dispatched uint32 `json:"dispatched"`
	Err        string `json:"error,omitempty"`
}

// Report is the outcome of a simulation.
type Report struct {
	Scenario   string         `json:"scenario"`
	TickRateHz uint32         `json:"tick_rate_hz"`
	Ticks      uint32         `json:"ticks"`
	Timers     []TimerReport  `json:"timers"`
	Jobs       []JobReport    `json:"jobs"`
	Lines      []LineReport   `json:"lines,omitempty"`
	Queue      jobq.Stats     `json:"queue"`
	Softimer   softimer.Stats `json:"softimer"`
	Mux        nvic.Stats     `json:"mux"`
	Raised     uint32         `json:"raised"`
	Masked     uint32         `json:"masked"`
	Events     []Event        `json:"events,omitempty"`
}

// Report builds a report of the ticks simulated so far.
func (s *Sim) Report() *Report {
	r := &Report{
		Scenario:   s.sc.Name,
		TickRateHz: s.sc.TickRateHz,
		Ticks:      s.now,
		Queue:      s.def.Stats(),
		Softimer:   s.mod.Stats(),
		Mux:        s.mux.Stats(),
		Raised:     s.ctrl.Raised,
		Masked:     s.ctrl.Masked,
		Events:     s.events,
	}
	for _, t := range s.timers {
		r.Timers = append(r.Timers, TimerReport{
			Name:        t.spec.Name,
			PeriodTicks: t.timer.Period(),
			Fired:       len(t.fires),
			Armed:       t.timer.Armed(),
			Interval:    Intervals(t.fires),
		})
	}
	for _, j := range s.jobs {
		r.Jobs = append(r.Jobs, JobReport{
			Name:       j.spec.Name,
			Priority:   j.job.Priority(),
			Posted:     j.posted,
			Rejected:   j.rejected,
			Runs:       len(j.runs),
			MaxLatency: j.latency,
			Interval:   Intervals(j.runs),
		})
	}
	for _, l := range s.lines {
		lr := LineReport{
			Name:       l.spec.Name,
			Inum:       l.spec.Inum,
			Connected:  l.connected,
			Dispatched: l.dispatched,
		}
		if l.err != nil {
			lr.Err = l.err.Error()
		}
		r.Lines = append(r.Lines, lr)
	}
	return r
}

// WriteJSON encodes r as a single JSON document followed by a newline.
func (r *Report) WriteJSON(w io.Writer) error {
	b, err := sonnet.Marshal(r)
	if err != nil {
		return err
	}
	_, err = w.Write(append(b, '\n'))
	return err
}

// WriteText writes r as aligned tables.
func (r *Report) WriteText(w io.Writer) error {
	fmt.Fprintf(w, "scenario %q: %d ticks at %d Hz\n", r.Scenario, r.Ticks, r.TickRateHz)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if len(r.Timers) > 0 {
		fmt.Fprintln(tw, "\nTIMER\tPERIOD\tFIRED\tMEAN\tSTDDEV\tMIN\tMAX")
		for _, t := range r.Timers {
			iv := t.Interval
			fmt.Fprintf(tw, "%s\t%d\t%d\t%.2f\t%.2f\t%g\t%g\n", t.Name, t.PeriodTicks, t.Fired, iv.Mean, iv.StdDev, iv.Min, iv.Max)
		}
	}
	if len(r.Jobs) > 0 {
		fmt.Fprintln(tw, "\nJOB\tPRIO\tPOSTED\tREJECTED\tRUNS\tMAXLAT\tMEAN")
		for _, j := range r.Jobs {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\t%.2f\n", j.Name, j.Priority, j.Posted, j.Rejected, j.Runs, j.MaxLatency, j.Interval.Mean)
		}
	}
	if len(r.Lines) > 0 {
		fmt.Fprintln(tw, "\nLINE\tINUM\tCONNECTED\tDISPATCHED\tERROR")
		for _, l := range r.Lines {
			fmt.Fprintf(tw, "%s\t%d\t%t\t%d\t%s\n", l.Name, l.Inum, l.Connected, l.Dispatched, l.Err)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(w, "\nqueue: posted=%d processed=%d rejected=%d\n", r.Queue.Posted, r.Queue.Processed, r.Queue.Rejected)
	fmt.Fprintf(w, "softimer: ticks=%d fired=%d\n", r.Softimer.Ticks, r.Softimer.Fired)
	_, err := fmt.Fprintf(w, "mux: dispatched=%d dropped=%d raised=%d masked=%d\n", r.Mux.Dispatched, r.Mux.Dropped, r.Raised, r.Masked)
	if len(r.Events) == 0 {
		return err
	}
	for _, ev := range r.Events {
		_, err = fmt.Fprintf(w, "%6d %-10s %s\n", ev.Tick, ev.Kind, ev.Name)
		if err != nil {
			return err
		}
	}
	return nil
}
