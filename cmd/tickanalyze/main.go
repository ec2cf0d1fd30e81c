package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/soypat/saleae"
	"github.com/sugawarayuuta/sonnet"

	"github.com/ametal-go/ametal/internal/sim"
)

// Optional flags.
var (
	timingsOutput string
)

// Edges selects which transitions of the tick pin mark a tick.
type Edges int

const (
	// EdgesAll counts every transition, for a pin toggled once per tick.
	EdgesAll Edges = iota
	// EdgesFirst counts the first transition and every second one after it,
	// for a pin pulsed once per tick.
	EdgesFirst
	// EdgesSecond counts the second transition and every second one after it.
	EdgesSecond
)

func parseEdges(s string) (Edges, error) {
	switch s {
	case "all":
		return EdgesAll, nil
	case "first":
		return EdgesFirst, nil
	case "second":
		return EdgesSecond, nil
	}
	return 0, fmt.Errorf("invalid edge selection %q", s)
}

// Analysis is the result of checking tick timestamps against an expected period.
type Analysis struct {
	Edges int `json:"edges"`

	// Period statistics in seconds.
	Period sim.IntervalStats `json:"period"`

	// Expected period in seconds and allowed relative error.
	Expected  float64 `json:"expected"`
	Tolerance float64 `json:"tolerance"`

	// Outliers counts intervals whose relative error exceeds Tolerance.
	Outliers int `json:"outliers"`

	// WorstError is the largest relative error seen and WorstAt the capture
	// time of the edge ending that interval.
	WorstError float64 `json:"worst_error"`
	WorstAt    float64 `json:"worst_at"`

	// Missed estimates ticks lost, counting intervals spanning several periods.
	Missed int  `json:"missed"`
	Pass   bool `json:"pass"`
}

// TickCtl holds the analysis parameters.
type TickCtl struct {
	Edges     Edges
	Period    time.Duration
	Tolerance float64

	// Skip discards this many leading ticks, usually start up noise.
	Skip int
}

func main() {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "tickanalyze - Measure software timer tick jitter from a Saleae binary digital capture of a tick pin.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	input := flag.String("f", "digital_0.bin", "Input filename: tick pin capture.")
	edges := flag.String("edges", "all", "Transitions marking a tick: 'all', 'first' or 'second'.")
	period := flag.Duration("period", time.Millisecond, "Expected tick period.")
	tolerance := flag.Float64("tol", 0.05, "Allowed relative period error.")
	skip := flag.Int("skip", 0, "Discard this many leading ticks.")
	asJSON := flag.Bool("json", false, "Write the analysis as JSON.")
	flag.StringVar(&timingsOutput, "o-time", "", "Output every tick interval to a file, one per line.")
	flag.Parse()

	sel, err := parseEdges(*edges)
	if err != nil {
		log.Fatal(err)
	}
	ctl := TickCtl{Edges: sel, Period: *period, Tolerance: *tolerance, Skip: *skip}
	if ctl.Period <= 0 || ctl.Tolerance <= 0 {
		log.Fatal("period and tolerance must be positive")
	}
	start := time.Now()
	a, err := ctl.run(*input, os.Stdout, *asJSON)
	if err != nil {
		log.Fatal(err.Error())
	}
	slog.Info("finished", slog.Duration("elapsed", time.Since(start)), slog.Bool("pass", a.Pass))
	if !a.Pass {
		os.Exit(2)
	}
}

func (ctl *TickCtl) run(input string, w io.Writer, asJSON bool) (Analysis, error) {
	df, err := opendigital(input)
	if err != nil {
		return Analysis{}, err
	}
	ticks := ctl.ticks(df.Data)
	a, err := ctl.analyze(ticks)
	if err != nil {
		return a, err
	}
	if timingsOutput != "" {
		slog.Info("creating timings file", slog.String("file", timingsOutput))
		if err := writeTimings(timingsOutput, ticks); err != nil {
			return a, err
		}
	}
	if asJSON {
		b, err := sonnet.Marshal(a)
		if err != nil {
			return a, err
		}
		_, err = w.Write(append(b, '\n'))
		return a, err
	}
	return a, a.WriteText(w)
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}

// ticks selects the tick timestamps out of the captured transitions.
func (ctl *TickCtl) ticks(transitions []float64) []float64 {
	var ticks []float64
	switch ctl.Edges {
	case EdgesAll:
		ticks = transitions
	case EdgesFirst, EdgesSecond:
		for i := int(ctl.Edges) - 1; i < len(transitions); i += 2 {
			ticks = append(ticks, transitions[i])
		}
	}
	if ctl.Skip >= len(ticks) {
		return nil
	}
	return ticks[ctl.Skip:]
}

var errTooFewTicks = errors.New("need at least two ticks to measure a period")

func (ctl *TickCtl) analyze(ticks []float64) (Analysis, error) {
	if len(ticks) < 2 {
		return Analysis{}, errTooFewTicks
	}
	expect := ctl.Period.Seconds()
	a := Analysis{Edges: len(ticks), Expected: expect, Tolerance: ctl.Tolerance, Pass: true}
	d := make([]float64, len(ticks)-1)
	for i := range d {
		d[i] = ticks[i+1] - ticks[i]
		rel := math.Abs(d[i]-expect) / expect
		if rel > a.WorstError {
			a.WorstError = rel
			a.WorstAt = ticks[i+1]
		}
		if rel > ctl.Tolerance {
			a.Outliers++
			a.Pass = false
		}
		if n := int(math.Round(d[i] / expect)); n > 1 {
			a.Missed += n - 1
		}
	}
	a.Period = sim.Summarize(d)
	return a, nil
}

// WriteText writes a human readable summary of a.
func (a Analysis) WriteText(w io.Writer) error {
	p := a.Period
	fmt.Fprintf(w, "ticks:    %d\n", a.Edges)
	fmt.Fprintf(w, "period:   mean=%v stddev=%v min=%v max=%v\n", seconds(p.Mean), seconds(p.StdDev), seconds(p.Min), seconds(p.Max))
	fmt.Fprintf(w, "expected: %v ±%.1f%%\n", seconds(a.Expected), a.Tolerance*100)
	fmt.Fprintf(w, "worst:    %.2f%% at t=%f\n", a.WorstError*100, a.WorstAt)
	_, err := fmt.Fprintf(w, "outliers: %d  missed: %d  pass: %v\n", a.Outliers, a.Missed, a.Pass)
	return err
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func writeTimings(filename string, ticks []float64) error {
	fp, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer fp.Close()
	for i := 1; i < len(ticks); i++ {
		_, err = fmt.Fprintf(fp, "t=%f\tdt=%v\n", ticks[i], seconds(ticks[i]-ticks[i-1]))
		if err != nil {
			return err
		}
	}
	return nil
}
