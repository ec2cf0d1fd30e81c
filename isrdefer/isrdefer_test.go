package isrdefer

import (
	"errors"
	"testing"

	"github.com/ametal-go/ametal"
	"github.com/ametal-go/ametal/jobq"
)

func TestUninitialized(t *testing.T) {
	var d Defer
	var j jobq.Job
	JobInit(&j, func(any) {}, nil, 0)
	if err := d.JobAdd(&j); err != ametal.ErrNotPermitted {
		t.Errorf("add before init: got %v, want ErrNotPermitted", err)
	}
	if err := d.JobProcess(); err != ametal.ErrNotPermitted {
		t.Errorf("process before init: got %v, want ErrNotPermitted", err)
	}
	if d.Pending() {
		t.Error("uninitialized defer reports pending work")
	}
}

func TestInitInvalid(t *testing.T) {
	var d Defer
	if err := d.Init(Config{Priorities: 0}); !errors.Is(err, ametal.ErrInvalid) {
		t.Errorf("zero priorities: got %v", err)
	}
	if err := d.JobAdd(&jobq.Job{}); err != ametal.ErrNotPermitted {
		t.Errorf("failed init must leave defer uninitialized, got %v", err)
	}
}

func TestNotifyOnEveryAdd(t *testing.T) {
	var d Defer
	notified := 0
	var gotArg any
	err := d.Init(Config{
		Priorities: 4,
		Notify: func(arg any) {
			notified++
			gotArg = arg
		},
		NotifyArg: "swi",
	})
	if err != nil {
		t.Fatal(err)
	}
	var order []int
	jobs := make([]jobq.Job, 3)
	for i := range jobs {
		JobInit(&jobs[i], func(arg any) { order = append(order, arg.(int)) }, i, uint(2-i))
		if err := d.JobAdd(&jobs[i]); err != nil {
			t.Fatal(err)
		}
	}
	if notified != 3 || gotArg != "swi" {
		t.Errorf("notified=%d arg=%v, want 3 swi", notified, gotArg)
	}
	if !d.Pending() {
		t.Error("expected pending work")
	}

	// A rejected add must not notify.
	if err := d.JobAdd(&jobs[0]); err != ametal.ErrBusy {
		t.Errorf("double add: got %v, want ErrBusy", err)
	}
	if err := d.JobAdd(nil); err != ametal.ErrInvalid {
		t.Errorf("nil job: got %v, want ErrInvalid", err)
	}
	if notified != 3 {
		t.Errorf("failed add notified, count=%d", notified)
	}

	if err := d.JobProcess(); err != nil {
		t.Fatal(err)
	}
	if len(order) != 3 || order[0] != 2 || order[1] != 1 || order[2] != 0 {
		t.Errorf("got order %v, want [2 1 0]", order)
	}
	if st := d.Stats(); st.Processed != 3 || st.Rejected != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestNilNotify(t *testing.T) {
	var d Defer
	if err := d.Init(Config{Priorities: 1}); err != nil {
		t.Fatal(err)
	}
	ran := false
	var j jobq.Job
	JobInit(&j, func(any) { ran = true }, nil, 9)
	if err := d.JobAdd(&j); err != nil {
		t.Fatal(err)
	}
	d.JobProcess()
	if !ran {
		t.Error("job did not run")
	}
}
