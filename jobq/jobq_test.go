package jobq

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/ametal-go/ametal"
)

func newQueue(t *testing.T, n int) *Queue {
	t.Helper()
	buckets, bitmap := NewStorage(n)
	q := new(Queue)
	if err := q.Init(Config{Priorities: n}, buckets, bitmap); err != nil {
		t.Fatal(err)
	}
	return q
}

// recorder appends the job's argument to order when run.
type recorder struct {
	order []string
}

func (r *recorder) fn(arg any) { r.order = append(r.order, arg.(string)) }

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// checkBitmaps verifies the group and job bitmaps agree with the buckets.
func checkBitmaps(t *testing.T, q *Queue) {
	t.Helper()
	for group := range q.jobBitmap {
		groupSet := q.groupBitmap&(1<<group) != 0
		if groupSet != (q.jobBitmap[group] != 0) {
			t.Fatalf("group %d bit=%v but job word=%#x", group, groupSet, q.jobBitmap[group])
		}
		for bit := 0; bit < 32; bit++ {
			prio := group*32 + bit
			set := q.jobBitmap[group]&(1<<bit) != 0
			if prio >= len(q.buckets) {
				if set {
					t.Fatalf("bit set for priority %d past the end", prio)
				}
				continue
			}
			if set == q.buckets[prio].Empty() {
				t.Fatalf("priority %d: bit=%v empty=%v", prio, set, q.buckets[prio].Empty())
			}
		}
	}
	for group := len(q.jobBitmap); group < 32; group++ {
		if q.groupBitmap&(1<<group) != 0 {
			t.Fatalf("group bit %d set beyond bitmap", group)
		}
	}
}

func TestInitErrors(t *testing.T) {
	var q Queue
	buckets, bitmap := NewStorage(40)
	var tests = []struct {
		name    string
		cfg     Config
		buckets []Bucket
		bitmap  []uint32
	}{
		{"nil buckets", Config{Priorities: 4}, nil, bitmap},
		{"nil bitmap", Config{Priorities: 4}, buckets, nil},
		{"zero priorities", Config{Priorities: 0}, buckets, bitmap},
		{"too many priorities", Config{Priorities: MaxPriorities + 1}, buckets, bitmap},
		{"short buckets", Config{Priorities: 41}, buckets, make([]uint32, 2)},
		{"short bitmap", Config{Priorities: 40}, buckets, bitmap[:1]},
	}
	for _, tt := range tests {
		err := q.Init(tt.cfg, tt.buckets, tt.bitmap)
		if !errors.Is(err, ametal.ErrInvalid) {
			t.Errorf("%s: got %v, want ErrInvalid", tt.name, err)
		}
	}
	var nilq *Queue
	if err := nilq.Init(Config{Priorities: 1}, buckets, bitmap); err != ametal.ErrInvalid {
		t.Errorf("nil queue: got %v", err)
	}
	if err := nilq.Post(&Job{}); err != ametal.ErrInvalid {
		t.Errorf("post on nil queue: got %v", err)
	}
	if err := nilq.Process(); err != ametal.ErrInvalid {
		t.Errorf("process on nil queue: got %v", err)
	}
	if err := q.Process(); err != ametal.ErrInvalid {
		t.Errorf("process on uninitialized queue: got %v", err)
	}
}

func TestPostInvalid(t *testing.T) {
	q := newQueue(t, 4)
	if err := q.Post(nil); err != ametal.ErrInvalid {
		t.Errorf("nil job: got %v", err)
	}
	var j Job
	j.Init(nil, nil, 0)
	if err := q.Post(&j); err != ametal.ErrInvalid {
		t.Errorf("nil func: got %v", err)
	}
}

func TestPriorityOrderScenario(t *testing.T) {
	q := newQueue(t, 4)
	var r recorder
	var a, b, c Job
	a.Init(r.fn, "A", 3)
	b.Init(r.fn, "B", 1)
	c.Init(r.fn, "C", 1)
	for _, j := range []*Job{&a, &b, &c} {
		if err := q.Post(j); err != nil {
			t.Fatal(err)
		}
	}
	if err := q.Process(); err != nil {
		t.Fatal(err)
	}
	if !equalStrings(r.order, []string{"B", "C", "A"}) {
		t.Errorf("got order %v, want [B C A]", r.order)
	}
	if !q.Empty() {
		t.Error("queue should be empty")
	}
	checkBitmaps(t, q)
}

func TestFIFOWithinPriority(t *testing.T) {
	q := newQueue(t, 64)
	var r recorder
	jobs := make([]Job, 20)
	var want []string
	for i := range jobs {
		name := string(rune('a' + i))
		jobs[i].Init(r.fn, name, 37)
		want = append(want, name)
		if err := q.Post(&jobs[i]); err != nil {
			t.Fatal(err)
		}
	}
	checkBitmaps(t, q)
	q.Process()
	if !equalStrings(r.order, want) {
		t.Errorf("got %v, want %v", r.order, want)
	}
}

func TestPriorityAcrossGroups(t *testing.T) {
	q := newQueue(t, MaxPriorities)
	var r recorder
	prios := []uint{1000, 5, 64, 31, 32, 0, 1023}
	jobs := make([]Job, len(prios))
	for i, p := range prios {
		jobs[i].Init(r.fn, string(rune('0'+i)), p)
		q.Post(&jobs[i])
	}
	checkBitmaps(t, q)
	q.Process()
	// Sorted by priority: 0(5) 5(1) 31(3) 32(4) 64(2) 1000(0) 1023(6)
	want := []string{"5", "1", "3", "4", "2", "0", "6"}
	if !equalStrings(r.order, want) {
		t.Errorf("got %v, want %v", r.order, want)
	}
}

func TestPriorityClamped(t *testing.T) {
	q := newQueue(t, 4)
	var r recorder
	var low, clamped Job
	low.Init(r.fn, "low", 3)
	clamped.Init(r.fn, "clamped", 200)
	q.Post(&low)
	if err := q.Post(&clamped); err != nil {
		t.Fatal(err)
	}
	if q.buckets[3].Len() != 2 {
		t.Fatalf("clamped job should share the lowest bucket, got %d", q.buckets[3].Len())
	}
	checkBitmaps(t, q)
	q.Process()
	if !equalStrings(r.order, []string{"low", "clamped"}) {
		t.Errorf("got %v", r.order)
	}
	if clamped.Priority() != 200 {
		t.Error("clamping must not rewrite the job's priority")
	}
}

func TestDoublePostRejected(t *testing.T) {
	q := newQueue(t, 8)
	calls := 0
	var j Job
	j.Init(func(any) { calls++ }, nil, 2)
	if err := q.Post(&j); err != nil {
		t.Fatal(err)
	}
	if !j.Pending() {
		t.Error("job should be pending after post")
	}
	if err := q.Post(&j); err != ametal.ErrBusy {
		t.Fatalf("second post: got %v, want ErrBusy", err)
	}
	if q.buckets[2].Len() != 1 {
		t.Fatal("job linked twice")
	}
	q.Process()
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
	if j.Pending() {
		t.Error("job still pending after process")
	}
	if st := q.Stats(); st.Posted != 1 || st.Processed != 1 || st.Rejected != 1 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestRepostFromCallback(t *testing.T) {
	q := newQueue(t, 8)
	runs := 0
	var j Job
	j.Init(func(arg any) {
		runs++
		self := arg.(*Job)
		if self.Pending() {
			t.Error("enqueued flag must be cleared before the callback")
		}
		if runs < 5 {
			if err := q.Post(self); err != nil {
				t.Errorf("repost: %v", err)
			}
		}
	}, &j, 4)
	q.Post(&j)
	if err := q.Process(); err != nil {
		t.Fatal(err)
	}
	if runs != 5 {
		t.Errorf("job ran %d times, want 5", runs)
	}
	if !q.Empty() {
		t.Error("queue not drained")
	}
	checkBitmaps(t, q)
}

func TestProcessNotReentrant(t *testing.T) {
	q := newQueue(t, 4)
	var inner error
	var j Job
	j.Init(func(any) { inner = q.Process() }, nil, 0)
	q.Post(&j)
	if err := q.Process(); err != nil {
		t.Fatal(err)
	}
	if inner != ametal.ErrBusy {
		t.Errorf("nested process: got %v, want ErrBusy", inner)
	}
	// The guard is released once the outer call returns.
	if err := q.Process(); err != nil {
		t.Errorf("process after drain: %v", err)
	}
}

func TestProcessAfterCallbackPanic(t *testing.T) {
	q := newQueue(t, 4)
	var r recorder
	var bad, next Job
	bad.Init(func(any) { panic("job failed") }, nil, 0)
	next.Init(r.fn, "next", 1)
	q.Post(&bad)
	q.Post(&next)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected the callback panic to propagate")
			}
		}()
		q.Process()
	}()
	if !next.Pending() {
		t.Fatal("job behind the panicking one should remain queued")
	}
	if err := q.Process(); err != nil {
		t.Fatalf("process after panic: %v", err)
	}
	if !equalStrings(r.order, []string{"next"}) {
		t.Errorf("got %v", r.order)
	}
	checkBitmaps(t, q)
}

func TestHigherPriorityPostedDuringRun(t *testing.T) {
	q := newQueue(t, 8)
	var r recorder
	var low, mid, high Job
	high.Init(r.fn, "high", 0)
	mid.Init(r.fn, "mid", 3)
	low.Init(func(arg any) {
		r.fn(arg)
		q.Post(&high)
	}, "low", 7)
	q.Post(&low)
	q.Post(&mid)
	q.Process()
	if !equalStrings(r.order, []string{"mid", "low", "high"}) {
		t.Errorf("got %v", r.order)
	}
}

func TestRandomizedBitmapConsistency(t *testing.T) {
	const n = 100
	q := newQueue(t, n)
	rng := rand.New(rand.NewSource(42))
	jobs := make([]Job, 300)
	ran := 0
	for i := range jobs {
		jobs[i].Init(func(any) { ran++ }, nil, uint(rng.Intn(n+20)))
	}
	posted := 0
	for round := 0; round < 200; round++ {
		for k := 0; k < rng.Intn(40); k++ {
			j := &jobs[rng.Intn(len(jobs))]
			wasPending := j.Pending()
			err := q.Post(j)
			switch {
			case wasPending && err != ametal.ErrBusy:
				t.Fatalf("pending job repost: got %v", err)
			case !wasPending && err != nil:
				t.Fatalf("post: %v", err)
			case err == nil:
				posted++
			}
			checkBitmaps(t, q)
		}
		if rng.Intn(3) == 0 {
			if err := q.Process(); err != nil {
				t.Fatal(err)
			}
			checkBitmaps(t, q)
			if !q.Empty() {
				t.Fatal("queue not empty after process")
			}
		}
	}
	q.Process()
	checkBitmaps(t, q)
	if ran != posted {
		t.Errorf("ran %d jobs, posted %d", ran, posted)
	}
}
