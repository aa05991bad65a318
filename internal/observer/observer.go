package observer

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// BatchView is the latest known state of one batch's artifacts
type BatchView struct {
	Batch  int
	Name   string
	Log    *Artifact
	Result *Artifact
	State  string // last log trailer
}

// Observer folds artifact changes into a per-batch view
type Observer struct {
	names   map[int]string
	batches map[int]*BatchView
	mu      sync.RWMutex
}

// New creates an Observer. names maps 1-based batch numbers to batch names
// and may be nil.
func New(names map[int]string) *Observer {
	o := &Observer{names: names, batches: make(map[int]*BatchView)}
	for n := range names {
		o.view(n)
	}
	return o
}

func (o *Observer) view(n int) *BatchView {
	v, ok := o.batches[n]
	if !ok {
		v = &BatchView{Batch: n, Name: o.names[n]}
		o.batches[n] = v
	}
	return v
}

// Update records changed artifacts
func (o *Observer) Update(changed []Artifact) {
	o.mu.Lock()
	defer o.mu.Unlock()

	for _, a := range changed {
		a := a
		v := o.view(a.Batch)
		switch a.Kind {
		case KindLog:
			v.Log = &a
			v.State = LogState(a.Path)
		case KindResult:
			v.Result = &a
		}
	}
}

// Batches returns a snapshot ordered by batch number
func (o *Observer) Batches() []BatchView {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make([]BatchView, 0, len(o.batches))
	for _, v := range o.batches {
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Batch < out[j].Batch })
	return out
}

// Quiet returns batches still running whose log has not changed within
// threshold of now.
func (o *Observer) Quiet(threshold time.Duration, now time.Time) []int {
	var quiet []int
	for _, v := range o.Batches() {
		if v.Log == nil || !strings.HasPrefix(v.State, "STATUS: running") {
			continue
		}
		if now.Sub(v.Log.ModTime) > threshold {
			quiet = append(quiet, v.Batch)
		}
	}
	return quiet
}

// Lines renders one status line per batch
func (o *Observer) Lines(now time.Time) []string {
	views := o.Batches()
	lines := make([]string, 0, len(views))
	for _, v := range views {
		lines = append(lines, v.line(now))
	}
	return lines
}

// Line renders the status line of one batch, or "" if it is unknown
func (o *Observer) Line(batch int, now time.Time) string {
	o.mu.RLock()
	v, ok := o.batches[batch]
	var snapshot BatchView
	if ok {
		snapshot = *v
	}
	o.mu.RUnlock()
	if !ok {
		return ""
	}
	return snapshot.line(now)
}

func (v BatchView) line(now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "batch %d", v.Batch)
	if v.Name != "" {
		fmt.Fprintf(&b, " (%s)", v.Name)
	}
	if v.Log == nil {
		b.WriteString(": waiting")
		return b.String()
	}
	fmt.Fprintf(&b, ": log %s, updated %s", humanize.Bytes(uint64(v.Log.Size)), humanize.RelTime(v.Log.ModTime, now, "ago", "from now"))
	if v.Result != nil {
		fmt.Fprintf(&b, ", result %s", humanize.Bytes(uint64(v.Result.Size)))
	}
	if v.State != "" {
		fmt.Fprintf(&b, " [%s]", v.State)
	}
	return b.String()
}
