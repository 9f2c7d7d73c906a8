package shell

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shellrt/shellrt/system"
)

// Job is a pipeline tracked for job-control purposes (§3). ExpectedState is
// nil unless a built-in like bg/fg has already reported a transition to the
// user, in which case the next status poll that matches it is suppressed.
type Job struct {
	PID           system.ProcessID
	JobControlled bool
	Owned         bool
	State         system.ProcessState
	ExpectedState *system.ProcessState
	StateChanged  bool
	Name          string
}

// JobView is a read-only snapshot of a Job plus its list index, the shape
// `jobs` formats (§4.5.9 "supplemented").
type JobView struct {
	Index int
	Job   Job
}

// JobList is the ordered index→Job map plus the current/previous job
// selectors (§3). Indices are dense non-negative and stable once assigned;
// removing a job does not renumber the rest.
type JobList struct {
	jobs    map[int]*Job
	next    int
	recency []int // most-recent event (background or re-stop) first
}

// NewJobList returns an empty job list.
func NewJobList() *JobList {
	return &JobList{jobs: make(map[int]*Job)}
}

// Add inserts job as a new entry and makes it the current job (it was just
// started/backgrounded, the most recent event by definition).
func (l *JobList) Add(job Job) int {
	idx := l.next
	l.next++
	j := job
	l.jobs[idx] = &j
	l.recency = append([]int{idx}, l.recency...)
	return idx
}

// Get returns the job at idx.
func (l *JobList) Get(idx int) (*Job, bool) {
	j, ok := l.jobs[idx]
	return j, ok
}

// Remove deletes the job at idx from the list (and the recency ordering).
func (l *JobList) Remove(idx int) {
	delete(l.jobs, idx)
	for i, r := range l.recency {
		if r == idx {
			l.recency = append(l.recency[:i], l.recency[i+1:]...)
			break
		}
	}
}

// Touch promotes idx to the front of the recency ordering, making it the
// current job. Used both when a job is freshly stopped and when bg
// re-backgrounds an already-listed job (both are "most recent event").
func (l *JobList) Touch(idx int) {
	for i, r := range l.recency {
		if r == idx {
			l.recency = append(l.recency[:i], l.recency[i+1:]...)
			break
		}
	}
	l.recency = append([]int{idx}, l.recency...)
}

// MarkStopped records that job idx just transitioned to Stopped, promoting
// it to current (the "most recently stopped" rule).
func (l *JobList) MarkStopped(idx int) { l.Touch(idx) }

// Current returns the current job ("%%"/"%+"): the job whose latest event
// (being added, being touched by bg, or stopping again in the foreground)
// is the most recent. A stopped job takes no precedence over a job added
// or touched after it.
func (l *JobList) Current() (int, bool) {
	if len(l.recency) == 0 {
		return 0, false
	}
	return l.recency[0], true
}

// Previous returns the previous job ("%-").
func (l *JobList) Previous() (int, bool) {
	if len(l.recency) < 2 {
		return 0, false
	}
	return l.recency[1], true
}

// Number renders idx as the 1-based job number shown to the user (`[1]`,
// `%1`, ...); the job list's own indices stay dense and 0-based internally.
func (l *JobList) Number(idx int) int { return idx + 1 }

// Snapshot returns every job in insertion order, for `jobs` formatting.
func (l *JobList) Snapshot() []JobView {
	out := make([]JobView, 0, len(l.jobs))
	for idx := 0; idx < l.next; idx++ {
		if j, ok := l.jobs[idx]; ok {
			out = append(out, JobView{Index: idx, Job: *j})
		}
	}
	return out
}

var (
	ErrJobSpecInvalid = errors.New("shell: invalid job specifier")
	ErrJobNotFound    = errors.New("shell: no such job")
	ErrJobAmbiguous   = errors.New("shell: ambiguous job specifier")
)

// Resolve maps a job specifier (`%n`, `%%`, `%+`, `%-`, `%?text`,
// `%string`, or a bare digit string) to a job-list index (§4.5.3/§6).
func (l *JobList) Resolve(spec string) (int, error) {
	s := strings.TrimPrefix(spec, "%")
	switch {
	case s == "" || s == "%" || s == "+":
		idx, ok := l.Current()
		if !ok {
			return 0, ErrJobNotFound
		}
		return idx, nil
	case s == "-":
		idx, ok := l.Previous()
		if !ok {
			return 0, ErrJobNotFound
		}
		return idx, nil
	case isAllDigits(s):
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, ErrJobSpecInvalid
		}
		idx := n - 1
		if _, ok := l.jobs[idx]; !ok {
			return 0, ErrJobNotFound
		}
		return idx, nil
	case strings.HasPrefix(s, "?"):
		return l.resolveByPredicate(func(name string) bool {
			return strings.Contains(name, s[1:])
		})
	default:
		return l.resolveByPredicate(func(name string) bool {
			return strings.HasPrefix(name, s)
		})
	}
}

func (l *JobList) resolveByPredicate(match func(name string) bool) (int, error) {
	found := -1
	for idx := 0; idx < l.next; idx++ {
		j, ok := l.jobs[idx]
		if !ok || !match(j.Name) {
			continue
		}
		if found != -1 {
			return 0, fmt.Errorf("%w: %q", ErrJobAmbiguous, j.Name)
		}
		found = idx
	}
	if found == -1 {
		return 0, ErrJobNotFound
	}
	return found, nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
