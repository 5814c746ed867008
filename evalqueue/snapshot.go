package evalqueue

import (
	"slices"
	"strings"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusEvaluating Status = "evaluating"
	StatusFinished   Status = "finished"
)

// Entry is the display projection of one submission request.
type Entry struct {
	Name          string    `json:"name"`
	Submitter     string    `json:"submitter"`
	Revision      string    `json:"revision"`
	Precision     string    `json:"precision"`
	WeightType    string    `json:"weight_type"`
	SubmittedTime time.Time `json:"submission_time"`
	JobID         string    `json:"job_id"`
	Status        Status    `json:"status"`
}

// WaitTime is derived at read time so that snapshots stay comparable.
func (e Entry) WaitTime(now time.Time) time.Duration {
	if now.Before(e.SubmittedTime) {
		return 0
	}
	return now.Sub(e.SubmittedTime)
}

// Snapshot is an immutable view of every known submission request.
// Do not modify a published snapshot.
type Snapshot struct {
	Pending    []Entry `json:"pending"`
	Evaluating []Entry `json:"evaluating"`
	Finished   []Entry `json:"finished"`
}

func newSnapshot(entries []Entry) *Snapshot {
	s := &Snapshot{
		Pending:    []Entry{},
		Evaluating: []Entry{},
		Finished:   []Entry{},
	}
	for _, e := range entries {
		switch e.Status {
		case StatusPending:
			s.Pending = append(s.Pending, e)
		case StatusEvaluating:
			s.Evaluating = append(s.Evaluating, e)
		case StatusFinished:
			s.Finished = append(s.Finished, e)
		}
	}
	for _, l := range [][]Entry{s.Pending, s.Evaluating, s.Finished} {
		slices.SortFunc(l, compareEntries)
	}
	return s
}

func compareEntries(a, b Entry) int {
	if c := a.SubmittedTime.Compare(b.SubmittedTime); c != 0 {
		return c
	}
	if c := strings.Compare(a.Name, b.Name); c != 0 {
		return c
	}
	if c := strings.Compare(a.Revision, b.Revision); c != 0 {
		return c
	}
	return strings.Compare(a.Precision, b.Precision)
}

func (s *Snapshot) all() [][]Entry {
	return [][]Entry{s.Pending, s.Evaluating, s.Finished}
}

func (s *Snapshot) Len() int {
	return len(s.Pending) + len(s.Evaluating) + len(s.Finished)
}

// Find looks up a request by model and resolved revision in every status.
func (s *Snapshot) Find(modelID string, revision string) (Entry, bool) {
	for _, l := range s.all() {
		for _, e := range l {
			if e.Name == modelID && e.Revision == revision {
				return e, true
			}
		}
	}
	return Entry{}, false
}

// SubmitterHistory returns the submission times of a submitter, oldest first.
func (s *Snapshot) SubmitterHistory(submitter string) []time.Time {
	var res []time.Time
	for _, l := range s.all() {
		for _, e := range l {
			if e.Submitter == submitter {
				res = append(res, e.SubmittedTime)
			}
		}
	}
	slices.SortFunc(res, func(a, b time.Time) int { return a.Compare(b) })
	return res
}

// StatusOf returns the most recently submitted request of a model.
func (s *Snapshot) StatusOf(modelID string) (Entry, bool) {
	var latest Entry
	found := false
	for _, l := range s.all() {
		for _, e := range l {
			if e.Name != modelID {
				continue
			}
			if !found || compareEntries(latest, e) < 0 {
				latest = e
				found = true
			}
		}
	}
	return latest, found
}
