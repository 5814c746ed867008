package http

import (
	"time"

	"github.com/programme-lv/evalboard/evalqueue"
)

type SubmissionResult struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Model     string `json:"model"`
	Revision  string `json:"revision"`
	Precision string `json:"precision"`
}

type QueueEntry struct {
	Name          string `json:"name"`
	Submitter     string `json:"submitter"`
	Revision      string `json:"revision"`
	Precision     string `json:"precision"`
	WeightType    string `json:"weight_type"`
	SubmittedTime string `json:"submission_time"`
	WaitTime      string `json:"wait_time"`
	JobID         string `json:"job_id"`
	Status        string `json:"status"`
}

type QueueView struct {
	Pending    []QueueEntry `json:"pending"`
	Evaluating []QueueEntry `json:"evaluating"`
	Finished   []QueueEntry `json:"finished"`
}

func mapQueueEntries(entries []evalqueue.Entry, now time.Time) []QueueEntry {
	res := make([]QueueEntry, 0, len(entries))
	for _, e := range entries {
		res = append(res, QueueEntry{
			Name:          e.Name,
			Submitter:     e.Submitter,
			Revision:      e.Revision,
			Precision:     e.Precision,
			WeightType:    e.WeightType,
			SubmittedTime: e.SubmittedTime.UTC().Format(time.RFC3339),
			WaitTime:      formatWaitTime(e.WaitTime(now)),
			JobID:         e.JobID,
			Status:        string(e.Status),
		})
	}
	return res
}

func formatWaitTime(d time.Duration) string {
	return d.Truncate(time.Minute).String()
}
