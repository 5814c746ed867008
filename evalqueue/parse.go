package evalqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// errUnknownStatus marks files whose status this service does not display.
var errUnknownStatus = errors.New("unknown status")

type requestFile struct {
	Model         string          `json:"model"`
	Revision      string          `json:"revision"`
	Precision     string          `json:"precision"`
	WeightType    string          `json:"weight_type"`
	Status        string          `json:"status"`
	SubmittedTime string          `json:"submitted_time"`
	Sender        string          `json:"sender"`
	JobID         json.RawMessage `json:"job_id"`
}

func parseStatus(s string) (Status, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "PENDING":
		return StatusPending, true
	case "RUNNING", "EVALUATING":
		return StatusEvaluating, true
	case "FINISHED":
		return StatusFinished, true
	}
	return "", false
}

var timeLayouts = []string{
	"2006-01-02T15:04:05Z",
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
}

func parseSubmittedTime(s string) (time.Time, error) {
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid submitted_time %q", s)
}

func parseRequest(content []byte) (Entry, error) {
	var f requestFile
	if err := json.Unmarshal(content, &f); err != nil {
		return Entry{}, fmt.Errorf("failed to decode request: %w", err)
	}
	status, ok := parseStatus(f.Status)
	if !ok {
		return Entry{}, fmt.Errorf("%w %q", errUnknownStatus, f.Status)
	}
	if f.Model == "" || f.Revision == "" {
		return Entry{}, fmt.Errorf("request is missing model or revision")
	}
	submitted, err := parseSubmittedTime(f.SubmittedTime)
	if err != nil {
		return Entry{}, err
	}

	submitter := f.Sender
	if submitter == "" {
		submitter = "Unknown"
	}
	precision := f.Precision
	if precision == "" {
		precision = "Unknown"
	}

	return Entry{
		Name:          f.Model,
		Submitter:     submitter,
		Revision:      f.Revision,
		Precision:     precision,
		WeightType:    f.WeightType,
		SubmittedTime: submitted,
		JobID:         strings.Trim(string(f.JobID), `"`),
		Status:        status,
	}, nil
}
