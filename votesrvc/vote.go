package votesrvc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

type VoteType string

const (
	VoteUp   VoteType = "up"
	VoteDown VoteType = "down"
)

const timestampLayout = "2006-01-02T15:04:05Z"

// Vote is one line of the ledger.
type Vote struct {
	Model     string   `json:"model"`
	Revision  string   `json:"revision"`
	Username  string   `json:"username"`
	Timestamp string   `json:"timestamp"`
	VoteType  VoteType `json:"vote_type"`
}

type voteKey struct {
	model    string
	revision string
	username string
}

func (v Vote) key() voteKey {
	return voteKey{model: v.Model, revision: v.Revision, username: v.Username}
}

type VoteStats struct {
	TotalVotes      int            `json:"total_votes"`
	VotesByRevision map[string]int `json:"votes_by_revision"`
	Votes           []Vote         `json:"votes"`
}

func normalizeTimestamp(s string) (string, error) {
	for _, layout := range []string{timestampLayout, time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC().Format(timestampLayout), nil
		}
	}
	return "", fmt.Errorf("invalid vote timestamp %q", s)
}

func parseVote(line []byte) (Vote, error) {
	var v Vote
	if err := json.Unmarshal(line, &v); err != nil {
		return Vote{}, fmt.Errorf("failed to decode vote: %w", err)
	}
	if v.Model == "" || v.Revision == "" || v.Username == "" {
		return Vote{}, fmt.Errorf("vote is missing model, revision or username")
	}
	ts, err := normalizeTimestamp(v.Timestamp)
	if err != nil {
		return Vote{}, err
	}
	v.Timestamp = ts
	return v, nil
}

// parseVotes decodes a line-delimited log. Malformed lines are skipped
// and reported through skipped.
func parseVotes(content []byte) (votes []Vote, skipped int) {
	sc := bufio.NewScanner(bytes.NewReader(content))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		v, err := parseVote(line)
		if err != nil {
			skipped++
			continue
		}
		votes = append(votes, v)
	}
	return votes, skipped
}

func marshalLine(v Vote) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal vote: %w", err)
	}
	return append(b, '\n'), nil
}
