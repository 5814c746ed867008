package submsrvc

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/evalqueue"
	"github.com/programme-lv/evalboard/jobqueue"
	"github.com/programme-lv/evalboard/remotestore"
	"github.com/programme-lv/evalboard/votesrvc"
)

// QueueCache is the part of the evaluation queue cache the service uses.
type QueueCache interface {
	QueueSnapshots
	Invalidate()
}

type Voter interface {
	AddVote(ctx context.Context, modelID string, revision string, voter string, voteType votesrvc.VoteType) (votesrvc.Vote, error)
}

type SubmissionSrvc struct {
	validator *Validator
	store     remotestore.Store
	prefix    string
	queue     QueueCache
	claims    Claims
	jobs      jobqueue.Publisher
	votes     Voter
	clock     clockwork.Clock
	logger    *slog.Logger
}

type Deps struct {
	Validator *Validator
	Store     remotestore.Store
	Prefix    string
	Queue     QueueCache
	Claims    Claims
	Jobs      jobqueue.Publisher
	Votes     Voter
	Clock     clockwork.Clock
}

func NewSubmissionSrvc(d Deps) *SubmissionSrvc {
	if d.Claims == nil {
		d.Claims = NewInMemClaims()
	}
	if d.Jobs == nil {
		d.Jobs = jobqueue.NopPublisher{}
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	return &SubmissionSrvc{
		validator: d.Validator,
		store:     d.Store,
		prefix:    d.Prefix,
		queue:     d.Queue,
		claims:    d.Claims,
		jobs:      d.Jobs,
		votes:     d.Votes,
		clock:     d.Clock,
		logger:    slog.Default().With("module", "subm"),
	}
}

// Queue returns the current evaluation queue for display.
func (s *SubmissionSrvc) Queue(ctx context.Context) (*evalqueue.Snapshot, error) {
	snap, err := s.queue.GetSnapshot(ctx)
	if err != nil {
		return nil, ErrQueueUnavailable().SetDebug(err)
	}
	return snap, nil
}

// Status reports the latest request of a model, or "not_found".
func (s *SubmissionSrvc) Status(ctx context.Context, modelID string) (*ModelStatus, error) {
	snap, err := s.queue.GetSnapshot(ctx)
	if err != nil {
		return nil, ErrQueueUnavailable().SetDebug(err)
	}
	e, found := snap.StatusOf(modelID)
	if !found {
		return &ModelStatus{Status: "not_found"}, nil
	}
	return &ModelStatus{
		Status:        string(e.Status),
		Revision:      e.Revision,
		SubmittedTime: e.SubmittedTime.Format(submittedTimeLayout),
		JobID:         e.JobID,
	}, nil
}
