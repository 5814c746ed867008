package submsrvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/programme-lv/evalboard/jobqueue"
	"github.com/programme-lv/evalboard/logger"
	"github.com/programme-lv/evalboard/votesrvc"
)

const submittedTimeLayout = "2006-01-02T15:04:05Z"

// Submit validates a request and records it as a pending evaluation.
// Concurrent submits of the same identity yield at most one record.
// The automatic up-vote and the worker notification are best-effort.
func (s *SubmissionSrvc) Submit(ctx context.Context, req Request) (*SubmissionRecord, error) {
	log := logger.ForModule(ctx, s.logger, "subm").With(
		"model", req.ModelID,
		"submitter", req.Submitter)
	log.Info("received submission",
		"revision", req.Revision,
		"precision", req.Precision,
		"weight_type", req.WeightType)

	v, err := s.validator.Validate(ctx, req)
	if err != nil {
		log.Warn("submission rejected", "error", err)
		return nil, err
	}
	id := v.Identity
	key := id.Key()

	if err := s.claims.Claim(ctx, key); err != nil {
		if errors.Is(err, ErrClaimed) {
			return nil, ErrSubmissionInProgress(id.ModelID(), id.Revision)
		}
		return nil, ErrStoreWrite().SetDebug(err)
	}
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.claims.Release(context.WithoutCancel(ctx), key); err != nil {
			log.Error("failed to release submission claim", "key", key, "error", err)
		}
	}()

	path := id.StoragePath(s.prefix)
	if err := s.ensureNotRecorded(ctx, id, path); err != nil {
		return nil, err
	}

	record := s.buildRecord(v)
	content, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal submission record: %w", err)
	}
	if err := s.store.Upload(ctx, path, content, "application/json"); err != nil {
		log.Error("failed to upload submission record", "path", path, "error", err)
		return nil, ErrStoreWrite().SetDebug(err)
	}
	s.queue.Invalidate()
	committed = true
	if err := s.claims.Commit(context.WithoutCancel(ctx), key); err != nil {
		log.Error("failed to commit submission claim", "key", key, "error", err)
	}
	log.Info("submission recorded", "path", path, "revision", id.Revision, "params_b", record.Params)

	s.notifyWorkers(ctx, record, path)
	s.autoVote(ctx, record)
	return record, nil
}

// ensureNotRecorded repeats the duplicate check while holding the claim.
// The store is asked directly for every weight type of the identity, since
// the queue snapshot may be stale when its refresh fails.
func (s *SubmissionSrvc) ensureNotRecorded(ctx context.Context, id Identity, path string) error {
	paths := []string{path}
	for _, wt := range weightTypes {
		if wt == id.WeightType {
			continue
		}
		other := id
		other.WeightType = wt
		paths = append(paths, other.StoragePath(s.prefix))
	}
	for _, p := range paths {
		exists, err := s.store.Exists(ctx, p)
		if err != nil {
			return ErrStoreWrite().SetDebug(err)
		}
		if exists {
			return ErrDuplicateSubmission(id.ModelID(), id.Revision, "pending")
		}
	}
	snap, err := s.queue.GetSnapshot(ctx)
	if err != nil {
		return ErrQueueUnavailable().SetDebug(err)
	}
	if e, found := snap.Find(id.ModelID(), id.Revision); found {
		return ErrDuplicateSubmission(id.ModelID(), id.Revision, string(e.Status))
	}
	return nil
}

func (s *SubmissionSrvc) buildRecord(v *ValidatedSubmission) *SubmissionRecord {
	return &SubmissionRecord{
		Model:           v.Identity.ModelID(),
		BaseModel:       v.Request.BaseModel,
		Revision:        v.Identity.Revision,
		Precision:       v.Identity.Precision,
		Params:          v.ParamsBillions,
		Architectures:   strings.Join(v.Architectures, ";"),
		WeightType:      v.Identity.WeightType,
		Status:          StatusPending,
		SubmittedTime:   s.clock.Now().UTC().Format(submittedTimeLayout),
		ModelType:       v.Request.ModelType,
		JobID:           -1,
		JobStartTime:    nil,
		UseChatTemplate: *v.Request.UseChatTemplate,
		Sender:          v.Request.Submitter,
		License:         v.License,
	}
}

func (s *SubmissionSrvc) notifyWorkers(ctx context.Context, record *SubmissionRecord, path string) {
	jobUuid, err := uuid.NewV7()
	if err != nil {
		s.logger.Error("failed to generate job uuid", "error", err)
		return
	}
	err = s.jobs.Publish(ctx, jobqueue.JobNotification{
		JobID:         jobUuid.String(),
		Model:         record.Model,
		Revision:      record.Revision,
		Precision:     record.Precision,
		WeightType:    record.WeightType,
		RequestKey:    path,
		SubmittedTime: record.SubmittedTime,
	})
	if err != nil {
		s.logger.Error("failed to notify evaluation workers", "model", record.Model, "error", err)
	}
}

func (s *SubmissionSrvc) autoVote(ctx context.Context, record *SubmissionRecord) {
	if s.votes == nil {
		return
	}
	_, err := s.votes.AddVote(ctx, record.Model, record.Revision, record.Sender, votesrvc.VoteUp)
	if err != nil {
		s.logger.Error("failed to record automatic vote", "model", record.Model, "error", err)
		return
	}
	s.logger.Info("automatic vote recorded", "model", record.Model, "voter", record.Sender)
}
