package submsrvc

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/jonboulle/clockwork"
	"github.com/programme-lv/evalboard/conf"
	"github.com/programme-lv/evalboard/evalqueue"
	"github.com/programme-lv/evalboard/ratelimit"
	"github.com/programme-lv/evalboard/registry"
	"github.com/programme-lv/evalboard/srvcerror"
)

type Registry interface {
	ModelInfo(ctx context.Context, modelID string, revision string) (*registry.ModelInfo, error)
	ModelCard(ctx context.Context, modelID string, revision string) (*registry.ModelCard, error)
	TokenizerConfig(ctx context.Context, modelID string, revision string) (map[string]any, error)
	AdapterParams(ctx context.Context, modelID string, revision string) (int64, error)
}

type QueueSnapshots interface {
	GetSnapshot(ctx context.Context) (*evalqueue.Snapshot, error)
}

// Validator runs the submission checks in order and stops at the first
// failing one. It never writes anything.
type Validator struct {
	registry Registry
	queue    QueueSnapshots
	policy   conf.Policy
	clock    clockwork.Clock
	logger   *slog.Logger
}

func NewValidator(reg Registry, queue QueueSnapshots, policy conf.Policy, clock clockwork.Clock) *Validator {
	return &Validator{
		registry: reg,
		queue:    queue,
		policy:   policy,
		clock:    clock,
		logger:   slog.Default().With("module", "subm-validator"),
	}
}

func (v *Validator) Validate(ctx context.Context, req Request) (*ValidatedSubmission, error) {
	if err := checkRequiredFields(req); err != nil {
		return nil, err
	}

	snap, err := v.queue.GetSnapshot(ctx)
	if err != nil {
		return nil, ErrQueueUnavailable().SetDebug(err)
	}

	decision := ratelimit.Check(snap.SubmitterHistory(req.Submitter), v.clock.Now(), req.Submitter, v.policy.RateLimit())
	if !decision.Allowed {
		return nil, ErrRateLimited(decision.Message)
	}

	if v.policy.IsForbidden(req.ModelID) {
		return nil, ErrForbiddenModel(req.ModelID)
	}
	if req.BaseModel != "" && v.policy.IsForbidden(req.BaseModel) {
		return nil, ErrForbiddenModel(req.BaseModel)
	}

	info, err := v.registry.ModelInfo(ctx, req.ModelID, req.Revision)
	if err != nil {
		return nil, registryError(err, req.ModelID)
	}
	if req.WeightType == WeightTypeAdapter && !info.IsAdapter() {
		return nil, ErrAdapterNotFound(req.ModelID)
	}
	var baseInfo *registry.ModelInfo
	if req.WeightType != WeightTypeOriginal {
		baseInfo, err = v.registry.ModelInfo(ctx, req.BaseModel, "main")
		if err != nil {
			return nil, registryError(err, req.BaseModel)
		}
	}
	revision := info.SHA
	logger := v.logger.With("model", req.ModelID, "revision", revision)
	logger.Info("resolved model revision", "requested", req.Revision)

	if e, found := snap.Find(req.ModelID, revision); found {
		return nil, ErrDuplicateSubmission(req.ModelID, revision, string(e.Status))
	}

	license, err := v.checkModelCard(ctx, req.ModelID, revision)
	if err != nil {
		return nil, err
	}

	size, err := v.modelSize(ctx, req, info, baseInfo)
	if err != nil {
		return nil, err
	}
	if v.policy.IsSizeLimited(req.Precision) && size > v.policy.MaxParamsBillions {
		return nil, ErrModelTooLarge(req.Precision, size, v.policy.MaxParamsBillions)
	}

	if *req.UseChatTemplate {
		if err := v.checkChatTemplate(ctx, req.ModelID, revision); err != nil {
			return nil, err
		}
	}

	logger.Info("submission passed validation", "params_b", size, "license", license)
	return &ValidatedSubmission{
		Request:        req,
		Identity:       NewIdentity(req.ModelID, revision, req.Precision, req.WeightType),
		ParamsBillions: size,
		Architectures:  info.Config.Architectures,
		License:        license,
	}, nil
}

func checkRequiredFields(req Request) error {
	required := []struct {
		name  string
		value string
	}{
		{"model_id", req.ModelID},
		{"revision", req.Revision},
		{"precision", req.Precision},
		{"weight_type", req.WeightType},
		{"model_type", req.ModelType},
		{"submitter", req.Submitter},
	}
	for _, f := range required {
		if f.value == "" {
			return ErrMissingField(f.name)
		}
	}
	if req.UseChatTemplate == nil {
		return ErrMissingField("use_chat_template")
	}
	if !slices.Contains(precisions, req.Precision) {
		return ErrInvalidPrecision(req.Precision)
	}
	if !slices.Contains(weightTypes, req.WeightType) {
		return ErrInvalidWeightType(req.WeightType)
	}
	if req.WeightType != WeightTypeOriginal && req.BaseModel == "" {
		return ErrMissingField("base_model")
	}
	return nil
}

func registryError(err error, modelID string) *srvcerror.Error {
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return ErrNotOnRegistry(modelID).SetDebug(err)
	case errors.Is(err, registry.ErrGated):
		return ErrGatedModel(modelID).SetDebug(err)
	case errors.Is(err, registry.ErrNeedsRemoteCode):
		return ErrNeedsRemoteCode(modelID).SetDebug(err)
	case errors.Is(err, registry.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ErrRegistryUnavailable().SetDebug(err)
	}
	return ErrNotOnRegistry(modelID).SetDebug(err)
}

// checkModelCard requires a license and a description. It returns the license.
func (v *Validator) checkModelCard(ctx context.Context, modelID, revision string) (string, error) {
	card, err := v.registry.ModelCard(ctx, modelID, revision)
	if errors.Is(err, registry.ErrNotFound) {
		return "", ErrMissingModelCard()
	}
	if err != nil {
		return "", registryError(err, modelID)
	}
	license, ok := card.License()
	if !ok {
		return "", ErrMissingLicense()
	}
	if card.TextLength() < v.policy.MinCardLength {
		return "", ErrModelCardTooShort(v.policy.MinCardLength)
	}
	return license, nil
}

// modelSize returns the size in billions of parameters. Adapters count
// together with their base model.
func (v *Validator) modelSize(ctx context.Context, req Request, info, baseInfo *registry.ModelInfo) (float64, error) {
	var params float64
	if req.WeightType == WeightTypeAdapter {
		adapterParams, err := v.registry.AdapterParams(ctx, req.ModelID, info.SHA)
		if err != nil && !errors.Is(err, registry.ErrNotFound) {
			return 0, registryError(err, req.ModelID)
		}
		baseParams := baseInfo.TotalParams()
		if adapterParams == 0 || baseParams == 0 {
			return 0, ErrUnknownModelSize(req.ModelID)
		}
		params = float64(adapterParams+baseParams) / 1e9
	} else {
		params = float64(info.TotalParams()) / 1e9
		if params == 0 {
			params = paramsFromName(req.ModelID)
		}
	}
	if params == 0 {
		return 0, ErrUnknownModelSize(req.ModelID)
	}
	return sizeInBillions(params, req.ModelID, req.Precision), nil
}

func (v *Validator) checkChatTemplate(ctx context.Context, modelID, revision string) error {
	cfg, err := v.registry.TokenizerConfig(ctx, modelID, revision)
	if errors.Is(err, registry.ErrNotFound) {
		return ErrMissingChatTemplate(modelID)
	}
	if err != nil {
		return registryError(err, modelID)
	}
	if _, ok := cfg["chat_template"]; !ok {
		return ErrMissingChatTemplate(modelID)
	}
	return nil
}
