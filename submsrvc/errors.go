package submsrvc

import (
	"fmt"
	"net/http"

	"github.com/programme-lv/evalboard/srvcerror"
)

const ErrCodeMissingField = "missing_field"

func ErrMissingField(field string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeMissingField,
		fmt.Sprintf("Missing required field: %s", field),
	)
}

const ErrCodeInvalidPrecision = "invalid_precision"

func ErrInvalidPrecision(precision string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeInvalidPrecision,
		fmt.Sprintf("Unsupported precision %q, expected one of %v", precision, precisions),
	)
}

const ErrCodeInvalidWeightType = "invalid_weight_type"

func ErrInvalidWeightType(weightType string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeInvalidWeightType,
		fmt.Sprintf("Unsupported weight type %q, expected one of %v", weightType, weightTypes),
	)
}

const ErrCodeRateLimited = "rate_limited"

func ErrRateLimited(msg string) *srvcerror.Error {
	return srvcerror.Validation(ErrCodeRateLimited, msg).
		SetHttpStatusCode(http.StatusTooManyRequests)
}

const ErrCodeForbiddenModel = "forbidden_model"

func ErrForbiddenModel(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeForbiddenModel,
		fmt.Sprintf("Model %s cannot be submitted to the leaderboard", modelID),
	).SetHttpStatusCode(http.StatusForbidden)
}

const ErrCodeNotOnRegistry = "not_on_registry"

func ErrNotOnRegistry(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeNotOnRegistry,
		fmt.Sprintf("Model %s was not found or is misconfigured on the registry", modelID),
	)
}

func ErrAdapterNotFound(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeNotOnRegistry,
		fmt.Sprintf("Model %s is submitted as an adapter but has no adapter_config.json", modelID),
	)
}

const ErrCodeGatedModel = "gated_model"

func ErrGatedModel(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeGatedModel,
		fmt.Sprintf("Model %s is gated and the leaderboard has no access to it", modelID),
	)
}

const ErrCodeNeedsRemoteCode = "needs_remote_code"

func ErrNeedsRemoteCode(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeNeedsRemoteCode,
		fmt.Sprintf("Model %s requires executing code from its repository, such models are not accepted automatically", modelID),
	)
}

const ErrCodeDuplicateSubmission = "duplicate_submission"

func ErrDuplicateSubmission(modelID, revision, status string) *srvcerror.Error {
	return srvcerror.Consistency(
		ErrCodeDuplicateSubmission,
		fmt.Sprintf("Model %s revision %s is already in the system with status: %s", modelID, revision, status),
	)
}

func ErrSubmissionInProgress(modelID, revision string) *srvcerror.Error {
	return srvcerror.Consistency(
		ErrCodeDuplicateSubmission,
		fmt.Sprintf("Model %s revision %s is already being submitted", modelID, revision),
	)
}

const ErrCodeMissingModelCard = "missing_model_card"

func ErrMissingModelCard() *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeMissingModelCard,
		"Please add a model card to your model to explain how you trained/fine-tuned it.",
	)
}

const ErrCodeModelCardTooShort = "model_card_too_short"

func ErrModelCardTooShort(minLength int) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeModelCardTooShort,
		fmt.Sprintf("Please add a description to your model card, it is too short (minimum %d characters).", minLength),
	)
}

const ErrCodeMissingLicense = "missing_license"

func ErrMissingLicense() *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeMissingLicense,
		"License not found. Please add a license to your model card using the `license` metadata or a `license_name`/`license_link` pair.",
	)
}

const ErrCodeUnknownModelSize = "unknown_model_size"

func ErrUnknownModelSize(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeUnknownModelSize,
		fmt.Sprintf("The size of model %s could not be determined, please upload safetensors weights", modelID),
	)
}

const ErrCodeModelTooLarge = "model_too_large"

func ErrModelTooLarge(precision string, sizeB float64, limitB float64) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeModelTooLarge,
		fmt.Sprintf("Model too large for %s (%.1fB parameters, limit: %.0fB)", precision, sizeB, limitB),
	)
}

const ErrCodeMissingChatTemplate = "missing_chat_template"

func ErrMissingChatTemplate(modelID string) *srvcerror.Error {
	return srvcerror.Validation(
		ErrCodeMissingChatTemplate,
		fmt.Sprintf("The model %s doesn't have a chat_template in its tokenizer_config.json. Please add a chat_template before submitting or submit without it.", modelID),
	)
}

const ErrCodeRegistryUnavailable = "registry_unavailable"

func ErrRegistryUnavailable() *srvcerror.Error {
	return srvcerror.Transient(
		ErrCodeRegistryUnavailable,
		"The model registry is not responding, please try again later",
	)
}

const ErrCodeQueueUnavailable = "queue_unavailable"

func ErrQueueUnavailable() *srvcerror.Error {
	return srvcerror.Transient(
		ErrCodeQueueUnavailable,
		"The evaluation queue is not available, please try again later",
	)
}

const ErrCodeStoreWrite = "submission_not_recorded"

func ErrStoreWrite() *srvcerror.Error {
	return srvcerror.Transient(
		ErrCodeStoreWrite,
		"The submission could not be recorded, please try again",
	)
}
