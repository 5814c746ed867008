package submsrvc

import (
	"fmt"
	"strings"
)

type Request struct {
	ModelID         string `json:"model_id"`
	BaseModel       string `json:"base_model"`
	Revision        string `json:"revision"`
	Precision       string `json:"precision"`
	WeightType      string `json:"weight_type"`
	ModelType       string `json:"model_type"`
	UseChatTemplate *bool  `json:"use_chat_template"`

	Submitter string `json:"-"`
}

const (
	WeightTypeOriginal = "Original"
	WeightTypeDelta    = "Delta"
	WeightTypeAdapter  = "Adapter"
)

var (
	precisions  = []string{"float16", "bfloat16", "float32", "8bit", "4bit", "GPTQ"}
	weightTypes = []string{WeightTypeOriginal, WeightTypeDelta, WeightTypeAdapter}
)

// Identity is the structured identity of a submission request. The
// storage path is derived from it and never parsed back.
type Identity struct {
	Namespace  string
	Model      string
	Revision   string // resolved commit hash
	Precision  string
	WeightType string
}

func NewIdentity(modelID, revision, precision, weightType string) Identity {
	ns, model := "", modelID
	if i := strings.LastIndex(modelID, "/"); i >= 0 {
		ns, model = modelID[:i], modelID[i+1:]
	}
	return Identity{
		Namespace:  ns,
		Model:      model,
		Revision:   revision,
		Precision:  precision,
		WeightType: weightType,
	}
}

func (id Identity) ModelID() string {
	if id.Namespace == "" {
		return id.Model
	}
	return id.Namespace + "/" + id.Model
}

// Key is the dedup key: at most one request per model, revision and precision.
func (id Identity) Key() string {
	return fmt.Sprintf("%s@%s@%s", id.ModelID(), id.Revision, id.Precision)
}

func (id Identity) StoragePath(prefix string) string {
	name := fmt.Sprintf("%s_eval_request_%s_%s_%s.json", id.Model, id.Revision, id.Precision, id.WeightType)
	if id.Namespace == "" {
		return prefix + name
	}
	return prefix + id.Namespace + "/" + name
}

type ValidatedSubmission struct {
	Request        Request
	Identity       Identity
	ParamsBillions float64
	Architectures  []string
	License        string
}

const StatusPending = "PENDING"

// SubmissionRecord is the persisted request file read by the evaluation
// workers. Only the workers change its status after creation.
type SubmissionRecord struct {
	Model           string  `json:"model"`
	BaseModel       string  `json:"base_model"`
	Revision        string  `json:"revision"`
	Precision       string  `json:"precision"`
	Params          float64 `json:"params"`
	Architectures   string  `json:"architectures"`
	WeightType      string  `json:"weight_type"`
	Status          string  `json:"status"`
	SubmittedTime   string  `json:"submitted_time"`
	ModelType       string  `json:"model_type"`
	JobID           int     `json:"job_id"`
	JobStartTime    *string `json:"job_start_time"`
	UseChatTemplate bool    `json:"use_chat_template"`
	Sender          string  `json:"sender"`
	License         string  `json:"license"`
}

type ModelStatus struct {
	Status        string `json:"status"`
	Revision      string `json:"revision,omitempty"`
	SubmittedTime string `json:"submitted_time,omitempty"`
	JobID         string `json:"job_id,omitempty"`
}
