package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/programme-lv/evalboard/auth"
	"github.com/programme-lv/evalboard/httpjson"
	"github.com/programme-lv/evalboard/logger"
	"github.com/programme-lv/evalboard/submsrvc"
)

func (httpserver *HttpServer) submitModel(w http.ResponseWriter, r *http.Request) {
	type submitModelRequest struct {
		ModelID         string `json:"model_id"`
		BaseModel       string `json:"base_model"`
		Revision        string `json:"revision"`
		Precision       string `json:"precision"`
		WeightType      string `json:"weight_type"`
		ModelType       string `json:"model_type"`
		UseChatTemplate *bool  `json:"use_chat_template"`
	}

	log := logger.FromContext(r.Context())

	claims := auth.ClaimsFromContext(r.Context())
	if claims == nil {
		httpjson.HandleError(log, w, auth.ErrJwtTokenMissing())
		return
	}

	var request submitModelRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		httpjson.HandleError(log, w, ErrInvalidRequestBody().SetDebug(err))
		return
	}
	if request.Revision == "" {
		request.Revision = "main"
	}
	if request.WeightType == "" {
		request.WeightType = submsrvc.WeightTypeOriginal
	}

	record, err := httpserver.submSrvc.Submit(r.Context(), submsrvc.Request{
		ModelID:         request.ModelID,
		BaseModel:       request.BaseModel,
		Revision:        request.Revision,
		Precision:       request.Precision,
		WeightType:      request.WeightType,
		ModelType:       request.ModelType,
		UseChatTemplate: request.UseChatTemplate,
		Submitter:       claims.Username,
	})
	if err != nil {
		httpjson.HandleError(log, w, err)
		return
	}

	httpjson.WriteSuccessJson(w, SubmissionResult{
		Status:    "success",
		Message:   fmt.Sprintf("Model %s was added to the evaluation queue", record.Model),
		Model:     record.Model,
		Revision:  record.Revision,
		Precision: record.Precision,
	})
}

func (httpserver *HttpServer) getModelsStatus(w http.ResponseWriter, r *http.Request) {
	snap, err := httpserver.submSrvc.Queue(r.Context())
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}

	now := httpserver.now()
	httpjson.WriteSuccessJson(w, QueueView{
		Pending:    mapQueueEntries(snap.Pending, now),
		Evaluating: mapQueueEntries(snap.Evaluating, now),
		Finished:   mapQueueEntries(snap.Finished, now),
	})
}

func (httpserver *HttpServer) getPendingModels(w http.ResponseWriter, r *http.Request) {
	snap, err := httpserver.submSrvc.Queue(r.Context())
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}

	httpjson.WriteSuccessJson(w, mapQueueEntries(snap.Pending, httpserver.now()))
}

func (httpserver *HttpServer) getModelStatus(w http.ResponseWriter, r *http.Request) {
	modelID := chi.URLParam(r, "org") + "/" + chi.URLParam(r, "model")

	status, err := httpserver.submSrvc.Status(r.Context(), modelID)
	if err != nil {
		httpjson.HandleError(logger.FromContext(r.Context()), w, err)
		return
	}

	httpjson.WriteSuccessJson(w, status)
}
