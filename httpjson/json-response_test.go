package httpjson_test

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/programme-lv/evalboard/httpjson"
	"github.com/programme-lv/evalboard/srvcerror"
	"github.com/stretchr/testify/require"
)

func TestHandleError(t *testing.T) {
	w := httptest.NewRecorder()
	httpjson.HandleError(slog.Default(), w, srvcerror.Validation("rate_limited", "slow down").SetHttpStatusCode(http.StatusTooManyRequests))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	var resp httpjson.JsonResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Equal(t, "error", resp.Status)
	require.Equal(t, "rate_limited", resp.ErrCode)
	require.Equal(t, "slow down", resp.ErrMsg)

	w = httptest.NewRecorder()
	httpjson.HandleError(slog.Default(), w, errors.New("secret detail"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "secret detail")
}
