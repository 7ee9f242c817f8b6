package rest

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"antbox-backend/pkg/errors"
)

// errorEnvelope is the wire shape of every failure.
type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status := errors.HTTPStatusFor(err)
	body := errorBody{Code: errors.CodeUnknown, Message: err.Error()}
	if appErr := errors.GetAppError(err); appErr != nil {
		body.Code = appErr.Code
		body.Message = appErr.Message
		body.Details = appErr.Details
	}
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", zap.String("code", body.Code), zap.Error(err))
	}
	writeJSON(w, status, errorEnvelope{Error: body})
}

// decodeJSON reads a JSON request body into target, mapping malformed
// payloads to BadRequest.
func decodeJSON(r *http.Request, target interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return errors.NewBadRequestError("malformed JSON body: " + err.Error())
	}
	return nil
}
