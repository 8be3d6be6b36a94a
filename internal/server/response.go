package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const contentTypeJSON = "application/json;charset=UTF-8"

// Envelope codes.
const (
	codeOK    = 0
	codeError = 1
)

// envelope is the body of every non-redirect response.
type envelope struct {
	Code    int    `json:"code"`
	Data    any    `json:"data"`
	Message string `json:"message"`
}

// emptyData is what "data" holds when there is no payload.
var emptyData = []any{}

// writeEnvelope writes env pretty-printed with a four-space indent. The
// HTTP status is always 200; failures are signalled by Code.
func writeEnvelope(w http.ResponseWriter, env envelope) {
	if env.Data == nil {
		env.Data = emptyData
	}

	if raw, ok := env.Data.(json.RawMessage); ok && len(raw) == 0 {
		env.Data = emptyData
	}

	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(http.StatusOK)

	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)

	if err := enc.Encode(env); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// WriteOK writes a success envelope carrying data.
func WriteOK(w http.ResponseWriter, data any) {
	writeEnvelope(w, envelope{Code: codeOK, Data: data, Message: "ok"})
}

// WriteError writes a failure envelope with err's message.
func WriteError(w http.ResponseWriter, err error) {
	writeEnvelope(w, envelope{Code: codeError, Message: err.Error()})
}
