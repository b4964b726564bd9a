package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/growthforge/forge/internal/models"
	"github.com/growthforge/forge/internal/store"
)

// Pre-marshaled fallback response used when encoding fails.
var fallbackErrorResponse []byte

func init() {
	var err error
	fallbackErrorResponse, err = json.Marshal(models.Error("Internal server error"))
	if err != nil {
		panic(fmt.Sprintf("Failed to marshal fallback error response at startup: %v", err))
	}
}

// writeJSONResponse writes a JSON response to the http.ResponseWriter with the given status code.
func writeJSONResponse(w http.ResponseWriter, statusCode int, response interface{}) {
	// Marshal first so an encoding failure can still change the status.
	jsonData, err := json.Marshal(response)
	if err != nil {
		slog.Error("Server.writeJSONResponse: failed to marshal JSON response", "error", err)
		jsonData = fallbackErrorResponse
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, writeErr := w.Write(jsonData); writeErr != nil {
		slog.Error("Server.writeJSONResponse: failed to write JSON response", "error", writeErr)
	}
}

// decodeJSON decodes a bounded request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

// writeStoreError maps a store or pipeline failure onto a status code.
func writeStoreError(w http.ResponseWriter, op string, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeJSONResponse(w, http.StatusNotFound, models.Error(notFound))
		return
	}
	slog.Error("Server."+op+": store failure", "error", err)
	writeJSONResponse(w, http.StatusInternalServerError, models.Error("Internal server error"))
}
