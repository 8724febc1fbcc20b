// Package httpapi exposes EventGate's HTTP surface: POST /v1/events and the
// supporting metadata endpoints, per spec §6. Grounded on the teacher's
// internal/httputils response-writing idiom, with the fragile
// hasWrittenHeaders heuristic its own comments flagged replaced by an
// explicit ResponseWriter wrapper that tracks whether it has written.
package httpapi

// file: internal/httpapi/response.go

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/dkoosis/cowgnition/internal/logging"
)

var logger = logging.GetLogger("httpapi")

// trackingWriter wraps http.ResponseWriter to record whether headers have
// already been written, replacing the teacher's fmt.Sprintf-on-the-writer
// heuristic with an explicit, reliable flag.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
	status      int
}

func (w *trackingWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.wroteHeader = true
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

// writeJSON marshals data and writes it with the given status code. If data
// is nil, only the status line is written (used for 204).
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	tw, ok := w.(*trackingWriter)
	if !ok {
		tw = &trackingWriter{ResponseWriter: w}
	}
	if data == nil {
		tw.WriteHeader(status)
		return
	}

	tw.Header().Set("Content-Type", "application/json")
	tw.WriteHeader(status)
	if err := json.NewEncoder(tw).Encode(data); err != nil {
		logger.Error("Failed to encode JSON response.", "error", fmt.Sprintf("%+v", err))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{"message": message})
}
