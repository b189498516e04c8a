package restapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
	"github.com/Rorqualx/browserctl/pkg/version"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	buf := getBuffer()
	defer putBuffer(buf)

	if err := json.NewEncoder(buf).Encode(body); err != nil {
		log.Error().Err(err).Msg("failed to encode response body")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

// writeError projects an ErrorEnvelope onto the REST wire shape,
// attaches the security headers every error response carries, and
// writes it.
func writeError(w http.ResponseWriter, r *http.Request, start time.Time, env *coretypes.ErrorEnvelope) {
	status, body := errenvelope.ToREST(env, version.Full(), r.URL.Path, r.Method, time.Since(start))
	for k, v := range errenvelope.RESTSecurityHeaders {
		w.Header().Set(k, v)
	}
	writeJSON(w, status, body)
}

func writeUnexpected(w http.ResponseWriter, r *http.Request, start time.Time, err error) {
	writeError(w, r, start, errenvelope.FromError(err))
}
