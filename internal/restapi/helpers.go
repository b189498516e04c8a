package restapi

import (
	"net/http"

	"github.com/Rorqualx/browserctl/internal/coretypes"
	"github.com/Rorqualx/browserctl/internal/errenvelope"
)

func withRequestID(env *coretypes.ErrorEnvelope, r *http.Request) *coretypes.ErrorEnvelope {
	if env.RequestID == "" {
		env.RequestID = requestIDFrom(r)
	}
	return env
}

func badRequest(msg string) *coretypes.ErrorEnvelope {
	return errenvelope.New(errenvelope.CodeValidationFailed, coretypes.CategoryValidation, 400).
		WithUserMessage(msg).Build()
}
