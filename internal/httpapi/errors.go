package httpapi

import (
	"errors"
	"net/http"

	"auditchain/internal/anchoring"

	"github.com/gin-gonic/gin"
)

// statusFor maps a workflow error to its HTTP status.
//
//	InputInvalid      -> 400
//	StoreUnreachable  -> 503
//	StoreRejected     -> 502
//	LedgerUnavailable -> 502
func statusFor(err error) int {
	switch anchoring.KindOf(err) {
	case anchoring.KindInputInvalid:
		return http.StatusBadRequest
	case anchoring.KindStoreUnreachable:
		return http.StatusServiceUnavailable
	case anchoring.KindStoreRejected, anchoring.KindLedgerUnavailable:
		return http.StatusBadGateway
	}
	switch {
	case errors.Is(err, anchoring.ErrAttemptNotFound), errors.Is(err, anchoring.ErrJournalDisabled):
		return http.StatusNotFound
	case errors.Is(err, anchoring.ErrAlreadySubmitted), errors.Is(err, anchoring.ErrAttemptInFlight):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// errorBody renders {"error", "details"}. error is the workflow kind when
// there is one so clients can branch on it.
func errorBody(err error) gin.H {
	var werr *anchoring.Error
	if errors.As(err, &werr) {
		details := werr.Diagnostic
		if details == "" {
			details = werr.Error()
		}
		return gin.H{"error": string(werr.Kind), "details": details}
	}
	switch {
	case errors.Is(err, anchoring.ErrAttemptNotFound), errors.Is(err, anchoring.ErrJournalDisabled):
		return gin.H{"error": "NotFound", "details": err.Error()}
	case errors.Is(err, anchoring.ErrAlreadySubmitted), errors.Is(err, anchoring.ErrAttemptInFlight):
		return gin.H{"error": "Conflict", "details": err.Error()}
	}
	return gin.H{"error": "InternalError", "details": "unexpected server error"}
}

func abortWithError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.AbortWithStatusJSON(statusFor(err), errorBody(err))
}
