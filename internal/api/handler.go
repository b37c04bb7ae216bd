package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"venue-billing-backend/internal/billing"
	"venue-billing-backend/internal/session"
	"venue-billing-backend/internal/store"
)

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	sessions *session.Service
	webpush  *webpush.Options
	location *time.Location
}

// NewHandler creates a new API handler. loc is the venue's local time zone used to
// read dates in query strings.
func NewHandler(s store.Store, sessions *session.Service, webpushOptions *webpush.Options, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{
		store:    s,
		sessions: sessions,
		webpush:  webpushOptions,
		location: loc,
	}
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, billing.ErrMemberNotFound):
		return http.StatusNotFound
	case errors.Is(err, billing.ErrConflict),
		errors.Is(err, billing.ErrMemberBusyElsewhere),
		errors.Is(err, billing.ErrResourceUnavailable),
		errors.Is(err, billing.ErrDuplicateMember),
		errors.Is(err, billing.ErrAlreadyClosed):
		return http.StatusConflict
	case errors.Is(err, billing.ErrInsufficientStock),
		errors.Is(err, billing.ErrPromocodeInvalid),
		errors.Is(err, billing.ErrOrderLineNotFound):
		return http.StatusUnprocessableEntity
	case errors.Is(err, billing.ErrEmptyMembers),
		errors.Is(err, billing.ErrEmptyResources),
		errors.Is(err, billing.ErrMultipleResources),
		errors.Is(err, billing.ErrUnknownModel),
		errors.Is(err, billing.ErrUnknownKind),
		errors.Is(err, billing.ErrInvalidQuantity),
		errors.Is(err, billing.ErrInvalidInterval),
		errors.Is(err, session.ErrMemberIDRequired):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}
