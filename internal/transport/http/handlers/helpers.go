package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	archivesvc "github.com/ivankudzin/forummod/internal/services/archive"
	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	modsvc "github.com/ivankudzin/forummod/internal/services/moderation"
	httperrors "github.com/ivankudzin/forummod/internal/transport/http/errors"
)

func decodeJSON(r *http.Request, target any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(target)
}

func writeBadRequest(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusBadRequest, httperrors.APIError{Code: code, Message: message})
}

func writeUnauthorized(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusUnauthorized, httperrors.APIError{Code: code, Message: message})
}

func writeInternal(w http.ResponseWriter, code, message string) {
	httperrors.Write(w, http.StatusInternalServerError, httperrors.APIError{Code: code, Message: message})
}

func itemIDFromRequest(r *http.Request) (uuid.UUID, bool) {
	if r == nil {
		return uuid.Nil, false
	}
	return parseItemID(chi.URLParam(r, "id"))
}

func parseItemID(raw string) (uuid.UUID, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.Nil, false
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// reviewerFromRequest resolves the acting reviewer. Role checks happen in the router; the admin
// flag is recomputed here so the engine can enforce it on its own.
func reviewerFromRequest(r *http.Request, adminRoles authsvc.RoleSet) (modsvc.Reviewer, bool) {
	if r == nil {
		return modsvc.Reviewer{}, false
	}
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UserID) == "" {
		return modsvc.Reviewer{}, false
	}
	return modsvc.Reviewer{
		ID:    identity.UserID,
		Admin: adminRoles.Has(identity.Role),
	}, true
}

type errorMapping struct {
	status  int
	code    string
	message string
}

func mapError(err error) errorMapping {
	switch {
	case errors.Is(err, modsvc.ErrInvalidCursor):
		return errorMapping{http.StatusBadRequest, "INVALID_CURSOR", "cursor is malformed"}
	case errors.Is(err, modsvc.ErrValidation):
		return errorMapping{http.StatusBadRequest, "VALIDATION_ERROR", validationMessage(err)}
	case errors.Is(err, modsvc.ErrUnauthorized):
		return errorMapping{http.StatusForbidden, "FORBIDDEN", "admin role required"}
	case errors.Is(err, modsvc.ErrNotFound):
		return errorMapping{http.StatusNotFound, "NOT_FOUND", "content item not found"}
	case errors.Is(err, modsvc.ErrInvalidTransition):
		return errorMapping{http.StatusConflict, "INVALID_TRANSITION", "transition is not allowed from the current status"}
	case errors.Is(err, modsvc.ErrConcurrentDecisionConflict):
		return errorMapping{http.StatusConflict, "CONCURRENT_DECISION_CONFLICT", "item changed since it was read; reload and retry"}
	case errors.Is(err, modsvc.ErrAlreadyExists):
		return errorMapping{http.StatusConflict, "ALREADY_EXISTS", "content item already exists"}
	case errors.Is(err, modsvc.ErrAlreadyReported):
		return errorMapping{http.StatusConflict, "ALREADY_REPORTED", "item already reported"}
	case errors.Is(err, archivesvc.ErrUnavailable):
		return errorMapping{http.StatusServiceUnavailable, "ARCHIVE_UNAVAILABLE", "audit archive is unavailable"}
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return errorMapping{http.StatusServiceUnavailable, "REQUEST_CANCELLED", "request was cancelled before completion"}
	default:
		return errorMapping{http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"}
	}
}

func writeServiceError(w http.ResponseWriter, err error) {
	m := mapError(err)
	httperrors.Write(w, m.status, httperrors.APIError{Code: m.code, Message: m.message})
}

// validationMessage strips the sentinel prefix from wrapped validation errors.
func validationMessage(err error) string {
	msg := err.Error()
	prefix := modsvc.ErrValidation.Error() + ": "
	if strings.HasPrefix(msg, prefix) {
		return strings.TrimPrefix(msg, prefix)
	}
	return "request validation failed"
}
