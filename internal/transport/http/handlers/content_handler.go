package handlers

import (
	"net/http"

	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	modsvc "github.com/ivankudzin/forummod/internal/services/moderation"
	"github.com/ivankudzin/forummod/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/forummod/internal/transport/http/errors"
)

// ContentHandler serves the forum-facing side: intake from the content store and user reports.
type ContentHandler struct {
	service *modsvc.Service
}

func NewContentHandler(service *modsvc.Service) *ContentHandler {
	return &ContentHandler{service: service}
}

func (h *ContentHandler) Submit(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}

	var req dto.SubmitContentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	in := modsvc.NewContent{
		AuthorID: req.AuthorID,
		Body:     req.Body,
	}
	if req.ID != nil {
		id, ok := parseItemID(*req.ID)
		if !ok {
			writeBadRequest(w, "VALIDATION_ERROR", "id must be a uuid")
			return
		}
		in.ID = id
	}
	if req.CreatedAt != nil {
		in.CreatedAt = req.CreatedAt.UTC()
	}

	item, err := h.service.Submit(r.Context(), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusCreated, item)
}

func (h *ContentHandler) Report(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}
	itemID, ok := itemIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid content item id")
		return
	}

	var req dto.ReportRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
			return
		}
	}

	item, err := h.service.Report(r.Context(), itemID, identity.UserID, req.Reason)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusAccepted, dto.ReportResponse{OK: true, ReportCount: item.ReportCount})
}
