package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ivankudzin/forummod/internal/domain/enums"
	archivesvc "github.com/ivankudzin/forummod/internal/services/archive"
	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	modsvc "github.com/ivankudzin/forummod/internal/services/moderation"
	"github.com/ivankudzin/forummod/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/forummod/internal/transport/http/errors"
)

type AdminModerationHandler struct {
	service    *modsvc.Service
	archive    *archivesvc.Service
	adminRoles authsvc.RoleSet
	log        *zap.Logger
}

func NewAdminModerationHandler(service *modsvc.Service, archive *archivesvc.Service, adminRoles authsvc.RoleSet, log *zap.Logger) *AdminModerationHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminModerationHandler{
		service:    service,
		archive:    archive,
		adminRoles: adminRoles,
		log:        log,
	}
}

func (h *AdminModerationHandler) ListQueue(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}

	query := r.URL.Query()
	filter := modsvc.QueueFilter{
		Cursor:   query.Get("cursor"),
		PageSize: parseIntOrDefault(query.Get("page_size"), 0),
	}

	if raw, present := query["status"]; present {
		status, ok := enums.ClassifyString(strings.Join(raw, ","))
		if !ok {
			writeBadRequest(w, "VALIDATION_ERROR", "status must be pending, approved or rejected")
			return
		}
		filter.Status = status
	}

	if raw := strings.TrimSpace(query.Get("min_spam_score")); raw != "" {
		score, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			writeBadRequest(w, "VALIDATION_ERROR", "min_spam_score must be a number")
			return
		}
		filter.MinSpamScore = &score
	}

	page, err := h.service.ListQueue(r.Context(), filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.QueueResponse{
		Items:      page.Items,
		NextCursor: page.NextCursor,
	})
}

func (h *AdminModerationHandler) Summary(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}

	summary, err := h.service.Summary(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	counts := make(map[string]int, len(summary.Counts))
	for status, count := range summary.Counts {
		counts[status.String()] = count
	}
	httperrors.Write(w, http.StatusOK, dto.SummaryResponse{
		Counts:         counts,
		PendingETA:     summary.PendingETA,
		Dashboard:      summary.Dashboard,
		SuspectAuthors: summary.SuspectAuthors,
	})
}

func (h *AdminModerationHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}
	itemID, ok := itemIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid content item id")
		return
	}

	snapshot, err := h.service.GetItem(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.ItemResponse{
		Item:  snapshot.Item,
		Trail: snapshot.Trail,
	})
}

func (h *AdminModerationHandler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}
	itemID, ok := itemIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid content item id")
		return
	}

	records, err := h.service.GetAuditTrail(r.Context(), itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	httperrors.Write(w, http.StatusOK, dto.AuditTrailResponse{ItemID: itemID, Records: records})
}

func (h *AdminModerationHandler) Decide(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := reviewerFromRequest(r, h.adminRoles)
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

	var req dto.DecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}
	status, ok := enums.Classify(req.Status)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "status must be approved or rejected")
		return
	}

	item, err := h.service.Decide(r.Context(), reviewer, modsvc.DecideRequest{
		ItemID:          itemID,
		ExpectedVersion: req.ExpectedVersion,
		Status:          status,
		Rationale:       req.Rationale,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logAudit(r, "MODERATION_DECIDE", reviewer.ID, zap.String("item_id", itemID.String()), zap.String("status", status.String()), zap.Int64("version", item.Version))
	httperrors.Write(w, http.StatusOK, item)
}

func (h *AdminModerationHandler) DecideMany(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := reviewerFromRequest(r, h.adminRoles)
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.service == nil {
		writeInternal(w, "MODERATION_SERVICE_UNAVAILABLE", "moderation service is unavailable")
		return
	}

	var req dto.BulkDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	if len(req.Decisions) == 0 {
		writeBadRequest(w, "VALIDATION_ERROR", "decisions are required")
		return
	}

	// Entries that fail to parse get their own result; the rest go to the engine.
	results := make([]dto.BulkDecisionResult, len(req.Decisions))
	reqs := make([]modsvc.DecideRequest, 0, len(req.Decisions))
	positions := make([]int, 0, len(req.Decisions))
	for i, entry := range req.Decisions {
		results[i].ItemID = entry.ItemID
		itemID, ok := parseItemID(entry.ItemID)
		if !ok {
			results[i].Error = &dto.ResultError{Code: "VALIDATION_ERROR", Message: "invalid content item id"}
			continue
		}
		status, ok := enums.Classify(entry.Status)
		if !ok {
			results[i].Error = &dto.ResultError{Code: "VALIDATION_ERROR", Message: "status must be approved or rejected"}
			continue
		}
		reqs = append(reqs, modsvc.DecideRequest{
			ItemID:          itemID,
			ExpectedVersion: entry.ExpectedVersion,
			Status:          status,
			Rationale:       entry.Rationale,
		})
		positions = append(positions, i)
	}

	if len(reqs) > 0 {
		outcomes, err := h.service.DecideMany(r.Context(), reviewer, reqs)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		for j, outcome := range outcomes {
			res := &results[positions[j]]
			if outcome.Err != nil {
				m := mapError(outcome.Err)
				res.Error = &dto.ResultError{Code: m.code, Message: m.message}
				continue
			}
			res.OK = true
			res.Item = outcome.Item
		}
	}

	response := dto.BulkDecisionResponse{Results: results}
	for _, res := range results {
		if res.OK {
			response.Applied++
		} else {
			response.Failed++
		}
	}

	h.logAudit(r, "MODERATION_DECIDE_MANY", reviewer.ID, zap.Int("applied", response.Applied), zap.Int("failed", response.Failed))
	httperrors.Write(w, http.StatusOK, response)
}

func (h *AdminModerationHandler) Reopen(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := reviewerFromRequest(r, h.adminRoles)
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

	var req dto.ReopenRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "INVALID_REQUEST", "invalid request body")
		return
	}

	item, err := h.service.Reopen(r.Context(), reviewer, modsvc.ReopenRequest{
		ItemID:          itemID,
		ExpectedVersion: req.ExpectedVersion,
		Rationale:       req.Rationale,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logAudit(r, "MODERATION_REOPEN", reviewer.ID, zap.String("item_id", itemID.String()), zap.Int64("version", item.Version))
	httperrors.Write(w, http.StatusOK, item)
}

func (h *AdminModerationHandler) Rescore(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := reviewerFromRequest(r, h.adminRoles)
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

	item, err := h.service.Rescore(r.Context(), reviewer, itemID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logAudit(r, "MODERATION_RESCORE", reviewer.ID, zap.String("item_id", itemID.String()), zap.Float64("spam_score", item.SpamScore()))
	httperrors.Write(w, http.StatusOK, item)
}

func (h *AdminModerationHandler) ArchiveAuditTrail(w http.ResponseWriter, r *http.Request) {
	reviewer, ok := reviewerFromRequest(r, h.adminRoles)
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}
	if h.archive == nil {
		writeServiceError(w, archivesvc.ErrUnavailable)
		return
	}
	itemID, ok := itemIDFromRequest(r)
	if !ok {
		writeBadRequest(w, "VALIDATION_ERROR", "invalid content item id")
		return
	}

	res, err := h.archive.ArchiveAuditTrail(r.Context(), itemID, reviewer.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	h.logAudit(r, "MODERATION_ARCHIVE", reviewer.ID, zap.String("item_id", itemID.String()), zap.String("key", res.Key))
	httperrors.Write(w, http.StatusOK, dto.ArchiveResponse{
		Key:        res.Key,
		URL:        res.URL,
		Version:    res.Version,
		Records:    res.Records,
		ArchivedAt: res.ArchivedAt,
	})
}

func (h *AdminModerationHandler) logAudit(r *http.Request, action, actorID string, fields ...zap.Field) {
	if r == nil {
		return
	}
	base := []zap.Field{
		zap.String("action", action),
		zap.String("actor_id", actorID),
	}
	h.log.Info("audit_log", append(base, fields...)...)
}

func parseIntOrDefault(raw string, fallback int) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}
