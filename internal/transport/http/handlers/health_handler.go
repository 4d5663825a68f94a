package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	authsvc "github.com/ivankudzin/forummod/internal/services/auth"
	"github.com/ivankudzin/forummod/internal/transport/http/dto"
	httperrors "github.com/ivankudzin/forummod/internal/transport/http/errors"
)

const readinessTimeout = 2 * time.Second

type HealthCheck func(ctx context.Context) error

type HealthHandler struct {
	storage string
	checks  map[string]HealthCheck
}

func NewHealthHandler(storage string) *HealthHandler {
	return &HealthHandler{
		storage: storage,
		checks:  make(map[string]HealthCheck),
	}
}

// AddCheck registers a readiness check. Optional dependencies should not be registered.
func (h *HealthHandler) AddCheck(name string, check HealthCheck) {
	if check == nil {
		return
	}
	h.checks[name] = check
}

func (h *HealthHandler) Get(w http.ResponseWriter, _ *http.Request) {
	httperrors.Write(w, http.StatusOK, dto.HealthResponse{Status: "ok", Storage: h.storage})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	status := http.StatusOK
	res := dto.HealthResponse{Status: "ok", Storage: h.storage, Checks: make(map[string]string, len(names))}
	for _, name := range names {
		if err := h.checks[name](ctx); err != nil {
			res.Checks[name] = err.Error()
			res.Status = "degraded"
			status = http.StatusServiceUnavailable
			continue
		}
		res.Checks[name] = "ok"
	}

	httperrors.Write(w, status, res)
}

func (h *HealthHandler) Whoami(w http.ResponseWriter, r *http.Request) {
	identity, ok := authsvc.IdentityFromContext(r.Context())
	if !ok {
		writeUnauthorized(w, "UNAUTHORIZED", "authentication required")
		return
	}

	httperrors.Write(w, http.StatusOK, map[string]any{
		"ok":      true,
		"user_id": identity.UserID,
		"role":    identity.Role,
	})
}
