// Package meshapi exposes the two HTTP operations nodes use to talk to the
// control plane (spec.md §6): a liveness echo and the registration endpoint.
package meshapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/reseda/meshd/internal/externalops"
	"github.com/reseda/meshd/internal/httpserver"
	"github.com/reseda/meshd/internal/meshnode"
	"github.com/reseda/meshd/internal/registrar"
)

// registerer is the subset of *registrar.Registrar this handler depends on,
// narrowed for testability (same pattern as the teacher's capability
// interfaces elsewhere in this module).
type registerer interface {
	Register(ctx context.Context, ip, authKey string) (meshnode.Public, error)
}

// Handler provides the node-facing HTTP surface.
type Handler struct {
	registrar registerer
	logger    *slog.Logger
}

// New creates a Handler.
func New(r *registrar.Registrar, logger *slog.Logger) *Handler {
	return &Handler{registrar: r, logger: logger}
}

// Routes returns a chi.Router with the node-facing routes (spec.md §6).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleEcho)
	r.Post("/register/{ip}", h.handleRegister)
	return r
}

// handleEcho implements GET / -> 200 OK (liveness).
func (h *Handler) handleEcho(w http.ResponseWriter, r *http.Request) {
	httpserver.Respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	Auth string `json:"auth" validate:"required"`
}

// handleRegister implements POST /register/{ip} (spec.md §6).
func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	var req registerRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	info, err := h.registrar.Register(r.Context(), ip, req.Auth)
	if err != nil {
		if errors.Is(err, registrar.ErrForbidden) {
			httpserver.RespondError(w, http.StatusForbidden, "forbidden", "auth key mismatch")
			return
		}
		if errors.Is(err, externalops.ErrTransient) {
			h.logger.Error("registration failed", "ip", ip, "error", err)
			httpserver.RespondError(w, http.StatusInternalServerError, "provisioning_failed", "registration could not be completed, retry")
			return
		}
		h.logger.Error("registration failed", "ip", ip, "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "unexpected error")
		return
	}

	httpserver.Respond(w, http.StatusOK, info)
}
