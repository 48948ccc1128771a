package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/slotwise/slotwise/libs/auth"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/services/notification-service/internal/appointments"
	"github.com/slotwise/slotwise/services/notification-service/internal/feed"
	"github.com/slotwise/slotwise/services/notification-service/internal/notifications"
)

// Feed is the notification list service. *feed.Service implements it.
type Feed interface {
	List(ctx context.Context, workspaceID, bearer string) ([]notifications.Notification, error)
	Dismiss(ctx context.Context, workspaceID, appointmentID string, t notifications.Type) ([]notifications.Notification, error)
	MarkRead(ctx context.Context, workspaceID string, ids []string) ([]notifications.Notification, error)
}

type Handler struct {
	feed   Feed
	logger *slog.Logger
}

func New(feed Feed, logger *slog.Logger) *Handler {
	return &Handler{feed: feed, logger: logger}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/notifications", h.List)
	mux.HandleFunc("/api/notifications/dismiss", h.Dismiss)
	mux.HandleFunc("/api/notifications/mark-read", h.MarkRead)
}

var errForbidden = errors.New("not allowed for this workspace")

type listResponse struct {
	Notifications []notifications.Notification `json:"notifications"`
	Unread        int                          `json:"unread"`
}

type dismissRequest struct {
	WorkspaceID   string `json:"workspaceId" validate:"required,max=64"`
	AppointmentID string `json:"appointmentId" validate:"required,max=64"`
	Type          string `json:"type" validate:"omitempty,oneof=reschedule workspace_reschedule_response new_booking other"`
}

type markReadRequest struct {
	WorkspaceID string   `json:"workspaceId" validate:"required,max=64"`
	IDs         []string `json:"ids" validate:"max=200,dive,required"`
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	workspaceID := strings.TrimSpace(r.URL.Query().Get("workspaceId"))
	if err := requireMember(r, workspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	list, err := h.feed.List(r.Context(), workspaceID, auth.BearerToken(r))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, list)
}

// Dismiss removes a notification locally; the appointment itself is not changed.
func (h *Handler) Dismiss(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req dismissRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := requireMember(r, req.WorkspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	list, err := h.feed.Dismiss(r.Context(), req.WorkspaceID, req.AppointmentID, notifications.Type(req.Type))
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, list)
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var req markReadRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if err := requireMember(r, req.WorkspaceID); err != nil {
		h.writeErr(w, r, err)
		return
	}
	list, err := h.feed.MarkRead(r.Context(), req.WorkspaceID, req.IDs)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	writeList(w, list)
}

func requireMember(r *http.Request, workspaceID string) error {
	c, ok := auth.FromContext(r.Context())
	if !ok || workspaceID == "" || c.WorkspaceID != workspaceID || !c.IsWorkspaceMember() {
		return errForbidden
	}
	return nil
}

func writeList(w http.ResponseWriter, list []notifications.Notification) {
	if list == nil {
		list = []notifications.Notification{}
	}
	httpx.WriteJSON(w, http.StatusOK, listResponse{Notifications: list, Unread: notifications.Unread(list)})
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var upstream *appointments.StatusError
	switch {
	case errors.Is(err, errForbidden):
		httpx.WriteError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, httpx.ErrBadRequest):
		httpx.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, feed.ErrNotLoaded):
		httpx.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &upstream) && upstream.Code < http.StatusInternalServerError:
		httpx.WriteError(w, upstream.Code, upstream.Message)
	default:
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		httpx.WriteError(w, http.StatusBadGateway, "notification feed unavailable")
	}
}
