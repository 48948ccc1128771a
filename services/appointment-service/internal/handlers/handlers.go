package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/slotwise/slotwise/libs/auth"
	"github.com/slotwise/slotwise/libs/httpx"
	"github.com/slotwise/slotwise/services/appointment-service/internal/clock"
	"github.com/slotwise/slotwise/services/appointment-service/internal/messaging"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/slotwise/slotwise/services/appointment-service/internal/negotiation"
	"github.com/slotwise/slotwise/services/appointment-service/internal/storage"
)

// Store is the persistence the HTTP layer needs. *storage.Repository implements it.
type Store interface {
	Get(ctx context.Context, workspaceID, id string) (*model.Appointment, error)
	ListPendingReschedules(ctx context.Context, workspaceID string) ([]model.Appointment, error)
	ListRange(ctx context.Context, workspaceID string, from, to time.Time) ([]model.Appointment, error)
	Mutate(ctx context.Context, workspaceID, id string, expectedVersion *int64, fn storage.MutateFunc) (*model.Appointment, error)
	Create(ctx context.Context, a *model.Appointment, idempotencyKey string) (*model.Appointment, bool, error)
	Workspace(ctx context.Context, workspaceID string) (*model.Workspace, error)
	TeamMembers(ctx context.Context, workspaceID string) ([]model.TeamMember, error)
	ServiceName(ctx context.Context, workspaceID, serviceID string) (string, error)
}

type Handler struct {
	store    Store
	neg      *negotiation.Negotiator
	messages messaging.Builder
	logger   *slog.Logger
	now      func() time.Time
}

func New(store Store, messages messaging.Builder, logger *slog.Logger) *Handler {
	return &Handler{
		store:    store,
		neg:      negotiation.New(),
		messages: messages,
		logger:   logger,
		now:      time.Now,
	}
}

// Register mounts the API routes. Callers wrap mux with auth.RequireBearer.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/appointments", h.Appointments)
	mux.HandleFunc("/api/appointments/detail", h.Detail)
	mux.HandleFunc("/api/appointments/pending-reschedules", h.PendingReschedules)
	mux.HandleFunc("/api/appointments/request-reschedule", h.RequestReschedule)
	mux.HandleFunc("/api/appointments/confirm-reschedule", h.ConfirmReschedule)
	mux.HandleFunc("/api/appointments/decline-reschedule", h.DeclineReschedule)
	mux.HandleFunc("/api/appointments/acknowledge-reschedule", h.AcknowledgeReschedule)
	mux.HandleFunc("/api/appointments/confirm", h.Confirm)
	mux.HandleFunc("/api/appointments/cancel", h.Cancel)
	mux.HandleFunc("/api/calendar/grid", h.Grid)
}

var (
	errUnauthenticated = errors.New("authentication required")
	errForbidden       = errors.New("not allowed for this workspace or appointment")
	errUnknownMember   = errors.New("unknown team member")
)

// party resolves which side of the negotiation the caller is on. Customers are scoped to
// the single appointment their token names.
func party(r *http.Request, workspaceID, appointmentID string) (model.Party, error) {
	c, ok := auth.FromContext(r.Context())
	if !ok {
		return "", errUnauthenticated
	}
	if c.WorkspaceID != workspaceID {
		return "", errForbidden
	}
	switch {
	case c.IsWorkspaceMember():
		return model.PartyWorkspace, nil
	case c.IsCustomer() && appointmentID != "" && c.AppointmentID == appointmentID:
		return model.PartyCustomer, nil
	default:
		return "", errForbidden
	}
}

func requireWorkspaceMember(r *http.Request, workspaceID string) error {
	p, err := party(r, workspaceID, "")
	if err != nil {
		return err
	}
	if p != model.PartyWorkspace {
		return errForbidden
	}
	return nil
}

func allowMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	code := statusFor(err)
	msg := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"request_id", httpx.RequestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		msg = "internal error"
	}
	httpx.WriteError(w, code, msg)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, errForbidden), errors.Is(err, negotiation.ErrWrongParty):
		return http.StatusForbidden
	case storage.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, httpx.ErrBadRequest),
		errors.Is(err, negotiation.ErrInvalidProposal),
		errors.Is(err, model.ErrInvalidStaffPreference),
		errors.Is(err, clock.ErrInvalidClock),
		errors.Is(err, clock.ErrInvalidDate),
		errors.Is(err, errUnknownMember),
		storage.IsForeignKeyViolation(err):
		return http.StatusBadRequest
	case errors.Is(err, negotiation.ErrTerminal),
		errors.Is(err, negotiation.ErrNoPendingProposal),
		errors.Is(err, negotiation.ErrNotPending),
		errors.Is(err, negotiation.ErrNoResponse),
		errors.Is(err, negotiation.ErrProposalOpen),
		errors.Is(err, storage.ErrVersionConflict),
		storage.IsConflict(err):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
