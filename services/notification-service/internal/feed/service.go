// Package feed keeps each workspace's notification list current: seeded from the
// appointment service on first read, then maintained from the change stream.
package feed

import (
	"context"
	"errors"
	"log/slog"
	"slices"

	"github.com/slotwise/slotwise/libs/events"
	"github.com/slotwise/slotwise/services/notification-service/internal/notifications"
)

const defaultMaxItems = 100

// Seeder fetches pending reschedules for a workspace on behalf of the caller's token.
type Seeder interface {
	PendingReschedules(ctx context.Context, workspaceID, bearer string) ([]events.AppointmentRow, error)
}

type Service struct {
	store    Store
	seeder   Seeder
	reducer  notifications.Reducer
	logger   *slog.Logger
	maxItems int
}

func NewService(store Store, seeder Seeder, logger *slog.Logger, maxItems int) *Service {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	return &Service{store: store, seeder: seeder, logger: logger, maxItems: maxItems}
}

// ErrNotLoaded means the workspace feed has never been listed, so there is nothing to change yet.
var ErrNotLoaded = errors.New("notification feed not loaded; list it first")

// List returns the workspace feed, seeding it first if this workspace has never been read.
// The feed is marked as filling before the fetch so change events arriving meanwhile are
// reduced onto it; the fetched rows then only fill in appointments those events did not reach.
func (s *Service) List(ctx context.Context, workspaceID, bearer string) ([]notifications.Notification, error) {
	f, found, err := s.store.Load(ctx, workspaceID)
	if err != nil {
		return nil, err
	}
	if found && !f.Filling {
		return f.Items, nil
	}
	if !found {
		f, err = s.store.Update(ctx, workspaceID, func(cur Feed, found bool) (Feed, error) {
			if found {
				return cur, ErrSkip
			}
			return Feed{Filling: true}, nil
		})
		switch {
		case errors.Is(err, ErrSkip) && !f.Filling:
			return f.Items, nil
		case err != nil && !errors.Is(err, ErrSkip):
			return nil, err
		}
	}

	rows, err := s.seeder.PendingReschedules(ctx, workspaceID, bearer)
	if err != nil {
		return nil, err
	}
	seeded := s.reducer.Seed(rows)
	f, err = s.store.Update(ctx, workspaceID, func(cur Feed, found bool) (Feed, error) {
		if found && !cur.Filling {
			return cur, ErrSkip
		}
		return Feed{Items: s.trim(fill(cur.Items, seeded, cur.Touched))}, nil
	})
	if err != nil && !errors.Is(err, ErrSkip) {
		return nil, err
	}
	s.logger.Info("notification feed seeded", "workspace_id", workspaceID, "items", len(f.Items))
	return f.Items, nil
}

// Apply folds one change event into the workspace feed. Workspaces that were never read
// are skipped; their first List seeds from current state.
func (s *Service) Apply(ctx context.Context, ev events.AppointmentChanged) error {
	if ev.WorkspaceID == "" {
		return nil
	}
	_, err := s.store.Update(ctx, ev.WorkspaceID, func(cur Feed, found bool) (Feed, error) {
		if !found {
			return cur, ErrSkip
		}
		cur.Items = s.trim(s.reducer.Reduce(cur.Items, ev))
		if cur.Filling {
			cur.Touched = touch(cur.Touched, changedID(ev))
		}
		return cur, nil
	})
	if errors.Is(err, ErrSkip) {
		return nil
	}
	return err
}

func (s *Service) Dismiss(ctx context.Context, workspaceID, appointmentID string, t notifications.Type) ([]notifications.Notification, error) {
	return s.mutate(ctx, workspaceID, appointmentID, func(cur []notifications.Notification) []notifications.Notification {
		return notifications.Dismiss(cur, appointmentID, t)
	})
}

func (s *Service) MarkRead(ctx context.Context, workspaceID string, ids []string) ([]notifications.Notification, error) {
	return s.mutate(ctx, workspaceID, "", func(cur []notifications.Notification) []notifications.Notification {
		return notifications.MarkRead(cur, ids...)
	})
}

func (s *Service) mutate(ctx context.Context, workspaceID, appointmentID string, fn func([]notifications.Notification) []notifications.Notification) ([]notifications.Notification, error) {
	f, err := s.store.Update(ctx, workspaceID, func(cur Feed, found bool) (Feed, error) {
		if !found {
			return cur, ErrNotLoaded
		}
		cur.Items = fn(cur.Items)
		if cur.Filling && appointmentID != "" {
			cur.Touched = touch(cur.Touched, appointmentID)
		}
		return cur, nil
	})
	if err != nil {
		return nil, err
	}
	return f.Items, nil
}

// fill appends seeded items for appointments not yet in items and not touched since the
// seed started. Seeded items are older than anything a change event produced.
func fill(items, seeded []notifications.Notification, touched []string) []notifications.Notification {
	skip := make(map[string]bool, len(touched))
	for _, id := range touched {
		skip[id] = true
	}
	type key struct {
		appointmentID string
		t             notifications.Type
	}
	have := make(map[key]bool, len(items))
	for _, n := range items {
		have[key{n.AppointmentID, n.Type}] = true
	}
	out := append([]notifications.Notification{}, items...)
	for _, n := range seeded {
		if skip[n.AppointmentID] || have[key{n.AppointmentID, n.Type}] {
			continue
		}
		out = append(out, n)
	}
	return out
}

func touch(ids []string, id string) []string {
	if id == "" || slices.Contains(ids, id) {
		return ids
	}
	return append(ids, id)
}

func changedID(ev events.AppointmentChanged) string {
	if ev.New != nil {
		return ev.New.ID
	}
	if ev.Old != nil {
		return ev.Old.ID
	}
	return ""
}

func (s *Service) trim(list []notifications.Notification) []notifications.Notification {
	if len(list) > s.maxItems {
		return list[:s.maxItems]
	}
	return list
}
