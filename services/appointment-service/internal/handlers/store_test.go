package handlers

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/slotwise/slotwise/libs/outbox"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
	"github.com/slotwise/slotwise/services/appointment-service/internal/storage"
)

// memStore mirrors the repository's locking and version semantics in memory.
type memStore struct {
	mu        sync.Mutex
	appts     map[string]*model.Appointment
	workspace *model.Workspace
	members   []model.TeamMember
	services  map[string]string
	outbox    []outbox.Event
	idem      map[string]string
}

func newMemStore() *memStore {
	return &memStore{
		appts: map[string]*model.Appointment{},
		workspace: &model.Workspace{
			ID: "ws-1", Name: "Glow Studio", Timezone: "UTC", Locale: "en-US",
			Hours: model.WeeklyHours{time.Monday: {{Open: "09:00", Close: "17:00"}}},
		},
		members: []model.TeamMember{
			{ID: "tm-1", Name: "Ana", Hours: model.WeeklyHours{time.Monday: {{Open: "09:00", Close: "17:00"}}}},
			{ID: "tm-2", Name: "Bo"},
		},
		services: map[string]string{"svc-1": "Haircut"},
		idem:     map[string]string{},
	}
}

func (s *memStore) put(a *model.Appointment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.Version == 0 {
		a.Version = 1
	}
	s.appts[a.ID] = a.Clone()
}

func (s *memStore) snapshot(id string) *model.Appointment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appts[id].Clone()
}

func (s *memStore) events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.outbox...)
}

func (s *memStore) lookup(workspaceID, id string) (*model.Appointment, error) {
	a, ok := s.appts[id]
	if !ok || a.WorkspaceID != workspaceID {
		return nil, storage.ErrNotFound
	}
	return a, nil
}

func (s *memStore) Get(_ context.Context, workspaceID, id string) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

func (s *memStore) ListPendingReschedules(_ context.Context, workspaceID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appts {
		if a.WorkspaceID == workspaceID && a.Status == model.StatusPending && a.Ledger.Kind() == model.CustomerProposed {
			out = append(out, *a.Clone())
		}
	}
	return out, nil
}

func (s *memStore) ListRange(_ context.Context, workspaceID string, from, to time.Time) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	lo, hi := from.Format("2006-01-02"), to.Format("2006-01-02")
	var out []model.Appointment
	for _, a := range s.appts {
		if a.WorkspaceID == workspaceID && a.Date >= lo && a.Date <= hi {
			out = append(out, *a.Clone())
		}
	}
	return out, nil
}

func (s *memStore) Mutate(_ context.Context, workspaceID, id string, expectedVersion *int64, fn storage.MutateFunc) (*model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, err := s.lookup(workspaceID, id)
	if err != nil {
		return nil, err
	}
	if expectedVersion != nil && *expectedVersion != stored.Version {
		return nil, storage.ErrVersionConflict
	}
	cur := stored.Clone()
	extra, err := fn(cur)
	if err != nil {
		return nil, err
	}
	if reflect.DeepEqual(stored.Row(), cur.Row()) {
		return cur, nil
	}
	cur.Version++
	s.appts[id] = cur.Clone()
	s.outbox = append(s.outbox, extra...)
	return cur, nil
}

func (s *memStore) Create(_ context.Context, a *model.Appointment, key string) (*model.Appointment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.idem[key]; ok && key != "" {
		return s.appts[id].Clone(), false, nil
	}
	a.ID = "appt-new"
	a.Version = 1
	s.appts[a.ID] = a.Clone()
	if key != "" {
		s.idem[key] = a.ID
	}
	return a.Clone(), true, nil
}

func (s *memStore) Workspace(_ context.Context, workspaceID string) (*model.Workspace, error) {
	if workspaceID != s.workspace.ID {
		return nil, storage.ErrNotFound
	}
	return s.workspace, nil
}

func (s *memStore) TeamMembers(context.Context, string) ([]model.TeamMember, error) {
	return s.members, nil
}

func (s *memStore) ServiceName(_ context.Context, _, serviceID string) (string, error) {
	name, ok := s.services[serviceID]
	if !ok {
		return "", storage.ErrNotFound
	}
	return name, nil
}
