package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/slotwise/slotwise/services/appointment-service/internal/model"
)

func (r *Repository) Workspace(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	var ws model.Workspace
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, timezone, locale FROM workspaces WHERE id = $1
	`, workspaceID).Scan(&ws.ID, &ws.Name, &ws.Timezone, &ws.Locale)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, open_time, close_time
		FROM workspace_hours
		WHERE workspace_id = $1
		ORDER BY weekday, open_time
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	ws.Hours, err = collectHours(rows)
	if err != nil {
		return nil, err
	}
	return &ws, nil
}

// TeamMembers lists active members with their weekly hours, in creation order.
func (r *Repository) TeamMembers(ctx context.Context, workspaceID string) ([]model.TeamMember, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, role
		FROM team_members
		WHERE workspace_id = $1 AND active
		ORDER BY created_at, id
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	var members []model.TeamMember
	index := map[string]int{}
	for rows.Next() {
		var m model.TeamMember
		if err := rows.Scan(&m.ID, &m.Name, &m.Role); err != nil {
			rows.Close()
			return nil, err
		}
		m.Hours = model.WeeklyHours{}
		index[m.ID] = len(members)
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	hrows, err := r.pool.Query(ctx, `
		SELECT h.team_member_id, h.weekday, h.open_time, h.close_time
		FROM team_member_hours h
		JOIN team_members m ON m.id = h.team_member_id
		WHERE m.workspace_id = $1 AND m.active
		ORDER BY h.team_member_id, h.weekday, h.open_time
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer hrows.Close()
	for hrows.Next() {
		var (
			memberID string
			weekday  int16
			iv       model.Interval
		)
		if err := hrows.Scan(&memberID, &weekday, &iv.Open, &iv.Close); err != nil {
			return nil, err
		}
		if i, ok := index[memberID]; ok {
			day := time.Weekday(weekday)
			members[i].Hours[day] = append(members[i].Hours[day], iv)
		}
	}
	return members, hrows.Err()
}

// TeamMember returns a member only if it belongs to the workspace.
func (r *Repository) TeamMember(ctx context.Context, workspaceID, id string) (*model.TeamMember, error) {
	var m model.TeamMember
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, role FROM team_members WHERE workspace_id = $1 AND id = $2 AND active
	`, workspaceID, id).Scan(&m.ID, &m.Name, &m.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *Repository) ServiceName(ctx context.Context, workspaceID, serviceID string) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `
		SELECT name FROM services WHERE workspace_id = $1 AND id = $2
	`, workspaceID, serviceID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return name, err
}

func collectHours(rows pgx.Rows) (model.WeeklyHours, error) {
	defer rows.Close()
	hours := model.WeeklyHours{}
	for rows.Next() {
		var (
			weekday int16
			iv      model.Interval
		)
		if err := rows.Scan(&weekday, &iv.Open, &iv.Close); err != nil {
			return nil, err
		}
		day := time.Weekday(weekday)
		hours[day] = append(hours[day], iv)
	}
	return hours, rows.Err()
}
