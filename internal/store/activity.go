package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/dukerupert/referidos/internal/model"
)

// ActivityStore is the append-only log of dashboard mutations.
type ActivityStore struct {
	db *sql.DB
}

func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

const activityCols = `id, action, member_id, member_name, founder, actor, created_at`

func (s *ActivityStore) Record(action string, memberID int64, memberName, founder, actor string) (*model.Activity, error) {
	result, err := s.db.Exec(
		`INSERT INTO activity (action, member_id, member_name, founder, actor, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		action, memberID, memberName, founder, actor, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert activity: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	var a model.Activity
	err = s.db.QueryRow(`SELECT `+activityCols+` FROM activity WHERE id = ?`, id).
		Scan(&a.ID, &a.Action, &a.MemberID, &a.MemberName, &a.Founder, &a.Actor, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	return &a, nil
}

// Recent returns the newest n entries, newest first.
func (s *ActivityStore) Recent(n int) ([]model.Activity, error) {
	rows, err := s.db.Query(`SELECT `+activityCols+` FROM activity ORDER BY id DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	defer rows.Close()

	var out []model.Activity
	for rows.Next() {
		var a model.Activity
		if err := rows.Scan(&a.ID, &a.Action, &a.MemberID, &a.MemberName, &a.Founder, &a.Actor, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
