package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/foodgram/internal/model"
)

type FollowStore struct {
	db *sql.DB
}

func NewFollowStore(db *sql.DB) *FollowStore {
	return &FollowStore{db: db}
}

// Subscribe makes userID follow authorID. Following twice yields ErrConflict.
func (s *FollowStore) Subscribe(userID, authorID int64) (*model.Follow, error) {
	result, err := s.db.Exec(`INSERT INTO follows (user_id, author_id) VALUES (?, ?)`, userID, authorID)
	if isUniqueViolation(err) {
		return nil, ErrConflict
	}
	if err != nil {
		return nil, fmt.Errorf("insert follow: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	var f model.Follow
	err = s.db.QueryRow(`SELECT id, user_id, author_id, created_at FROM follows WHERE id = ?`, id).
		Scan(&f.ID, &f.UserID, &f.AuthorID, &f.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("get follow: %w", err)
	}
	return &f, nil
}

// Unsubscribe reports whether a subscription was removed.
func (s *FollowStore) Unsubscribe(userID, authorID int64) (bool, error) {
	result, err := s.db.Exec(`DELETE FROM follows WHERE user_id = ? AND author_id = ?`, userID, authorID)
	if err != nil {
		return false, fmt.Errorf("delete follow: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return n > 0, nil
}

// SubscribedAmong returns the subset of authorIDs that userID follows.
func (s *FollowStore) SubscribedAmong(userID int64, authorIDs []int64) (map[int64]bool, error) {
	out := make(map[int64]bool)
	if userID == 0 || len(authorIDs) == 0 {
		return out, nil
	}

	args := append([]any{userID}, int64Args(authorIDs)...)
	rows, err := s.db.Query(
		`SELECT author_id FROM follows WHERE user_id = ? AND author_id IN (`+placeholders(len(authorIDs))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("list follows: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan follow: %w", err)
		}
		out[id] = true
	}
	return out, rows.Err()
}

// ListAuthors returns the authors userID follows, ordered by author id.
func (s *FollowStore) ListAuthors(userID int64, limit, offset int) ([]model.User, error) {
	rows, err := s.db.Query(
		`SELECT u.id, u.email, u.username, u.first_name, u.last_name, u.password_hash, u.created_at
		 FROM follows f JOIN users u ON u.id = f.author_id
		 WHERE f.user_id = ? ORDER BY f.author_id ASC LIMIT ? OFFSET ?`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("list followed authors: %w", err)
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	return users, rows.Err()
}

func (s *FollowStore) CountAuthors(userID int64) (int, error) {
	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM follows WHERE user_id = ?`, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count follows: %w", err)
	}
	return count, nil
}
