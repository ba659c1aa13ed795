package store

import (
	"database/sql"
	"fmt"

	"github.com/dukerupert/foodgram/internal/model"
)

type TagStore struct {
	db *sql.DB
}

func NewTagStore(db *sql.DB) *TagStore {
	return &TagStore{db: db}
}

func scanTag(s scanner) (*model.Tag, error) {
	var t model.Tag
	var color, slug sql.NullString
	if err := s.Scan(&t.ID, &t.Name, &color, &slug); err != nil {
		return nil, err
	}
	t.Color = color.String
	t.Slug = slug.String
	return &t, nil
}

const tagCols = `id, name, color, slug`

func (s *TagStore) List() ([]model.Tag, error) {
	rows, err := s.db.Query(`SELECT ` + tagCols + ` FROM tags ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	var tags []model.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, *t)
	}
	return tags, rows.Err()
}

func (s *TagStore) GetByID(id int64) (*model.Tag, error) {
	row := s.db.QueryRow(`SELECT `+tagCols+` FROM tags WHERE id = ?`, id)
	t, err := scanTag(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get tag: %w", err)
	}
	return t, nil
}

// CountExisting reports how many of the given ids exist.
func (s *TagStore) CountExisting(ids []int64) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	var count int
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM tags WHERE id IN (`+placeholders(len(ids))+`)`,
		int64Args(ids)...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count tags: %w", err)
	}
	return count, nil
}
