package waste

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// selectEntries は学校の概要を結合して廃棄記録を取得するクエリの共通部分。
const selectEntries = `
	SELECT w.id, w.school_id, w.menu, w.weight, w.date, w.image_url, w.image_id, w.posted_at,
	       u.institute_name, u.contact_number, u.email, u.address
	FROM waste_entries w
	JOIN users u ON u.id = w.school_id`

// Store はSQLiteに保存された廃棄記録を読み書きする。
type Store struct {
	db    *sql.DB
	now   func() time.Time
	newID func() string
}

// StoreOption はStoreの生成オプション。
type StoreOption func(*Store)

// WithClock は投稿日時に使う時計を差し替える。
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) { s.now = now }
}

// NewStore は新しいStoreを生成する。
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	s := &Store{db: db, now: time.Now, newID: uuid.NewString}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create は廃棄記録を登録する。PostedAtは登録時刻になる。
func (s *Store) Create(ctx context.Context, d Draft) (Entry, error) {
	if err := d.Validate(); err != nil {
		return Entry{}, err
	}

	e := Entry{
		ID:       s.newID(),
		SchoolID: d.SchoolID,
		Menu:     d.Menu,
		Weight:   d.Weight,
		Date:     d.Date.UTC().Truncate(time.Millisecond),
		ImageURL: d.ImageURL,
		ImageID:  d.ImageID,
		PostedAt: s.now().UTC().Truncate(time.Millisecond),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waste_entries (id, school_id, menu, weight, date, image_url, image_id, posted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SchoolID, e.Menu, e.Weight, e.Date.UnixMilli(), e.ImageURL, e.ImageID, e.PostedAt.UnixMilli(),
	)
	if err != nil {
		return Entry{}, fmt.Errorf("廃棄記録の登録に失敗: %w", err)
	}
	return e, nil
}

// FindByID はIDに一致する廃棄記録を学校の概要付きで返す。
func (s *Store) FindByID(ctx context.Context, id string) (Entry, error) {
	rows, err := s.db.QueryContext(ctx, selectEntries+` WHERE w.id = ?`, id)
	if err != nil {
		return Entry{}, fmt.Errorf("廃棄記録の取得に失敗: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, ErrNotFound
	}
	return entries[0], nil
}

// Find は条件に一致する廃棄記録を投稿日時の新しい順に返す。
func (s *Store) Find(ctx context.Context, f Filter) ([]Entry, error) {
	var (
		where []string
		args  []any
	)
	if f.WeightMin != nil {
		where = append(where, "w.weight >= ?")
		args = append(args, *f.WeightMin)
	}
	if f.WeightMax != nil {
		where = append(where, "w.weight <= ?")
		args = append(args, *f.WeightMax)
	}
	if f.Date != nil {
		start, end := dayRange(*f.Date)
		where = append(where, "w.date >= ? AND w.date < ?")
		args = append(args, start.UnixMilli(), end.UnixMilli())
	}
	if f.SchoolName != "" {
		where = append(where, "instr(lower(u.institute_name), lower(?)) > 0")
		args = append(args, f.SchoolName)
	}

	query := selectEntries
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY w.posted_at DESC, w.rowid DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("廃棄記録の検索に失敗: %w", err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	re := f.menuPattern()
	if re == nil {
		return entries, nil
	}
	matched := entries[:0]
	for _, e := range entries {
		if re.MatchString(e.Menu) {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// ListBySchool は学校の廃棄記録を廃棄日の古い順に最大limit件返す。
func (s *Store) ListBySchool(ctx context.Context, schoolID string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		selectEntries+` WHERE w.school_id = ? ORDER BY w.date ASC, w.posted_at ASC, w.rowid ASC LIMIT ?`,
		schoolID, limit)
	if err != nil {
		return nil, fmt.Errorf("廃棄記録の取得に失敗: %w", err)
	}
	return scanEntries(rows)
}

// DeleteByID は廃棄記録を削除する。存在しない場合はErrNotFoundを返す。
func (s *Store) DeleteByID(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM waste_entries WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("廃棄記録の削除に失敗: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("廃棄記録の削除に失敗: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// scanEntries はselectEntriesの結果をすべて読み込んでrowsを閉じる。
func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()

	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e              Entry
			school         School
			date, postedAt int64
		)
		if err := rows.Scan(
			&e.ID, &e.SchoolID, &e.Menu, &e.Weight, &date, &e.ImageURL, &e.ImageID, &postedAt,
			&school.InstituteName, &school.ContactNumber, &school.Email, &school.Address,
		); err != nil {
			return nil, fmt.Errorf("廃棄記録の読み込みに失敗: %w", err)
		}
		school.ID = e.SchoolID
		e.School = &school
		e.Date = time.UnixMilli(date).UTC()
		e.PostedAt = time.UnixMilli(postedAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("廃棄記録の読み込みに失敗: %w", err)
	}
	return entries, nil
}
