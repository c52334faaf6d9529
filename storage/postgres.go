package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gumboard-api/domain"
)

// PostgresStore persists notes, their checklists and the board settings the
// notification pipeline reads.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

const noteColumns = `id, board_id, content, done, slack_message_id, archived_at, created_by, created_at, updated_at`

func scanNote(row *sql.Row) (domain.Note, error) {
	var (
		n        domain.Note
		slackID  sql.NullString
		archived sql.NullTime
	)
	err := row.Scan(&n.ID, &n.BoardID, &n.Content, &n.Done, &slackID, &archived, &n.CreatedBy, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		return domain.Note{}, err
	}
	if slackID.Valid {
		n.SlackMessageID = &slackID.String
	}
	if archived.Valid {
		t := archived.Time
		n.ArchivedAt = &t
	}
	return n, nil
}

// GetNote loads a note of the board with its checklist sorted by order, then id.
func (s *PostgresStore) GetNote(ctx context.Context, boardID, noteID string) (*domain.Note, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+noteColumns+` FROM notes WHERE id=$1 AND board_id=$2`, noteID, boardID)
	n, err := scanNote(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("note %s: %w", noteID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read note %s: %w", noteID, err)
	}
	items, err := listItems(ctx, s.db, noteID)
	if err != nil {
		return nil, err
	}
	n.ChecklistItems = items
	return &n, nil
}

func listItems(ctx context.Context, q queryer, noteID string) ([]domain.ChecklistItem, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, note_id, content, checked, sort_order
		FROM checklist_items
		WHERE note_id=$1
		ORDER BY sort_order, id
	`, noteID)
	if err != nil {
		return nil, fmt.Errorf("list checklist items: %w", err)
	}
	defer rows.Close()

	items := []domain.ChecklistItem{}
	for rows.Next() {
		var it domain.ChecklistItem
		if err := rows.Scan(&it.ID, &it.NoteID, &it.Content, &it.Checked, &it.Order); err != nil {
			return nil, fmt.Errorf("scan checklist item: %w", err)
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate checklist items: %w", err)
	}
	return items, nil
}

// CreateNote inserts the note and its checklist in one transaction.
func (s *PostgresStore) CreateNote(ctx context.Context, note domain.Note) (*domain.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO notes (id, board_id, content, done, archived_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`, note.ID, note.BoardID, note.Content, note.Done, note.ArchivedAt, note.CreatedBy).Scan(&note.CreatedAt, &note.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert note: %w", err)
	}
	for _, it := range note.ChecklistItems {
		if err := upsertItem(ctx, tx, note.ID, it); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create note: %w", err)
	}
	return &note, nil
}

// SaveNote updates the note row and replaces its checklist with
// note.ChecklistItems. The returned note carries the checklist as stored.
func (s *PostgresStore) SaveNote(ctx context.Context, note domain.Note, changes domain.ChangeSet) (*domain.Note, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin save note: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if note.UpdatedAt.IsZero() {
		note.UpdatedAt = time.Now().UTC()
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE notes SET content=$3, done=$4, archived_at=$5, updated_at=$6
		WHERE id=$1 AND board_id=$2
	`, note.ID, note.BoardID, note.Content, note.Done, note.ArchivedAt, note.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update note: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("note %s: %w", note.ID, domain.ErrNotFound)
	}

	// The checklist is written as a whole: every item of note is upserted and
	// anything else stored under the note is removed. Concurrent saves resolve
	// to the last full list instead of a merge of two deltas.
	keep := make([]string, 0, len(note.ChecklistItems))
	seen := make(map[string]struct{}, len(note.ChecklistItems))
	write := func(it domain.ChecklistItem) error {
		if _, ok := seen[it.ID]; ok {
			return nil
		}
		seen[it.ID] = struct{}{}
		keep = append(keep, it.ID)
		return upsertItem(ctx, tx, note.ID, it)
	}
	for _, it := range note.ChecklistItems {
		if err := write(it); err != nil {
			return nil, err
		}
	}
	for _, it := range changes.Created {
		if err := write(it); err != nil {
			return nil, err
		}
	}
	for _, u := range changes.Updated {
		if err := write(u.Item); err != nil {
			return nil, err
		}
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM checklist_items WHERE note_id=$1 AND NOT (id = ANY($2::text[]))`,
		note.ID, keep,
	); err != nil {
		return nil, fmt.Errorf("delete stale checklist items: %w", err)
	}

	items, err := listItems(ctx, tx, note.ID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit save note: %w", err)
	}
	note.ChecklistItems = items
	return &note, nil
}

// upsertItem writes it under noteID. An id already owned by another note is
// rejected.
func upsertItem(ctx context.Context, tx *sql.Tx, noteID string, it domain.ChecklistItem) error {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO checklist_items (id, note_id, content, checked, sort_order)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET content=EXCLUDED.content, checked=EXCLUDED.checked, sort_order=EXCLUDED.sort_order
		WHERE checklist_items.note_id = EXCLUDED.note_id
	`, it.ID, noteID, it.Content, it.Checked, it.Order)
	if err != nil {
		return fmt.Errorf("upsert checklist item %s: %w", it.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return &domain.ValidationError{
			Field: "checklistItems.id",
			Err:   fmt.Errorf("%w: %s belongs to another note", domain.ErrDuplicateItem, it.ID),
		}
	}
	return nil
}

// SetSlackMessageID records the reference of the message announcing the note.
func (s *PostgresStore) SetSlackMessageID(ctx context.Context, noteID, ref string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE notes SET slack_message_id=$2 WHERE id=$1`, noteID, ref)
	if err != nil {
		return fmt.Errorf("set slack message id: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetBoard(ctx context.Context, boardID string) (*domain.Board, error) {
	var b domain.Board
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, organization_id, send_slack_updates FROM boards WHERE id=$1
	`, boardID).Scan(&b.ID, &b.Name, &b.OrganizationID, &b.SendSlackUpdates)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("board %s: %w", boardID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read board %s: %w", boardID, err)
	}
	return &b, nil
}

func (s *PostgresStore) GetOrganization(ctx context.Context, orgID string) (*domain.Organization, error) {
	var o domain.Organization
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, slack_webhook_url FROM organizations WHERE id=$1
	`, orgID).Scan(&o.ID, &o.Name, &o.SlackWebhookURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("organization %s: %w", orgID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read organization %s: %w", orgID, err)
	}
	return &o, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var u domain.User
	err := s.db.QueryRowContext(ctx, `SELECT id, name, email FROM users WHERE id=$1`, userID).Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %s: %w", userID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read user %s: %w", userID, err)
	}
	return &u, nil
}

// EnsureUser upserts the authenticated actor so notifications can resolve a
// display name.
func (s *PostgresStore) EnsureUser(ctx context.Context, u domain.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, name, email) VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE users.name END,
		    email = CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE users.email END
	`, u.ID, u.Name, u.Email)
	if err != nil {
		return fmt.Errorf("ensure user: %w", err)
	}
	return nil
}
