package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pasky/muaddib-sub002/internal/migrations"
	"github.com/pasky/muaddib-sub002/pkg/models"
)

// SQLiteStore is the modernc.org/sqlite-backed Store implementation
// (pure-Go, no cgo — matching the teacher's embedded-database choice).
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the SQLite database at path and runs
// pending schema migrations via golang-migrate.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: serialize writers

	if err := migrate_Apply(db, "history"); err != nil {
		db.Close()
		return nil, fmt.Errorf("history: migrating %s: %w", path, err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func migrate_Apply(db *sql.DB, subdir string) error {
	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		return err
	}
	src, err := iofs.New(migrations.FS, subdir)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}

func (s *SQLiteStore) AddMessage(ctx context.Context, msg StoredMessage) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (arc, platform_id, role, content, mode, created_at, chronicled)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		msg.Arc, msg.PlatformID, string(msg.Role), msg.Content, msg.Mode, msg.CreatedAt.UTC(), msg.Chronicled)
	if err != nil {
		return 0, fmt.Errorf("history: inserting message: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) GetContext(ctx context.Context, arc string, limit int) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, arc, platform_id, role, content, mode, created_at, chronicled
		 FROM messages WHERE arc = ? ORDER BY id DESC LIMIT ?`, arc, limit)
	if err != nil {
		return nil, fmt.Errorf("history: querying context: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	reverse(msgs)
	return msgs, nil
}

func (s *SQLiteStore) GetFullHistory(ctx context.Context, arc string) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, arc, platform_id, role, content, mode, created_at, chronicled
		 FROM messages WHERE arc = ? ORDER BY id ASC`, arc)
	if err != nil {
		return nil, fmt.Errorf("history: querying full history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) GetRecentMessagesSince(ctx context.Context, arc string, since time.Time) ([]StoredMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, arc, platform_id, role, content, mode, created_at, chronicled
		 FROM messages WHERE arc = ? AND created_at >= ? ORDER BY id ASC`, arc, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("history: querying messages since: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func (s *SQLiteStore) MarkChronicled(ctx context.Context, ids []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: beginning transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE messages SET chronicled = 1 WHERE id = ?`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("history: marking %d chronicled: %w", id, err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) CountRecentUnchronicled(ctx context.Context, arc string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE arc = ? AND chronicled = 0`, arc).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: counting unchronicled: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) CountMessagesSince(ctx context.Context, arc string, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE arc = ? AND created_at >= ?`, arc, since.UTC()).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("history: counting messages since: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) GetArcCostToday(ctx context.Context, arc string) (float64, error) {
	midnight := time.Now().UTC().Truncate(24 * time.Hour)
	var total sql.NullFloat64
	err := s.db.QueryRowContext(ctx,
		`SELECT SUM(cost_total) FROM llm_calls WHERE arc = ? AND created_at >= ?`, arc, midnight).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("history: summing arc cost: %w", err)
	}
	return total.Float64, nil
}

func (s *SQLiteStore) LogLLMCall(ctx context.Context, rec LLMCallRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_calls (arc, model, input_tokens, output_tokens, cost_total, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Arc, rec.Model, rec.Usage.Input, rec.Usage.Output, rec.Usage.Cost.Total, rec.CreatedAt.UTC())
	if err != nil {
		return 0, fmt.Errorf("history: logging llm call: %w", err)
	}
	return res.LastInsertId()
}

func (s *SQLiteStore) UpdateLLMCallResponse(ctx context.Context, id int64, usage models.Usage) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE llm_calls SET input_tokens = ?, output_tokens = ?, cost_total = ? WHERE id = ?`,
		usage.Input, usage.Output, usage.Cost.Total, id)
	if err != nil {
		return fmt.Errorf("history: updating llm call %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) UpdateMessageByPlatformID(ctx context.Context, arc, platformID, newContent string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE messages SET content = ? WHERE arc = ? AND platform_id = ?`, newContent, arc, platformID)
	if err != nil {
		return fmt.Errorf("history: updating message by platform id: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessageIDByPlatformID(ctx context.Context, arc, platformID string) (int64, bool, error) {
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM messages WHERE arc = ? AND platform_id = ?`, arc, platformID).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("history: looking up message by platform id: %w", err)
	}
	return id, true, nil
}

func scanMessages(rows *sql.Rows) ([]StoredMessage, error) {
	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		var role string
		if err := rows.Scan(&m.ID, &m.Arc, &m.PlatformID, &role, &m.Content, &m.Mode, &m.CreatedAt, &m.Chronicled); err != nil {
			return nil, fmt.Errorf("history: scanning message row: %w", err)
		}
		m.Role = models.Role(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func reverse(msgs []StoredMessage) {
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
}
