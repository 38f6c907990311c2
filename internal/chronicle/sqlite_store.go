package chronicle

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/golang-migrate/migrate/v4"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/pasky/muaddib-sub002/internal/migrations"
)

// SQLiteStore is the modernc.org/sqlite-backed Store implementation.
// rollMu serializes RollIfDue per arc so two concurrent callers never
// both roll the same arc's chapter (SPEC_FULL.md §12 "one roll per arc
// at a time").
type SQLiteStore struct {
	db     *sql.DB
	rollMu sync.Map // arc string -> *sync.Mutex
}

// Open opens (creating if needed) the chronicle database at path and
// applies pending migrations.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("chronicle: opening %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	driver, err := sqlitemigrate.WithInstance(db, &sqlitemigrate.Config{})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("chronicle: migration driver: %w", err)
	}
	src, err := iofs.New(migrations.FS, "chronicle")
	if err != nil {
		db.Close()
		return nil, err
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		db.Close()
		return nil, fmt.Errorf("chronicle: migrating: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func (s *SQLiteStore) arcLock(arc string) *sync.Mutex {
	v, _ := s.rollMu.LoadOrStore(arc, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (s *SQLiteStore) GetOrOpenCurrentChapter(ctx context.Context, arc string) (Chapter, error) {
	ch, ok, err := s.currentChapter(ctx, arc)
	if err != nil {
		return Chapter{}, err
	}
	if ok {
		return ch, nil
	}
	return s.openChapter(ctx, arc, 1)
}

func (s *SQLiteStore) currentChapter(ctx context.Context, arc string) (Chapter, bool, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, arc, chapter_number, opened_at, closed_at FROM chapters
		 WHERE arc = ? AND closed_at IS NULL ORDER BY chapter_number DESC LIMIT 1`, arc)
	ch, err := scanChapter(row)
	if err == sql.ErrNoRows {
		return Chapter{}, false, nil
	}
	if err != nil {
		return Chapter{}, false, fmt.Errorf("chronicle: querying current chapter: %w", err)
	}
	return ch, true, nil
}

func (s *SQLiteStore) openChapter(ctx context.Context, arc string, number int) (Chapter, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chapters (arc, chapter_number, opened_at) VALUES (?, ?, ?)`, arc, number, now)
	if err != nil {
		return Chapter{}, fmt.Errorf("chronicle: opening chapter: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Chapter{}, err
	}
	return Chapter{ID: id, Arc: arc, ChapterNumber: number, OpenedAt: now}, nil
}

func (s *SQLiteStore) AppendParagraph(ctx context.Context, chapterID int64, text string) (Paragraph, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO paragraphs (chapter_id, text, created_at) VALUES (?, ?, ?)`, chapterID, text, now)
	if err != nil {
		return Paragraph{}, fmt.Errorf("chronicle: appending paragraph: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Paragraph{}, err
	}
	return Paragraph{ID: id, ChapterID: chapterID, Text: text, CreatedAt: now}, nil
}

func (s *SQLiteStore) RenderChapter(ctx context.Context, chapterID int64) (string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM paragraphs WHERE chapter_id = ? ORDER BY id ASC`, chapterID)
	if err != nil {
		return "", fmt.Errorf("chronicle: rendering chapter: %w", err)
	}
	defer rows.Close()

	var parts []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return "", err
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), rows.Err()
}

func (s *SQLiteStore) RenderChapterRelative(ctx context.Context, arc string, offset int) (string, error) {
	current, ok, err := s.currentChapter(ctx, arc)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	targetNumber := current.ChapterNumber - offset
	if targetNumber < 1 {
		return "", nil
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT id FROM chapters WHERE arc = ? AND chapter_number = ?`, arc, targetNumber)
	var id int64
	if err := row.Scan(&id); err == sql.ErrNoRows {
		return "", nil
	} else if err != nil {
		return "", fmt.Errorf("chronicle: looking up chapter %d: %w", targetNumber, err)
	}
	return s.RenderChapter(ctx, id)
}

func (s *SQLiteStore) GetChapterContextMessages(ctx context.Context, arc string, maxParagraphs int) ([]string, error) {
	current, ok, err := s.currentChapter(ctx, arc)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT text FROM paragraphs WHERE chapter_id = ? ORDER BY id DESC LIMIT ?`, current.ID, maxParagraphs)
	if err != nil {
		return nil, fmt.Errorf("chronicle: querying chapter context: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, err
		}
		out = append(out, text)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, rows.Err()
}

func (s *SQLiteStore) RollIfDue(ctx context.Context, arc string, paragraphCount, threshold int) (bool, error) {
	lock := s.arcLock(arc)
	lock.Lock()
	defer lock.Unlock()

	if paragraphCount < threshold {
		return false, nil
	}

	current, ok, err := s.currentChapter(ctx, arc)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	now := time.Now().UTC()
	if _, err := s.db.ExecContext(ctx,
		`UPDATE chapters SET closed_at = ? WHERE id = ?`, now, current.ID); err != nil {
		return false, fmt.Errorf("chronicle: closing chapter %d: %w", current.ID, err)
	}
	if _, err := s.openChapter(ctx, arc, current.ChapterNumber+1); err != nil {
		return false, err
	}
	return true, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChapter(r rowScanner) (Chapter, error) {
	var ch Chapter
	var closedAt sql.NullTime
	if err := r.Scan(&ch.ID, &ch.Arc, &ch.ChapterNumber, &ch.OpenedAt, &closedAt); err != nil {
		return Chapter{}, err
	}
	if closedAt.Valid {
		ch.ClosedAt = &closedAt.Time
	}
	return ch, nil
}
