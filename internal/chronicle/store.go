// Package chronicle implements the long-term per-arc chapter log: chapters
// accumulate paragraphs until a rollover threshold, after which a new
// chapter opens (spec §12 supplemented feature; guarded so only one roll
// happens per arc at a time).
package chronicle

import (
	"context"
	"time"
)

// Chapter is one closed or currently-open chapter of an arc's chronicle.
type Chapter struct {
	ID            int64
	Arc           string
	ChapterNumber int
	OpenedAt      time.Time
	ClosedAt      *time.Time
}

// Paragraph is one entry appended to a chapter.
type Paragraph struct {
	ID        int64
	ChapterID int64
	Text      string
	CreatedAt time.Time
}

// Store is the chronicle persistence contract.
type Store interface {
	// GetOrOpenCurrentChapter returns the arc's open chapter, creating
	// chapter 1 if none exists yet.
	GetOrOpenCurrentChapter(ctx context.Context, arc string) (Chapter, error)

	AppendParagraph(ctx context.Context, chapterID int64, text string) (Paragraph, error)

	// RenderChapter concatenates a chapter's paragraphs into chapter text.
	RenderChapter(ctx context.Context, chapterID int64) (string, error)

	// RenderChapterRelative renders the chapter `offset` chapters before
	// the arc's current open chapter (0 = current, 1 = previous, ...).
	RenderChapterRelative(ctx context.Context, arc string, offset int) (string, error)

	// GetChapterContextMessages returns a bounded tail of paragraph text
	// suitable for injecting as chapter-summary context into a prompt.
	GetChapterContextMessages(ctx context.Context, arc string, maxParagraphs int) ([]string, error)

	// RollIfDue closes the arc's current chapter and opens the next one
	// if paragraphCount has reached threshold.
	// Guarded so only one roll happens per arc at a time even under
	// concurrent callers.
	RollIfDue(ctx context.Context, arc string, paragraphCount, threshold int) (rolled bool, err error)
}
