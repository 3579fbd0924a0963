// Package sqlstore keeps canvases in a local SQLite database. It backs the
// canvas CLI and deployments that do not have Slack canvas access.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/quailyquaily/threadbot/canvas"
	"github.com/quailyquaily/threadbot/db"
	"github.com/quailyquaily/threadbot/db/models"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func New(gdb *gorm.DB) *Store {
	return &Store{db: gdb}
}

func Open(ctx context.Context, cfg db.Config) (*Store, error) {
	gdb, err := db.Open(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return New(gdb), nil
}

func (s *Store) List(ctx context.Context, channelID string) ([]canvas.Summary, error) {
	q := s.db.WithContext(ctx).Model(&models.CanvasDocument{})
	if channelID = strings.TrimSpace(channelID); channelID != "" {
		q = q.Where("channel_id = ?", channelID)
	}
	var docs []models.CanvasDocument
	if err := q.Order("updated_at DESC").Order("id").Find(&docs).Error; err != nil {
		return nil, fmt.Errorf("list canvases: %w", err)
	}
	out := make([]canvas.Summary, 0, len(docs))
	for _, d := range docs {
		out = append(out, summary(d))
	}
	return out, nil
}

func (s *Store) Create(ctx context.Context, title, markdown, channelID string) (canvas.Summary, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return canvas.Summary{}, fmt.Errorf("title is required")
	}
	doc := models.CanvasDocument{Title: title, ChannelID: strings.TrimSpace(channelID)}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&doc).Error; err != nil {
			return err
		}
		rows := toRows(doc.ID, canvas.SplitMarkdown(markdown))
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		return canvas.Summary{}, fmt.Errorf("create canvas: %w", err)
	}
	return summary(doc), nil
}

func (s *Store) Read(ctx context.Context, id string) (canvas.Document, error) {
	return readDocument(s.db.WithContext(ctx), id)
}

func (s *Store) Lookup(ctx context.Context, id, query string, types []string) ([]canvas.Section, error) {
	doc, err := s.Read(ctx, id)
	if err != nil {
		return nil, err
	}
	return canvas.Rank(doc.Sections, query, types), nil
}

// Edit applies all changes in one transaction; a failing change leaves the
// document untouched.
func (s *Store) Edit(ctx context.Context, id string, changes []canvas.Change) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		doc, err := readDocument(tx, id)
		if err != nil {
			return err
		}
		next, err := canvas.Apply(doc.Sections, changes, uuid.NewString)
		if err != nil {
			return err
		}
		if err := tx.Where("document_id = ?", doc.ID).Delete(&models.CanvasSection{}).Error; err != nil {
			return fmt.Errorf("clear sections: %w", err)
		}
		if rows := toRows(doc.ID, next); len(rows) > 0 {
			if err := tx.Create(&rows).Error; err != nil {
				return fmt.Errorf("write sections: %w", err)
			}
		}
		return tx.Model(&models.CanvasDocument{}).Where("id = ?", doc.ID).
			Update("updated_at", time.Now().Unix()).Error
	})
}

func readDocument(tx *gorm.DB, id string) (canvas.Document, error) {
	id = strings.TrimSpace(id)
	var doc models.CanvasDocument
	if err := tx.Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return canvas.Document{}, fmt.Errorf("%w: %s", canvas.ErrNotFound, id)
		}
		return canvas.Document{}, fmt.Errorf("read canvas: %w", err)
	}
	var rows []models.CanvasSection
	if err := tx.Where("document_id = ?", id).Order("position").Find(&rows).Error; err != nil {
		return canvas.Document{}, fmt.Errorf("read sections: %w", err)
	}
	out := canvas.Document{ID: doc.ID, Title: doc.Title, ChannelID: doc.ChannelID}
	for _, r := range rows {
		out.Sections = append(out.Sections, canvas.Section{ID: r.ID, Type: r.Type, Content: r.Content})
	}
	return out, nil
}

func toRows(docID string, sections []canvas.Section) []models.CanvasSection {
	rows := make([]models.CanvasSection, 0, len(sections))
	for i, s := range sections {
		rows = append(rows, models.CanvasSection{
			ID:         s.ID,
			DocumentID: docID,
			Position:   i,
			Type:       s.Type,
			Content:    s.Content,
		})
	}
	return rows
}

func summary(d models.CanvasDocument) canvas.Summary {
	return canvas.Summary{
		ID:        d.ID,
		Title:     d.Title,
		ChannelID: d.ChannelID,
		UpdatedAt: time.Unix(d.UpdatedAt, 0).UTC(),
	}
}
