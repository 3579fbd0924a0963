package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CanvasDocument struct {
	ID string `gorm:"primaryKey;type:text"`

	Title     string `gorm:"type:text;not null"`
	ChannelID string `gorm:"type:text;index"`

	CreatedAt int64 `gorm:"autoCreateTime"`
	UpdatedAt int64 `gorm:"autoUpdateTime"`
}

// CanvasSection rows are ordered by Position within a document. Positions are
// rewritten densely on every edit.
type CanvasSection struct {
	ID         string `gorm:"primaryKey;type:text"`
	DocumentID string `gorm:"type:text;not null;index:idx_canvas_section_doc_pos,priority:1"`
	Position   int    `gorm:"not null;index:idx_canvas_section_doc_pos,priority:2"`
	Type       string `gorm:"type:text;not null"`
	Content    string `gorm:"type:text;not null"`
}

func (d *CanvasDocument) BeforeCreate(_ *gorm.DB) error {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	return nil
}

func (s *CanvasSection) BeforeCreate(_ *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	return nil
}

func All() []any {
	return []any{&CanvasDocument{}, &CanvasSection{}}
}
