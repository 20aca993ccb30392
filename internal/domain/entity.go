package domain

import (
	"time"

	"gorm.io/gorm"
)

// Bookmark is a saved link with optional captured content (excerpt,
// reader-mode text). Soft-deleted rows keep their history; only a hard
// delete orphans it.
type Bookmark struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"column:user_id;size:36;index" json:"user_id"`
	URL       string         `gorm:"column:url;size:2048" json:"url"`
	Title     string         `gorm:"column:title;size:255" json:"title"`
	Content   *string        `gorm:"column:content;type:longtext" json:"content,omitempty"`
	Meta      Metadata       `gorm:"column:meta;type:json" json:"meta,omitempty"`
	Archived  bool           `gorm:"column:archived;default:false" json:"archived"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Bookmark) TableName() string { return "bookmarks" }

// Note is freeform user text.
type Note struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"column:user_id;size:36;index" json:"user_id"`
	Title     string         `gorm:"column:title;size:255" json:"title"`
	Content   *string        `gorm:"column:content;type:longtext" json:"content,omitempty"`
	Meta      Metadata       `gorm:"column:meta;type:json" json:"meta,omitempty"`
	Archived  bool           `gorm:"column:archived;default:false" json:"archived"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Note) TableName() string { return "notes" }

// Prompt is a reusable prompt template.
type Prompt struct {
	ID        string         `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID    string         `gorm:"column:user_id;size:36;index" json:"user_id"`
	Title     string         `gorm:"column:title;size:255" json:"title"`
	Content   *string        `gorm:"column:content;type:longtext" json:"content,omitempty"`
	Meta      Metadata       `gorm:"column:meta;type:json" json:"meta,omitempty"`
	Archived  bool           `gorm:"column:archived;default:false" json:"archived"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index" json:"-"`
}

func (Prompt) TableName() string { return "prompts" }

// LiveContent is the current state of a content item as seen by the
// history engine: just the fields reconstruction and diffing need.
type LiveContent struct {
	Content  *string
	Metadata Metadata
}
