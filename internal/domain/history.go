package domain

import "time"

// EntityType identifies which kind of content item a history record belongs to.
// The set is closed; anything else is rejected at the service boundary.
type EntityType string

const (
	EntityBookmark EntityType = "bookmark"
	EntityNote     EntityType = "note"
	EntityPrompt   EntityType = "prompt"
)

// AllEntityTypes returns the closed set of entity types in a stable order.
func AllEntityTypes() []EntityType {
	return []EntityType{EntityBookmark, EntityNote, EntityPrompt}
}

// ParseEntityType validates a raw string against the closed set.
func ParseEntityType(s string) (EntityType, bool) {
	t := EntityType(s)
	return t, t.Valid()
}

// Valid reports whether the entity type is one of the closed set.
func (t EntityType) Valid() bool {
	switch t {
	case EntityBookmark, EntityNote, EntityPrompt:
		return true
	}
	return false
}

// HistoryAction is the kind of mutation a history record captures.
type HistoryAction string

const (
	// Versioned actions consume a version number.
	ActionCreate  HistoryAction = "create"
	ActionUpdate  HistoryAction = "update"
	ActionRestore HistoryAction = "restore"

	// Audit actions never consume a version number and carry no content.
	ActionDelete    HistoryAction = "delete"
	ActionUndelete  HistoryAction = "undelete"
	ActionArchive   HistoryAction = "archive"
	ActionUnarchive HistoryAction = "unarchive"
)

// Versioned reports whether the action consumes a version number.
func (a HistoryAction) Versioned() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionRestore:
		return true
	}
	return false
}

// Valid reports whether the action is a known history action.
func (a HistoryAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionRestore,
		ActionDelete, ActionUndelete, ActionArchive, ActionUnarchive:
		return true
	}
	return false
}

// Provenance describes where a recorded mutation came from.
type Provenance struct {
	Source      string `json:"source"`
	AuthType    string `json:"auth_type"`
	TokenPrefix string `json:"token_prefix"`
}

// HistoryRecord is one row of the append-only content history.
//
// Version is NULL for audit actions; for versioned actions it forms a
// gap-free 1..N sequence per (user_id, entity_type, entity_id), enforced
// by the composite unique index. ContentDiff is always a reverse patch:
// applying it to this version's content yields the previous version's
// content. Rows are written once and never updated.
type HistoryRecord struct {
	ID         string        `gorm:"column:id;primaryKey;size:36" json:"id"`
	UserID     string        `gorm:"column:user_id;size:36;index:idx_history_entity_created,priority:1;uniqueIndex:idx_history_entity_version,priority:1" json:"user_id"`
	EntityType EntityType    `gorm:"column:entity_type;size:20;index:idx_history_entity_created,priority:2;uniqueIndex:idx_history_entity_version,priority:2" json:"entity_type"`
	EntityID   string        `gorm:"column:entity_id;size:36;index:idx_history_entity_created,priority:3;uniqueIndex:idx_history_entity_version,priority:3" json:"entity_id"`
	Action     HistoryAction `gorm:"column:action;size:20" json:"action"`
	Version    *int          `gorm:"column:version;uniqueIndex:idx_history_entity_version,priority:4" json:"version,omitempty"`

	ContentSnapshot  *string  `gorm:"column:content_snapshot;type:longtext" json:"content_snapshot,omitempty"`
	ContentDiff      *string  `gorm:"column:content_diff;type:longtext" json:"content_diff,omitempty"`
	MetadataSnapshot Metadata `gorm:"column:metadata_snapshot;type:json" json:"metadata_snapshot,omitempty"`

	Source      string `gorm:"column:source;size:30" json:"source"`
	AuthType    string `gorm:"column:auth_type;size:30" json:"auth_type"`
	TokenPrefix string `gorm:"column:token_prefix;size:16" json:"token_prefix"`

	// datetime(6): the retention cutoff comparison is strict and
	// second-precision rounding would move rows across it.
	CreatedAt time.Time `gorm:"column:created_at;type:datetime(6);autoCreateTime:micro;index:idx_history_entity_created,priority:4" json:"created_at"`
}

func (HistoryRecord) TableName() string { return "content_history" }

// IsAnchor reports whether the record can serve as a reconstruction
// starting point.
func (r *HistoryRecord) IsAnchor() bool {
	return r.ContentSnapshot != nil
}

// HistoryFilter narrows GetUserHistory results. Empty slices mean no
// filter for that category; categories combine with AND.
type HistoryFilter struct {
	EntityTypes []EntityType
	Actions     []HistoryAction
	Sources     []string
	From        *time.Time
	To          *time.Time
}
