package model

import (
	"time"

	"gorm.io/datatypes"
)

// Stamp records when and by whom an entity was last touched. N counts events
// and is zero for the created stamp.
type Stamp struct {
	Date   time.Time `json:"date"`
	UserID *string   `json:"userId,omitempty"`
	N      int       `json:"n,omitempty"`
}

type Meta struct {
	Created  *Stamp `json:"created,omitempty"`
	Modified *Stamp `json:"modified,omitempty"`
	Touched  *Stamp `json:"touched,omitempty"`
}

// HistoryEntry is an event as shown in a document's history.
type HistoryEntry struct {
	ID      string         `json:"id"`
	Command string         `json:"command"`
	Date    time.Time      `json:"date"`
	UserID  *string        `json:"userId,omitempty"`
	Values  map[string]any `json:"values"`
}

// NormalizedDocument is the folded current state of one entity.
type NormalizedDocument struct {
	EntityType string                            `gorm:"primaryKey;size:32"`
	EntityID   string                            `gorm:"primaryKey;size:191"`
	Deleted    bool                              `gorm:"not null;index"`
	Meta       datatypes.JSONType[Meta]          `gorm:"column:meta"`
	History    datatypes.JSONSlice[HistoryEntry] `gorm:"column:history"`
	Values     datatypes.JSONMap                 `gorm:"column:doc_values"`
}

func (NormalizedDocument) TableName() string { return "normalized_document" }

// Document renders the normalized document in its public shape: the value
// fields plus _id, _deleted, _meta and _history.
func (d NormalizedDocument) Document() map[string]any {
	out := make(map[string]any, len(d.Values)+4)
	for k, v := range d.Values {
		out[k] = v
	}
	out["_id"] = d.EntityID
	out["_deleted"] = d.Deleted
	out["_meta"] = d.Meta.Data()
	hist := []HistoryEntry(d.History)
	if hist == nil {
		hist = []HistoryEntry{}
	}
	out["_history"] = hist
	return out
}

// String returns the string value of field, or "".
func (d NormalizedDocument) String(field string) string {
	s, _ := d.Values[field].(string)
	return s
}

// MaterializedDocument is a denormalized read view of one non-deleted entity.
type MaterializedDocument struct {
	EntityType string            `gorm:"primaryKey;size:32"`
	EntityID   string            `gorm:"primaryKey;size:191"`
	Document   datatypes.JSONMap `gorm:"column:document;not null"`
}

func (MaterializedDocument) TableName() string { return "materialized_document" }
