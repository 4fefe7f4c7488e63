package model

import (
	"sort"
	"time"

	"gorm.io/datatypes"
)

// Event is one immutable command applied to one entity.
type Event struct {
	Seq              uint64            `gorm:"primaryKey;autoIncrement" json:"-"`
	ID               string            `gorm:"size:36;not null;uniqueIndex" json:"id"`
	EntityType       string            `gorm:"size:32;not null;index:idx_event_stream,priority:1" json:"entityType"`
	EntityID         string            `gorm:"size:191;not null;index:idx_event_stream,priority:2" json:"entityId"`
	Command          string            `gorm:"size:64;not null" json:"command"`
	Date             time.Time         `gorm:"not null;index:idx_event_stream,priority:3" json:"date"`
	UserID           *string           `gorm:"size:191" json:"userId,omitempty"`
	Values           datatypes.JSONMap `gorm:"column:event_values;not null" json:"values"`
	OmitFromHistory  bool              `gorm:"not null;default:false" json:"omitFromHistory,omitempty"`
	OmitFromModified bool              `gorm:"not null;default:false" json:"omitFromModified,omitempty"`
}

func (Event) TableName() string { return "event" }

// Less orders events by (entityId, date, id).
func (e Event) Less(o Event) bool {
	if e.EntityID != o.EntityID {
		return e.EntityID < o.EntityID
	}
	if !e.Date.Equal(o.Date) {
		return e.Date.Before(o.Date)
	}
	return e.ID < o.ID
}

// SortEvents sorts evts in place by (entityId, date, id).
func SortEvents(evts []Event) {
	sort.SliceStable(evts, func(i, j int) bool { return evts[i].Less(evts[j]) })
}
