package model

import "time"

// ResumeToken is the last change-feed position a stream processed successfully.
type ResumeToken struct {
	ID    string    `gorm:"primaryKey;size:64" json:"id"`
	Seq   uint64    `gorm:"not null" json:"seq"`
	Event string    `gorm:"size:36;not null" json:"event"`
	Date  time.Time `gorm:"not null" json:"date"`
}

func (ResumeToken) TableName() string { return "resume_token" }
