package model

// Reservation is a uniqueness claim on (EntityType, Key, Value) held by EntityID.
type Reservation struct {
	EntityType string `gorm:"primaryKey;size:32"`
	Key        string `gorm:"primaryKey;size:64;column:reservation_key"`
	Value      string `gorm:"primaryKey;size:191"`
	EntityID   string `gorm:"size:191;not null;index"`
}

func (Reservation) TableName() string { return "reservation" }
