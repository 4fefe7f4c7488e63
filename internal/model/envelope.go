package model

// Envelope identifies a pushed event. It is the queue message payload and the
// command-processed announcement payload.
type Envelope struct {
	EventID    string  `json:"eventId"`
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
	UserID     *string `json:"userId,omitempty"`
}

// EnvelopeOf builds the envelope for a stored event.
func EnvelopeOf(e Event) Envelope {
	return Envelope{EventID: e.ID, EntityType: e.EntityType, EntityID: e.EntityID, UserID: e.UserID}
}

// AllModels lists the gorm models to migrate.
func AllModels() []any {
	return []any{&Event{}, &NormalizedDocument{}, &MaterializedDocument{}, &Reservation{}, &ResumeToken{}}
}
