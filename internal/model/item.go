package model

import "time"

// Item is the domain model for a todo entry.
// ID is assigned by the backing store and never by the client.
type Item struct {
	ID        string     `json:"id" firestore:"-"`
	Text      string     `json:"text" firestore:"text"`
	CreatedAt time.Time  `json:"createdAt" firestore:"createdAt"`
	UpdatedAt *time.Time `json:"updatedAt,omitempty" firestore:"updatedAt,omitempty"`
}
