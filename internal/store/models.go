package store

import "time"

type User struct {
	ID           string
	DisplayName  string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Message is one customer note as persisted by the document store.
type Message struct {
	ID        string
	Author    string
	Body      string
	CreatedAt time.Time
}

// SessionRecord is what a session store keeps for one session id.
type SessionRecord struct {
	UserID      string
	DisplayName string
	CreatedAt   time.Time
}
