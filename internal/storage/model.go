package storage

import "time"

// User is a registered account
type User struct {
	Username     string    `json:"username" gorm:"primaryKey;type:varchar(255)"`
	Email        string    `json:"email" gorm:"type:varchar(255);not null"`
	PasswordHash string    `json:"-" gorm:"type:varchar(255);not null"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Message is one chat message, keyed by room and message id
type Message struct {
	Room     string `json:"room" gorm:"primaryKey;type:varchar(255)"`
	Message  string `json:"message" gorm:"primaryKey;type:varchar(64)"`
	Username string `json:"username" gorm:"type:varchar(255)"`
	Avatar   string `json:"avatar" gorm:"type:text"`
	Content  string `json:"content" gorm:"type:text"` // JSON stored as text
	Time     int64  `json:"time"`                     // epoch millis
}

// Key identifies a message and doubles as the exclusive start of the next page
type Key struct {
	Room    string `json:"room"`
	Message string `json:"message"`
}

// Page is one window of a room's history, newest first
type Page struct {
	Items []*Message
	Next  *Key // nil when the window was not full
}
