package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Message is a notification row; a nil SenderID marks a system message.
type Message struct {
	bun.BaseModel `bun:"table:messages,alias:m"`

	ID         int64     `bun:"id,pk,autoincrement" json:"id"`
	SenderID   *int64    `bun:"sender_id" json:"sender_id,omitempty"`
	ReceiverID int64     `bun:"receiver_id,notnull" json:"receiver_id"`
	ListingID  *int64    `bun:"listing_id" json:"listing_id,omitempty"`
	Content    string    `bun:"content,notnull" json:"content"`
	CreatedAt  time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
}
