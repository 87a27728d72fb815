package repositories

import (
	"context"
	"time"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/uptrace/bun"
)

var _ auction.Notifier = (*MessageRepository)(nil)

// MessageRepository delivers engine notifications as inbox messages.
type MessageRepository struct {
	db *bun.DB
}

func NewMessageRepository(db *bun.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

func (r *MessageRepository) Notify(ctx context.Context, n auction.Notification) error {
	msg := &models.Message{
		SenderID:   n.From,
		ReceiverID: n.To,
		Content:    n.Text,
		CreatedAt:  time.Now(),
	}
	if n.ListingID > 0 {
		listingID := n.ListingID
		msg.ListingID = &listingID
	}
	_, err := r.db.NewInsert().Model(msg).Exec(ctx)
	return wrap("insert", "message", err)
}

