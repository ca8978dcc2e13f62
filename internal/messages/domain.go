package messages

import "time"

// Message is a direct message between two users. Recall is sender-side
// deletion and is only possible while the message is unread.
type Message struct {
	ID          int64
	SenderID    int64
	RecipientID int64
	Subject     string
	Body        string
	ReadAt      *time.Time
	CreatedAt   time.Time
}
