package interfaces

import (
	"context"
	"time"

	"github.com/enquira/mailtriage/internal/enum"
)

// RawMessage is one unprocessed message pulled from the mail source.
type RawMessage struct {
	// MessageID is the stable Internet Message-ID used for deduplication
	MessageID     string
	UID           uint32
	SenderName    string
	SenderAddress string
	Subject       string
	ReceivedAt    time.Time
	RoleOfInbox   enum.RecipientRole

	// Raw is the full RFC 822 message, attachments included
	Raw []byte
}

// MailSource pulls new messages from a mailbox. Implementations must
// bound every network call with the context deadline.
type MailSource interface {
	// FetchUnread returns messages not yet marked seen on the source
	FetchUnread(ctx context.Context) ([]*RawMessage, error)

	// MarkSeen flags a message as processed on the source so the next
	// FetchUnread no longer returns it
	MarkSeen(ctx context.Context, uid uint32) error
}
