package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Webhook represents a participant's subscription to an event notification.
type Webhook struct {
	WebhookID   string
	Participant common.Address
	Event       string
	URL         string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
