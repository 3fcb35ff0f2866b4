package notify

import (
	"context"
	"fmt"
	"strings"
	"time"

	"rental-tracker/models"
)

// Title is the headline of every new-listing notification.
const Title = "A wild listing appeared!"

// Message is one rendered notification.
type Message struct {
	Title   string
	Body    string
	URL     string
	Listing models.Listing
}

// Channel delivers messages to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// NotificationError is a failed delivery. It is logged, never retried.
type NotificationError struct {
	Channel string
	Err     error
}

func (e *NotificationError) Error() string {
	return fmt.Sprintf("notification via %s failed: %v", e.Channel, e.Err)
}

func (e *NotificationError) Unwrap() error {
	return e.Err
}

// NewMessage renders the notification for a newly seen listing.
func NewMessage(l models.Listing) Message {
	var ref string
	if len(l.Refs) > 0 {
		ref = l.Refs[0]
	}

	var sb strings.Builder
	sb.WriteString(l.Address)
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("$%d | %s bd / %s ba", l.Price, formatCount(l.Beds), formatCount(l.Baths)))
	if l.AvailableDate != "" {
		sb.WriteString(" | available ")
		sb.WriteString(l.AvailableDate)
	}
	if ref != "" {
		sb.WriteString("\n")
		sb.WriteString(ref)
	}

	return Message{
		Title:   Title,
		Body:    sb.String(),
		URL:     ref,
		Listing: l,
	}
}

func formatCount(v float64) string {
	return strings.TrimSuffix(fmt.Sprintf("%.1f", v), ".0")
}

func firstSeen(l models.Listing) string {
	if l.Timestamp == 0 {
		return ""
	}
	return time.Unix(0, l.Timestamp).UTC().Format(time.RFC3339)
}
