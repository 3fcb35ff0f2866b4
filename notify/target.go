package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	ErrUnknownScheme = errors.New("unknown notification scheme")
	ErrInvalidTarget = errors.New("invalid notification target")
)

// Target is a parsed channel identifier.
//
//	tgram://<bot token>/<chat id>
//	json://host[:port]/path, jsons://host[:port]/path
//	sheets://<spreadsheet id>[/<sheet name>]
//	https://docs.google.com/spreadsheets/d/<spreadsheet id>/...
type Target struct {
	Scheme        string
	Token         string
	ChatID        int64
	URL           string
	SpreadsheetID string
	Sheet         string
}

// ParseTarget parses a channel identifier without connecting to anything.
func ParseTarget(id string) (Target, error) {
	id = strings.TrimSpace(id)
	scheme, rest, ok := strings.Cut(id, "://")
	if !ok || rest == "" {
		return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, id)
	}
	scheme = strings.ToLower(scheme)

	switch scheme {
	case "tgram":
		token, chat, _ := strings.Cut(rest, "/")
		chat = strings.Trim(chat, "/")
		if token == "" || chat == "" {
			return Target{}, fmt.Errorf("%w: %q needs a bot token and a chat id", ErrInvalidTarget, id)
		}
		chatID, err := strconv.ParseInt(chat, 10, 64)
		if err != nil {
			return Target{}, fmt.Errorf("%w: chat id %q: %v", ErrInvalidTarget, chat, err)
		}
		return Target{Scheme: scheme, Token: token, ChatID: chatID}, nil
	case "json":
		return Target{Scheme: scheme, URL: "http://" + rest}, nil
	case "jsons":
		return Target{Scheme: scheme, URL: "https://" + rest}, nil
	case "sheets":
		sid, sheet, _ := strings.Cut(rest, "/")
		if sid == "" {
			return Target{}, fmt.Errorf("%w: %q needs a spreadsheet id", ErrInvalidTarget, id)
		}
		return Target{Scheme: scheme, SpreadsheetID: sid, Sheet: sheet}, nil
	case "https":
		if strings.HasPrefix(rest, "docs.google.com/spreadsheets/") {
			sid := ExtractSpreadsheetID(id)
			if sid == "" {
				return Target{}, fmt.Errorf("%w: %q", ErrInvalidTarget, id)
			}
			return Target{Scheme: "sheets", SpreadsheetID: sid}, nil
		}
	}
	return Target{}, fmt.Errorf("%w: %q", ErrUnknownScheme, scheme)
}

// NewChannel connects the channel a Target describes. timeout bounds
// webhook requests.
func NewChannel(ctx context.Context, t Target, timeout time.Duration) (Channel, error) {
	switch t.Scheme {
	case "tgram":
		ch, err := NewTelegramChannel(t.Token, t.ChatID)
		if err != nil {
			return nil, err
		}
		return ch, nil
	case "json", "jsons":
		return NewWebhookChannel(t.URL, timeout), nil
	case "sheets":
		ch, err := NewSheetsChannel(ctx, t.SpreadsheetID, t.Sheet, "")
		if err != nil {
			return nil, err
		}
		return ch, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownScheme, t.Scheme)
	}
}

// OpenChannels parses and connects every identifier. Any failure is returned,
// since a misconfigured channel should stop startup rather than go silent.
func OpenChannels(ctx context.Context, ids []string, timeout time.Duration) ([]Channel, error) {
	var channels []Channel
	for _, id := range ids {
		t, err := ParseTarget(id)
		if err != nil {
			return nil, err
		}
		ch, err := NewChannel(ctx, t, timeout)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s channel: %w", t.Scheme, err)
		}
		channels = append(channels, ch)
	}
	return channels, nil
}
