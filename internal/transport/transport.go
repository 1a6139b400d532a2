package transport

import (
	"context"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// Media is a downloaded attachment.
type Media struct {
	Data     []byte
	MimeType string
	Filename string
}

// Client is the chat-transport boundary. Reply and Send failures are logged
// by callers, never propagated into the state machine.
type Client interface {
	Reply(ctx context.Context, ev *models.Event, text string) error
	Send(ctx context.Context, chatID, text string) error
	Download(ctx context.Context, ev *models.Event) (*Media, error)
}
