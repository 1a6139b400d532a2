package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

const maxMediaBytes = 25 << 20 // 25 MB

// WebhookClient talks to a transport bridge over HTTP: outbound messages are
// POSTed to the configured reply URL, attachments are fetched from the media
// URL carried by the event.
type WebhookClient struct {
	replyURL string
	token    string
	http     *http.Client
}

func NewWebhookClient(replyURL, token string) *WebhookClient {
	return &WebhookClient{
		replyURL: replyURL,
		token:    token,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

type outboundMessage struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

func (c *WebhookClient) Reply(ctx context.Context, ev *models.Event, text string) error {
	if ev == nil {
		return errors.New("event required")
	}
	return c.Send(ctx, ev.ChatID, text)
}

func (c *WebhookClient) Send(ctx context.Context, chatID, text string) error {
	if c.replyURL == "" {
		return errors.New("reply url not configured")
	}
	payload, err := json.Marshal(outboundMessage{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.replyURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("send message: transport returned %s", resp.Status)
	}
	return nil
}

func (c *WebhookClient) Download(ctx context.Context, ev *models.Event) (*Media, error) {
	if ev == nil || ev.MediaURL == "" {
		return nil, errors.New("event has no media url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ev.MediaURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download media: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download media: transport returned %s", resp.Status)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read media: %w", err)
	}
	if len(data) > maxMediaBytes {
		return nil, errors.New("media exceeds size limit")
	}
	mime := ev.MimeType
	if mime == "" {
		mime = resp.Header.Get("Content-Type")
	}
	return &Media{Data: data, MimeType: mime, Filename: ev.Filename}, nil
}
