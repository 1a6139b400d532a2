package models

// Event is one inbound message delivered by the chat transport.
type Event struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	Body      string `json:"body"`
	HasMedia  bool   `json:"has_media"`
	MediaURL  string `json:"media_url"`
	MimeType  string `json:"mime_type"`
	Filename  string `json:"filename"`
}
