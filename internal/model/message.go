package model

// Message is a full message fetched from the mailbox. BodyText has
// already been converted to plain text by the gateway client.
type Message struct {
	ID             string
	ConversationID string
	Subject        string
	BodyPreview    string
	BodyText       string
	FromAddress    string
	FromName       string
	ReceivedAt     string
	Categories     []string
}
