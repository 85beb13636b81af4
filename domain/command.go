package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New()

// SendMessageCommand is the payload of a send request as received from a connection.
type SendMessageCommand struct {
	ConversationID ConversationID `validate:"required"`
	Content        string
	Type           MessageType  `validate:"required,oneof=text image file system"`
	ReplyToID      *uuid.UUID
	Attachments    []Attachment `validate:"max=10,dive"`
	IdempotencyKey string       `validate:"max=128"`
}

// Validate checks the command shape. maxContentLength is expressed in runes.
func (c SendMessageCommand) Validate(maxContentLength int) error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if strings.TrimSpace(c.Content) == "" && len(c.Attachments) == 0 {
		return fmt.Errorf("content is empty and no attachment is provided")
	}
	if maxContentLength > 0 && utf8.RuneCountInString(c.Content) > maxContentLength {
		return fmt.Errorf("content exceeds %d characters", maxContentLength)
	}
	for _, a := range c.Attachments {
		if err := ValidateAttachment(a); err != nil {
			return err
		}
	}
	return nil
}

// ValidateAttachment rejects MIME types unknown to the detection table.
func ValidateAttachment(a Attachment) error {
	// text types are registered with their charset parameter
	if mimetype.Lookup(a.MimeType) == nil && mimetype.Lookup(a.MimeType+"; charset=utf-8") == nil {
		return fmt.Errorf("unsupported attachment type %q", a.MimeType)
	}
	return nil
}

func (c SendMessageCommand) ToNewMessage(sender UserID) NewMessage {
	return NewMessage{
		ConversationID: c.ConversationID,
		SenderID:       sender,
		Content:        c.Content,
		Type:           c.Type,
		ReplyToID:      c.ReplyToID,
		Attachments:    c.Attachments,
		IdempotencyKey: c.IdempotencyKey,
	}
}
