// Package whatsapp is the Green API transport: it receives customer messages
// through the /hook webhook or receiveNotification polling and sends replies
// with sendMessage.
package whatsapp

import (
	"strings"

	"github.com/m3rciful/printbot/internal/intake"
)

const (
	webhookIncoming = "incomingMessageReceived"

	typeText         = "textMessage"
	typeExtendedText = "extendedTextMessage"
	typeImage        = "imageMessage"
	typeDocument     = "documentMessage"
)

// HookRoot is the webhook body posted by Green API.
type HookRoot struct {
	TypeWebhook    string       `json:"typeWebhook"`
	IDMessage      string       `json:"idMessage,omitempty"`
	SenderData     *SenderData  `json:"senderData,omitempty"`
	MessageData    *MessageData `json:"messageData,omitempty"`
	StatusInstance string       `json:"statusInstance,omitempty"`
}

// SenderData identifies the chat a message came from.
type SenderData struct {
	ChatID     string `json:"chatId"`
	Sender     string `json:"sender,omitempty"`
	SenderName string `json:"senderName"`
}

// MessageData carries the message payload; which field is set depends on TypeMessage.
type MessageData struct {
	TypeMessage             string                   `json:"typeMessage"`
	TextMessageData         *TextMessageData         `json:"textMessageData,omitempty"`
	ExtendedTextMessageData *ExtendedTextMessageData `json:"extendedTextMessageData,omitempty"`
	FileMessageData         *FileMessageData         `json:"fileMessageData,omitempty"`
}

// TextMessageData is a plain text message.
type TextMessageData struct {
	TextMessage string `json:"textMessage"`
}

// ExtendedTextMessageData is a text message with link preview or quote.
type ExtendedTextMessageData struct {
	Text string `json:"text"`
}

// FileMessageData describes an uploaded file.
type FileMessageData struct {
	DownloadURL string `json:"downloadUrl"`
	Caption     string `json:"caption,omitempty"`
	FileName    string `json:"fileName,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// Notification is one receiveNotification result.
type Notification struct {
	ReceiptID int64    `json:"receiptId"`
	Body      HookRoot `json:"body"`
}

// Event converts an incoming message into an intake event. ok is false for
// webhooks that carry no customer text or image.
func (h HookRoot) Event() (intake.Event, bool) {
	if h.TypeWebhook != webhookIncoming || h.SenderData == nil || h.MessageData == nil {
		return intake.Event{}, false
	}
	ev := intake.Event{
		ChatID:       h.SenderData.ChatID,
		CustomerName: h.SenderData.SenderName,
	}
	md := h.MessageData
	switch md.TypeMessage {
	case typeText:
		if md.TextMessageData == nil {
			return intake.Event{}, false
		}
		ev.Kind, ev.Payload = intake.KindText, md.TextMessageData.TextMessage
	case typeExtendedText:
		if md.ExtendedTextMessageData == nil {
			return intake.Event{}, false
		}
		ev.Kind, ev.Payload = intake.KindText, md.ExtendedTextMessageData.Text
	case typeImage:
		if md.FileMessageData == nil || md.FileMessageData.DownloadURL == "" {
			return intake.Event{}, false
		}
		ev.Kind, ev.Payload = intake.KindImage, md.FileMessageData.DownloadURL
	case typeDocument:
		f := md.FileMessageData
		if f == nil || f.DownloadURL == "" || !strings.HasPrefix(strings.ToLower(f.MimeType), "image/") {
			return intake.Event{}, false
		}
		ev.Kind, ev.Payload = intake.KindImage, f.DownloadURL
	default:
		return intake.Event{}, false
	}
	if ev.ChatID == "" {
		return intake.Event{}, false
	}
	return ev, true
}
