// Package orders builds finished print orders and submits them to the
// shop's order endpoint.
package orders

import (
	"fmt"
	"strings"

	"github.com/m3rciful/printbot/internal/session"
)

// Order is the payload posted to the order endpoint.
type Order struct {
	Phone     string   `json:"phone"`
	Name      string   `json:"name"`
	PaperType string   `json:"paper_type"`
	PaperSize string   `json:"paper_size"`
	Price     int      `json:"price"`
	Files     []string `json:"files"`
}

// FromSession converts a confirmed session into an order.
func FromSession(s *session.Session) Order {
	return Order{
		Phone:     PhoneFromChatID(s.ChatID),
		Name:      s.CustomerName,
		PaperType: s.Paper,
		PaperSize: s.Size,
		Price:     s.Price,
		Files:     append([]string(nil), s.Files...),
	}
}

// PhoneFromChatID strips the gateway suffix: "79140000000@c.us" -> "79140000000".
// Ids without '@' are returned unchanged.
func PhoneFromChatID(chatID string) string {
	if i := strings.IndexByte(chatID, '@'); i >= 0 {
		return chatID[:i]
	}
	return chatID
}

// String renders the summary sent to the shop admin.
func (o Order) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Телефон: %s\n", o.Phone)
	fmt.Fprintf(&b, "Имя: %s\n", o.Name)
	fmt.Fprintf(&b, "Тип бумаги: %s\n", o.PaperType)
	fmt.Fprintf(&b, "Размер: %s (%d руб/шт)\n", o.PaperSize, o.Price)
	fmt.Fprintf(&b, "Файлы (%d):", len(o.Files))
	for _, f := range o.Files {
		b.WriteString("\n")
		b.WriteString(f)
	}
	return b.String()
}
