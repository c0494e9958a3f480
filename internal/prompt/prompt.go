// Package prompt renders the texts the bot sends to customers.
package prompt

import (
	"fmt"
	"strings"

	"github.com/m3rciful/printbot/internal/catalog"
	"github.com/m3rciful/printbot/internal/session"
)

// Shop is the pickup point announced once an order is accepted.
type Shop struct {
	Address string
	Phone   string
}

const (
	greeting      = "Здравствуйте! Отправьте фотографии, которые нужно напечатать."
	filesReceived = "Фотография получена. Отправьте остальные фотографии, а когда загрузите все, напишите: Все"
	filesReminder = "Если Вы загрузили все фотографии, напишите: Все"
	ready         = "Если Вы загрузили все фотографии, то отправьте слово: Готово"
	wait          = "Оформляем заказ, пожалуйста, подождите..."
	failed        = "Не удалось оформить заказ. Пожалуйста, отправьте фотографии заново."
	cancelled     = "Ваш заказ отменен"
	abandoned     = "Заказ отменен, из-за длительного ожидания"
)

// Greeting opens a conversation that started with text.
func Greeting() string { return greeting }

// FilesReceived opens a conversation that started with an image.
func FilesReceived() string { return filesReceived }

// Files asks for images, or for the "all sent" confirmation once some arrived.
func Files(hasFiles bool) string {
	if hasFiles {
		return filesReminder
	}
	return greeting
}

// Paper lists paper types as a 1-based menu.
func Paper(cat *catalog.Catalog) string {
	var b strings.Builder
	b.WriteString("Выберите тип бумаги: \n")
	for i, name := range cat.Papers() {
		fmt.Fprintf(&b, "%d - %s\n", i+1, name)
	}
	return b.String()
}

// Size lists the sizes of paper as a 1-based menu.
func Size(cat *catalog.Catalog, paper string) string {
	var b strings.Builder
	b.WriteString("Выберите размер фотографий: \n")
	for i, s := range cat.Sizes(paper) {
		fmt.Fprintf(&b, "%d - %s %dруб/шт\n", i+1, s.Label, s.Price)
	}
	return b.String()
}

// Ready asks the customer to confirm the order.
func Ready() string { return ready }

// Wait is sent right before the order is submitted.
func Wait() string { return wait }

// Accepted confirms a submitted order.
func Accepted(orderID string, shop Shop) string {
	return fmt.Sprintf("Ваш заказ %s принят!\n\nПолучение по адресу: %s\nтел: %s", orderID, shop.Address, shop.Phone)
}

// Failed reports that the order system rejected the order.
func Failed() string { return failed }

// Cancelled confirms a customer cancellation.
func Cancelled() string { return cancelled }

// Abandoned announces eviction of an idle session.
func Abandoned() string { return abandoned }

// AdminFailure tells the shop admin which order could not be submitted.
func AdminFailure(order fmt.Stringer, err error) string {
	return fmt.Sprintf("Ошибка оформления заказа: %v\n\n%s", err, order)
}

// Phase returns the prompt that matches the session's current phase.
func Phase(cat *catalog.Catalog, s *session.Session) string {
	switch s.State {
	case session.PaperRequested:
		return Paper(cat)
	case session.SizeRequested:
		if len(cat.Sizes(s.Paper)) == 0 {
			return Paper(cat)
		}
		return Size(cat, s.Paper)
	case session.SizeSelected:
		return Ready()
	default:
		return Files(s.HasFiles())
	}
}
