package telegram

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"astro_bot/internal/logging"
	"astro_bot/internal/router"
)

type messageAPI interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*models.Message, error)
}

// Sender delivers replies and Stars invoices to chats.
type Sender struct {
	api    messageAPI
	logger *logrus.Entry
}

// NewSender wraps api.
func NewSender(api messageAPI, logger *logrus.Entry) *Sender {
	return &Sender{api: api, logger: logging.Component(logger, "telegram_sender")}
}

// Send posts reply to chatID with its inline keyboard, if any.
func (s *Sender) Send(ctx context.Context, chatID int64, reply router.Reply) error {
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   reply.Text,
	}
	if markup := inlineKeyboard(reply.Keyboard); markup != nil {
		params.ReplyMarkup = markup
	}

	if _, err := s.api.SendMessage(ctx, params); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// SendInvoice issues a Telegram Stars invoice. Stars invoices carry no
// provider token and exactly one price.
func (s *Sender) SendInvoice(ctx context.Context, chatID int64, invoice router.Invoice) error {
	if chatID == 0 {
		return errors.New("chat id is required")
	}

	params := &bot.SendInvoiceParams{
		ChatID:      chatID,
		Title:       invoice.Title,
		Description: invoice.Description,
		Payload:     invoice.Payload,
		Currency:    router.CurrencyStars,
		Prices: []models.LabeledPrice{
			{Label: invoice.Title, Amount: invoice.Plan.Stars},
		},
	}

	if _, err := s.api.SendInvoice(ctx, params); err != nil {
		return fmt.Errorf("send invoice: %w", err)
	}

	s.logger.WithFields(logging.Fields{
		"event":   "invoice_issued",
		"chat_id": chatID,
		"plan":    invoice.Plan.ID,
		"stars":   invoice.Plan.Stars,
	}).Debug("stars invoice issued")
	return nil
}

func inlineKeyboard(rows [][]router.Button) *models.InlineKeyboardMarkup {
	if len(rows) == 0 {
		return nil
	}

	keyboard := make([][]models.InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]models.InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, models.InlineKeyboardButton{Text: b.Text, CallbackData: b.Data})
		}
		keyboard = append(keyboard, buttons)
	}

	return &models.InlineKeyboardMarkup{InlineKeyboard: keyboard}
}
