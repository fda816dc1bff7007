// Package telegram hosts the Telegram client. It turns updates into router
// events for the dispatcher and sends replies and invoices back.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"astro_bot/internal/config"
	"astro_bot/internal/domain"
	"astro_bot/internal/i18n"
	"astro_bot/internal/logging"
	"astro_bot/internal/router"
)

type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	SendInvoice(ctx context.Context, params *bot.SendInvoiceParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
	AnswerPreCheckoutQuery(ctx context.Context, params *bot.AnswerPreCheckoutQueryParams) (bool, error)
}

// EventSink receives normalized events. The engine dispatcher implements it.
type EventSink interface {
	Dispatch(ev router.Event) error
}

// PaymentChecker validates an invoice before the platform charges the user.
type PaymentChecker interface {
	CheckPayment(userID int64, payload, currency string, amount int) (router.Plan, error)
}

// PayerProfiles looks up the paying user before a charge is accepted.
type PayerProfiles interface {
	Get(ctx context.Context, userID int64) (domain.Profile, error)
}

// Option configures a Client.
type Option func(*Client)

// WithPayerProfiles makes pre-checkout refuse payers that already hold
// lifetime premium.
func WithPayerProfiles(profiles PayerProfiles) Option {
	return func(c *Client) {
		c.payers = profiles
	}
}

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"callback_query",
		"pre_checkout_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Client wraps the Telegram bot instance and logging dependencies.
type Client struct {
	api      botAPI
	payments PaymentChecker
	payers   PayerProfiles
	sink     EventSink
	logger   *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling. Updates are
// forwarded to the sink passed to Start.
func NewClient(cfg config.Config, payments PaymentChecker, logger *logrus.Entry, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if payments == nil {
		return nil, errors.New("payment checker is required")
	}

	c := &Client{
		payments: payments,
		logger:   logging.Component(logger, "telegram"),
	}
	for _, opt := range opts {
		opt(c)
	}

	// One worker running handlers inline keeps updates in polling order.
	api, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(errorHandler(c.logger)),
		bot.WithWorkers(1),
		bot.WithNotAsyncHandlers(),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}
	c.api = api

	return c, nil
}

// Sender returns the outbound side of the client.
func (c *Client) Sender() *Sender {
	return NewSender(c.api, c.logger)
}

// Start begins receiving updates via long polling until ctx is canceled.
func (c *Client) Start(ctx context.Context, sink EventSink) {
	c.sink = sink

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.api.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	if update.PreCheckoutQuery != nil {
		c.answerPreCheckout(ctx, update.PreCheckoutQuery)
		return
	}
	if update.CallbackQuery != nil {
		c.answerCallback(ctx, update.CallbackQuery.ID)
	}

	ev, ok := toEvent(update)
	meta := extractUpdateMeta(update)
	log := c.logger.WithFields(logging.Fields{
		"event":       "telegram_update",
		"update_type": meta.updateType,
		"user_id":     meta.userID,
		"chat_id":     meta.chatID,
	})
	if !ok {
		log.Debug("telegram update ignored")
		return
	}
	log.WithField("kind", ev.Kind.String()).Debug("telegram update received")

	if c.sink == nil {
		log.Warn("telegram update dropped: no event sink")
		return
	}
	if err := c.sink.Dispatch(ev); err != nil {
		log.WithError(err).WithField("event", "telegram_dispatch_failed").Warn("failed to queue telegram update")
	}
}

func (c *Client) answerCallback(ctx context.Context, id string) {
	if _, err := c.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{CallbackQueryID: id}); err != nil {
		c.logger.WithError(err).WithField("event", "callback_answer_failed").Warn("failed to answer callback query")
	}
}

// answerPreCheckout accepts only invoices this bot issued to the paying user,
// for a known plan at its current price. Payers with lifetime premium are
// refused since the payment would credit nothing.
func (c *Client) answerPreCheckout(ctx context.Context, q *models.PreCheckoutQuery) {
	params := &bot.AnswerPreCheckoutQueryParams{PreCheckoutQueryID: q.ID, OK: true}

	log := c.logger.WithFields(logging.Fields{
		"event":    "pre_checkout",
		"user_id":  userID(q.From),
		"payload":  q.InvoicePayload,
		"amount":   q.TotalAmount,
		"currency": q.Currency,
	})
	if lang, key, err := c.checkPreCheckout(ctx, q); err != nil {
		params.OK = false
		params.ErrorMessage = i18n.T(lang, key)
		log = log.WithError(err)
	}

	if _, err := c.api.AnswerPreCheckoutQuery(ctx, params); err != nil {
		log.WithError(err).Error("failed to answer pre-checkout query")
		return
	}
	log.WithField("ok", params.OK).Info("pre-checkout query answered")
}

// checkPreCheckout returns the language and message key to show when the
// charge is refused.
func (c *Client) checkPreCheckout(ctx context.Context, q *models.PreCheckoutQuery) (domain.Language, string, error) {
	lang := domain.DefaultLanguage
	payer := userID(q.From)
	if _, err := c.payments.CheckPayment(payer, q.InvoicePayload, q.Currency, q.TotalAmount); err != nil {
		return lang, i18n.PaymentInvalid, err
	}
	if c.payers == nil {
		return lang, "", nil
	}

	p, err := c.payers.Get(ctx, payer)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return lang, "", nil
	case err != nil:
		return lang, i18n.RetryLater, fmt.Errorf("load payer profile: %w", err)
	case p.IsLifetime():
		return p.Lang(), i18n.AlreadyLifetime, fmt.Errorf("%w: user %d already has lifetime premium", domain.ErrValidation, payer)
	}
	return lang, "", nil
}

// toEvent normalizes an update. Updates without a sender, edits and service
// messages are ignored.
func toEvent(update *models.Update) (router.Event, bool) {
	switch {
	case update.Message != nil:
		msg := update.Message
		if msg.From == nil {
			return router.Event{}, false
		}
		ev := router.Event{Identity: domain.Identity{
			UserID:    msg.From.ID,
			ChatID:    msg.Chat.ID,
			FirstName: msg.From.FirstName,
		}}

		switch {
		case msg.SuccessfulPayment != nil:
			ev.Kind = router.KindPayment
			ev.Payment = &router.Payment{
				Payload:  msg.SuccessfulPayment.InvoicePayload,
				Currency: msg.SuccessfulPayment.Currency,
				Amount:   msg.SuccessfulPayment.TotalAmount,
				ChargeID: msg.SuccessfulPayment.TelegramPaymentChargeID,
			}
		case msg.Location != nil:
			ev.Kind = router.KindLocation
			ev.Location = &router.Location{Latitude: msg.Location.Latitude, Longitude: msg.Location.Longitude}
		default:
			text := strings.TrimSpace(msg.Text)
			if text == "" {
				return router.Event{}, false
			}
			if cmd, args, ok := router.ParseCommand(text); ok {
				ev.Kind = router.KindCommand
				ev.Command = cmd
				ev.Args = args
			} else {
				ev.Kind = router.KindText
				ev.Text = text
			}
		}
		return ev, true

	case update.CallbackQuery != nil:
		q := update.CallbackQuery
		cb, ok := router.ParseCallback(q.Data)
		if !ok {
			return router.Event{}, false
		}
		chat := messageChatID(q.Message)
		if chat == 0 {
			// Private chat ids equal the user id.
			chat = q.From.ID
		}
		return router.Event{
			Kind: router.KindCallback,
			Identity: domain.Identity{
				UserID:    q.From.ID,
				ChatID:    chat,
				FirstName: q.From.FirstName,
			},
			Callback:   cb,
			CallbackID: q.ID,
		}, true

	default:
		return router.Event{}, false
	}
}

type updateMeta struct {
	userID     int64
	chatID     int64
	updateType string
}

func extractUpdateMeta(update *models.Update) updateMeta {
	switch {
	case update.Message != nil:
		return updateMeta{
			userID:     userID(update.Message.From),
			chatID:     chatID(&update.Message.Chat),
			updateType: "message",
		}
	case update.EditedMessage != nil:
		return updateMeta{
			userID:     userID(update.EditedMessage.From),
			chatID:     chatID(&update.EditedMessage.Chat),
			updateType: "edited_message",
		}
	case update.CallbackQuery != nil:
		return updateMeta{
			userID:     userID(&update.CallbackQuery.From),
			chatID:     messageChatID(update.CallbackQuery.Message),
			updateType: "callback_query",
		}
	case update.PreCheckoutQuery != nil:
		return updateMeta{userID: userID(update.PreCheckoutQuery.From), updateType: "pre_checkout_query"}
	default:
		return updateMeta{updateType: "unknown"}
	}
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func chatID(chat *models.Chat) int64 {
	if chat == nil {
		return 0
	}

	return chat.ID
}

func messageChatID(msg models.MaybeInaccessibleMessage) int64 {
	switch msg.Type {
	case models.MaybeInaccessibleMessageTypeMessage:
		if msg.Message == nil {
			return 0
		}
		return chatID(&msg.Message.Chat)
	case models.MaybeInaccessibleMessageTypeInaccessibleMessage:
		if msg.InaccessibleMessage == nil {
			return 0
		}
		return chatID(&msg.InaccessibleMessage.Chat)
	default:
		return 0
	}
}
