package notify

import (
	"context"
	"fmt"
	"strconv"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/MuhammetEminGerim/autosniper/internal/models"
)

// TelegramChannel delivers notifications through a Telegram bot. Users who
// have not linked a chat or disabled Telegram are skipped silently.
type TelegramChannel struct {
	bot *tgbotapi.BotAPI
}

func NewTelegramChannel(bot *tgbotapi.BotAPI) *TelegramChannel {
	return &TelegramChannel{bot: bot}
}

func (c *TelegramChannel) Name() string { return "telegram" }

func (c *TelegramChannel) Send(ctx context.Context, user *models.User, msg Message) error {
	if !user.TelegramEnabled || user.TelegramChatID == "" {
		return nil
	}

	chatID, err := strconv.ParseInt(user.TelegramChatID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid telegram chat id %q: %w", user.TelegramChatID, err)
	}

	text := fmt.Sprintf("<b>%s</b>\n\n%s", msg.Title, msg.Body)
	if msg.URL != "" {
		text += fmt.Sprintf("\n\n<a href=%q>View listing</a>", msg.URL)
	}

	out := tgbotapi.NewMessage(chatID, text)
	out.ParseMode = tgbotapi.ModeHTML

	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.bot.Send(out); err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	return nil
}
