package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Client adapts *tgbotapi.BotAPI to domain.TelegramSender.
type Client struct {
	*tgbotapi.BotAPI
}

// NewClient authorizes against the Bot API with token.
func NewClient(token string, debug bool) (*Client, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram authorize: %w", err)
	}
	api.Debug = debug
	return &Client{BotAPI: api}, nil
}

func (c *Client) GetSelf() tgbotapi.User {
	return c.Self
}
