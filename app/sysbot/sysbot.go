// Package sysbot is the operator alert channel: a telegram bot that reports
// lifecycle events, store/gateway outages, applied grants and user feedback.
// Payment confirmation itself stays manual and out-of-band.
package sysbot

import (
	"fmt"
	"strconv"

	"heart2heart/m/app/config"
	"heart2heart/m/app/util"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"
)

var SystemBOT *Bot

type Bot struct {
	Bot     *telego.Bot
	ChatID  telego.ChatID
	Name    string
	enabled bool
}

func NewSystemBot(cfg *config.Config) (*Bot, error) {
	if cfg.TelegramSystemBotToken == "" {
		return nil, fmt.Errorf("system bot token is empty")
	}
	newBot, err := telego.NewBot(cfg.TelegramSystemBotToken, util.GetBotLoggerOption(cfg.Environment))
	if err != nil {
		return nil, fmt.Errorf("failed to create system bot: %w", err)
	}

	chatId, _ := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	SystemBOT = &Bot{
		Bot:     newBot,
		ChatID:  tu.ID(chatId),
		Name:    "system",
		enabled: true,
	}
	return SystemBOT, nil
}

// NewStubSystemBot only logs; used outside production.
func NewStubSystemBot(cfg *config.Config) *Bot {
	chatId, _ := strconv.ParseInt(cfg.TelegramSystemTo, 10, 64)
	SystemBOT = &Bot{
		ChatID: tu.ID(chatId),
		Name:   "system-stub",
	}
	return SystemBOT
}

// Alert delivers a message to the operator chat. Never fails the caller.
func (b *Bot) Alert(message string) {
	if b == nil {
		return
	}
	log.Infof("[sysbot] %s", message)
	if !b.enabled {
		return
	}
	_, err := b.Bot.SendMessage(tu.Message(b.ChatID, message))
	if err != nil {
		log.Errorf("Alert: failed to send message to operator: %v", err)
	}
}

// Alertf is Alert with formatting.
func (b *Bot) Alertf(format string, args ...any) {
	b.Alert(fmt.Sprintf(format, args...))
}
