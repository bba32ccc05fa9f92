package sysbot

import (
	"testing"

	"heart2heart/m/app/config"

	"github.com/stretchr/testify/assert"
)

func TestNewSystemBotRequiresToken(t *testing.T) {
	_, err := NewSystemBot(&config.Config{})
	assert.Error(t, err)
}

func TestStubSystemBotAlertsWithoutSending(t *testing.T) {
	bot := NewStubSystemBot(&config.Config{TelegramSystemTo: "12345"})

	assert.Same(t, bot, SystemBOT)
	assert.False(t, bot.enabled)
	assert.Nil(t, bot.Bot)

	// a disabled bot only logs; it must never reach for the nil client
	bot.Alert("💙 status")
	bot.Alertf("💙 %s turned %d", "heart2heart", 1)
}

func TestAlertOnNilBotIsSafe(t *testing.T) {
	var bot *Bot
	bot.Alert("dropped")
	bot.Alertf("dropped %s", "too")
}
