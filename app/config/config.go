package config

import (
	"time"

	"github.com/DataDog/datadog-go/v5/statsd"
)

var CONFIG *Config

const (
	APP_VERSION = "v1.7.0"

	// Counselor persona, composed with a per-message emotion guidance
	// fragment by lib.BuildSystemPrompt.
	PERSONA_INSTRUCTIONS = `당신은 %s 말투의 심리상담사이자 친구입니다.
답변은 3문단 이내로 짧고 따뜻하게.
감정별 가이드: %s`

	DEFAULT_TONE = "따뜻하게"
)

type Config struct {
	AppName              string
	DataDogClient        *statsd.Client
	Environment          string
	FreeResetInterval    time.Duration // zero disables the periodic free-quota reset
	ListenAddress        string
	Model                string
	MongoDBConnection    string
	MongoDBName          string
	OpenAIAPIKey         string
	PaymentURL           string
	Redis                Redis
	StatusWorkerInterval time.Duration

	// ADMIN_KEY from the environment prepended to the built-in allow-list.
	AdminKeys []string

	// operator alert bot
	TelegramSystemBotToken string
	TelegramSystemTo       string
}

type Redis struct {
	Host     string
	Port     string
	Password string
}
