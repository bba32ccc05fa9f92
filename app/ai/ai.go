// Package ai talks to the hosted completion API.
package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"heart2heart/m/app/ai/sse"
	"heart2heart/m/app/config"
	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
)

const (
	TIMEOUT = 60 * time.Second

	completionsURL = "https://api.openai.com/v1/chat/completions"
)

// ErrAuth means the API credential was rejected. Fatal for the turn, no retry.
var ErrAuth = errors.New("completion API credential rejected")

// Gateway is the surface the metering controller consumes; tests substitute
// a fake producing scripted fragment sequences.
type Gateway interface {
	ChatCompleteStreaming(ctx context.Context, completion models.ChatCompletion, cancelContext context.CancelFunc) (chan string, chan error)
}

type API struct {
	client *http.Client
}

// NewAPI creates new AI API
func NewAPI(cfg *config.Config) *API {
	return &API{
		client: &http.Client{
			Timeout: TIMEOUT,
		},
	}
}

// IsAvailable checks whether the completion API accepts our credential.
func (a *API) IsAvailable(ctx context.Context) bool {
	messages, errs := a.ChatCompleteStreaming(ctx, models.ChatCompletion{
		Model: string(models.ChatGpt4oMini),
		Messages: []models.Message{
			{
				Role:    "system",
				Content: "Reply only \"OK\" or \"Not OK\"",
			},
			{
				Role:    "user",
				Content: "test",
			},
		},
		MaxTokens: 8,
	}, func() {})

	reply := ""
	for fragment := range messages {
		reply += fragment
	}
	if err := <-errs; err != nil {
		log.Errorf("PING: API error: %+v", err)
		return false
	}

	log.Debugf("PING: API response: %+v", reply)
	return reply != ""
}

// classify maps transport failures onto the turn error taxonomy.
func classify(err error) error {
	var statusErr *sse.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden {
			return ErrAuth
		}
	}
	return err
}
