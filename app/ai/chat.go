// https://platform.openai.com/docs/api-reference/chat/create
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"time"
	"unicode/utf8"

	"heart2heart/m/app/ai/sse"
	"heart2heart/m/app/config"
	"heart2heart/m/app/db/redis"
	"heart2heart/m/app/lib"
	"heart2heart/m/app/models"

	log "github.com/sirupsen/logrus"
)

// https://openai.com/pricing
const (
	// gpt-4o-mini
	CHAT_GPT4O_MINI_INPUT_PRICE  = 0.15 / 1000000
	CHAT_GPT4O_MINI_OUTPUT_PRICE = 0.6 / 1000000

	// gpt-4o
	CHAT_GPT4O_INPUT_PRICE  = 5.0 / 1000000
	CHAT_GPT4O_OUTPUT_PRICE = 15.0 / 1000000

	CHARS_PER_TOKEN = 2.0 // average number of characters per token, must be tuned or moved to tiktoken

	MAX_COMPLETION_TOKENS = 2000
)

// ChatCompleteStreaming streams a completion as ordered text fragments. The
// fragment channel closes when the upstream signals completion; the error
// channel then carries at most one classified failure. Fragments must be
// concatenated in delivery order to reconstruct the reply.
func (a *API) ChatCompleteStreaming(ctx context.Context, completion models.ChatCompletion, cancelContext context.CancelFunc) (chan string, chan error) {
	timeNow := time.Now()
	if completion.Model == "" {
		completion.Model = string(models.ChatGpt4oMini)
	}

	promptTokens := 0.0
	for _, message := range completion.Messages {
		promptTokens += 4 + ApproximateTokensCount(message.Content)
	}
	if completion.MaxTokens == 0 {
		completion.MaxTokens = MAX_COMPLETION_TOKENS
	}

	usage := models.CostAndUsage{
		Engine:             models.Engine(completion.Model),
		PricePerInputUnit:  PricePerInputToken(models.Engine(completion.Model)),
		PricePerOutputUnit: PricePerOutputToken(models.Engine(completion.Model)),
		Cost:               0,
		Usage: models.Usage{
			PromptTokens: int(promptTokens),
		},
	}

	messages := make(chan string)
	errs := make(chan error, 1)

	data := map[string]interface{}{
		"max_tokens":  completion.MaxTokens,
		"messages":    completion.Messages,
		"model":       completion.Model,
		"stream":      true,
		"temperature": completion.Temperature,
		"user":        ctx.Value(models.UserContext{}).(string),
	}

	body, err := json.Marshal(data)
	if err != nil {
		close(messages)
		errs <- err
		close(errs)
		return messages, errs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, completionsURL, bytes.NewBuffer(body))
	if err != nil {
		close(messages)
		errs <- err
		close(errs)
		return messages, errs
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+config.CONFIG.OpenAIAPIKey)

	go func() {
		defer func() {
			close(messages)
			cancelContext()

			usage.Usage.TotalTokens = usage.Usage.PromptTokens + usage.Usage.CompletionTokens
			go bill(ctx, usage)
			config.CONFIG.DataDogClient.Timing("ai.chat_complete_streaming.latency", time.Since(timeNow), []string{"model:" + completion.Model}, 1)
			config.CONFIG.DataDogClient.Timing("ai.chat_complete_streaming.latency_per_token", time.Since(timeNow), []string{"model:" + completion.Model}, float64(usage.Usage.CompletionTokens))
		}()
		client := sse.NewClientFromReq(req)
		client.HTTPClient = a.client
		err := client.SubscribeWithContext(ctx, "", func(msg *sse.Event) {
			if string(msg.Data) == "[DONE]" {
				log.Infof("ChatCompleteStreaming got [DONE] message for user id %s", ctx.Value(models.UserContext{}).(string))
				return
			}
			var response models.ChatResponse
			if err := json.Unmarshal(msg.Data, &response); err != nil {
				log.Errorf("ChatCompleteStreaming couldn't parse response: %s, err: %v", string(msg.Data), err)
				return
			}

			for _, choice := range response.Choices {
				if choice.Delta.Content != "" {
					usage.Usage.CompletionTokens += int(ApproximateTokensCount(choice.Delta.Content))
					messages <- choice.Delta.Content
				}
			}
		})
		if err != nil {
			log.Errorf("ChatCompleteStreaming couldn't subscribe: %v", err)
			errs <- classify(err)
		}
		close(errs)
	}()
	return messages, errs
}

// bill records token accounting for operator-side totals. Entitlement counts
// turns, not tokens, and is never touched here.
func bill(ctx context.Context, usage models.CostAndUsage) {
	usage.Cost = float64(usage.Usage.PromptTokens)*usage.PricePerInputUnit +
		float64(usage.Usage.CompletionTokens)*usage.PricePerOutputUnit
	usage.User, _ = ctx.Value(models.UserContext{}).(string)

	redis.RedisClient.IncrBy(context.Background(), lib.UserTotalTokensKey(usage.User), int64(usage.Usage.TotalTokens))
	redis.RedisClient.IncrByFloat(context.Background(), lib.UserTotalCostKey(usage.User), usage.Cost)
	redis.RedisClient.IncrBy(context.Background(), "system_totals:tokens", int64(usage.Usage.TotalTokens))
	redis.RedisClient.IncrByFloat(context.Background(), "system_totals:cost", usage.Cost)
	config.CONFIG.DataDogClient.Distribution("billing.cost", usage.Cost, []string{"engine:" + string(usage.Engine)}, 1)
	config.CONFIG.DataDogClient.Distribution("billing.tokens", float64(usage.Usage.TotalTokens), []string{"engine:" + string(usage.Engine)}, 1)

	billBytes, _ := json.Marshal(usage)
	log.Infof("Billing: %s", string(billBytes))
}

// if this snippet will make too much mistakes, we can use this
// https://github.com/pkoukk/tiktoken-go
func ApproximateTokensCount(message string) float64 {
	return math.Max(float64(utf8.RuneCountInString(message))/CHARS_PER_TOKEN, 1)
}

func PricePerInputToken(model models.Engine) float64 {
	switch model {
	case models.ChatGpt4o:
		return CHAT_GPT4O_INPUT_PRICE
	default:
		return CHAT_GPT4O_MINI_INPUT_PRICE
	}
}

func PricePerOutputToken(model models.Engine) float64 {
	switch model {
	case models.ChatGpt4o:
		return CHAT_GPT4O_OUTPUT_PRICE
	default:
		return CHAT_GPT4O_MINI_OUTPUT_PRICE
	}
}
