package lib

import (
	"fmt"
	"strings"

	"heart2heart/m/app/config"
)

type EmotionName string

const (
	Anxiety    EmotionName = "anxiety"
	Loneliness EmotionName = "loneliness"
	SelfHate   EmotionName = "self_hate"
	Lethargy   EmotionName = "lethargy"
	Neutral    EmotionName = "neutral"
)

type emotion struct {
	name     EmotionName
	keywords []string
	guidance string
}

// Substring match against the lowercased message; first hit wins, ordered by
// urgency of the emotion.
var emotions = []emotion{
	{
		name:     Anxiety,
		keywords: []string{"불안", "초조", "걱정", "긴장"},
		guidance: "사용자가 불안을 표현했습니다. 원인을 묻지 말고 지금 그 감정을 그대로 인정해주는 따뜻한 말로 답해주세요.",
	},
	{
		name:     Loneliness,
		keywords: []string{"외로워", "혼자", "쓸쓸", "고독"},
		guidance: "사용자가 외로움을 표현했습니다. 누군가 곁에 있는 듯한 문장을 만들어주세요.",
	},
	{
		name:     SelfHate,
		keywords: []string{"나 싫어", "못해", "쓸모없어", "가치없어"},
		guidance: "사용자가 자기혐오를 표현했습니다. 공감적으로 이해하고, 자존감을 회복시키는 문장을 포함해주세요.",
	},
	{
		name:     Lethargy,
		keywords: []string{"하기 싫", "지쳤", "힘들어", "귀찮"},
		guidance: "사용자가 무기력을 표현했습니다. 행동을 강요하지 않고, 존재 자체가 괜찮다는 위로를 전달해주세요.",
	},
}

const neutralGuidance = "사용자가 일상 대화를 하고 있습니다. 부드럽고 따뜻하게 이어가세요."

// GetEmotionPrompt picks the guidance fragment for the detected emotion.
func GetEmotionPrompt(userMessage string) (EmotionName, string) {
	text := strings.ToLower(userMessage)
	for _, e := range emotions {
		for _, keyword := range e.keywords {
			if strings.Contains(text, keyword) {
				return e.name, e.guidance
			}
		}
	}
	return Neutral, neutralGuidance
}

// BuildSystemPrompt composes the counselor persona with the per-message
// emotion guidance.
func BuildSystemPrompt(userMessage string) (EmotionName, string) {
	name, guidance := GetEmotionPrompt(userMessage)
	return name, fmt.Sprintf(config.PERSONA_INSTRUCTIONS, config.DEFAULT_TONE, guidance)
}
