package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// DefaultDifficulty is used when neither the request nor configuration names a level.
const DefaultDifficulty = "beginner"

const namePrefix = "Feynman Learning Assistant - "

const instructionTemplate = `You are a Feynman Learning Assistant teaching about {topic} at a {difficulty_level} level.
Your goal is to guide the user through the Feynman technique:
1. Have them explain what they know about the topic
2. Identify gaps in their understanding
3. Help them simplify complex concepts
4. Guide them to teach the concept back to you
5. Provide feedback on their explanations

Always use simple language and encourage the user to explain concepts in their own words.{level_hint}`

// Spec carries what is needed to provision a teaching assistant on the platform.
type Spec struct {
	Name            string
	Topic           string
	DifficultyLevel string
	Instructions    string
}

// InstructionBuilder renders the fixed Feynman instruction template.
type InstructionBuilder struct {
	template          prompt.ChatTemplate
	defaultDifficulty string
	levelHints        map[string]string
}

// NewInstructionBuilder returns a builder that falls back to defaultDifficulty for empty levels.
func NewInstructionBuilder(defaultDifficulty string) *InstructionBuilder {
	defaultDifficulty = strings.TrimSpace(defaultDifficulty)
	if defaultDifficulty == "" {
		defaultDifficulty = DefaultDifficulty
	}

	return &InstructionBuilder{
		template:          prompt.FromMessages(schema.FString, schema.SystemMessage(instructionTemplate)),
		defaultDifficulty: defaultDifficulty,
		levelHints: map[string]string{
			"beginner":     "Assume no prior knowledge and lean on everyday analogies before any terminology.",
			"intermediate": "Assume the basics are known and push the user to connect ideas and spot edge cases.",
			"advanced":     "Expect precise vocabulary and challenge the user with formal reasoning and counterexamples.",
		},
	}
}

// Build renders the assistant spec for topic at the requested difficulty.
func (b *InstructionBuilder) Build(ctx context.Context, topic, difficultyLevel string) (Spec, error) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Spec{}, fmt.Errorf("topic is required")
	}

	level := b.Level(difficultyLevel)
	hint := ""
	if text, ok := b.levelHints[strings.ToLower(level)]; ok {
		hint = "\n\n" + text
	}

	messages, err := b.template.Format(ctx, map[string]any{
		"topic":            topic,
		"difficulty_level": level,
		"level_hint":       hint,
	})
	if err != nil {
		return Spec{}, fmt.Errorf("failed to render instructions: %w", err)
	}
	if len(messages) == 0 || messages[0] == nil {
		return Spec{}, fmt.Errorf("instruction template rendered no messages")
	}

	return Spec{
		Name:            namePrefix + topic,
		Topic:           topic,
		DifficultyLevel: level,
		Instructions:    messages[0].Content,
	}, nil
}

// Level resolves the effective difficulty level for a request.
func (b *InstructionBuilder) Level(requested string) string {
	if level := strings.TrimSpace(requested); level != "" {
		return level
	}
	return b.defaultDifficulty
}
