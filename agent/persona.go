package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meme-cmd/memexp2000/errors"
	"github.com/meme-cmd/memexp2000/llm"
)

const (
	maxPersonaField    = 300
	maxPersonaItems    = 6
	maxPersonaItemSize = 120
)

const personaSystem = "You design personas for AI agents. Respond with raw JSON only, no markdown, " +
	"matching this shape: {\"personality\": string, \"background\": string, \"expertise\": [string], " +
	"\"coreBeliefs\": [string], \"quirks\": [string], \"communicationStyle\": string}."

// generatePersona asks the LLM for a persona matching the agent's name,
// type, and description. The response fields are clamped; a model that
// rambles does not produce unbounded records.
func generatePersona(ctx context.Context, gen llm.Generator, name, agentType, description string) (Persona, error) {
	prompt := fmt.Sprintf(
		"Create a persona for an agent.\nName: %s\nType: %s\nDescription: %s",
		name, agentType, description,
	)

	raw, err := gen.Complete(ctx, llm.Request{
		System:      personaSystem,
		Prompt:      prompt,
		MaxTokens:   600,
		Temperature: 0.9,
	})
	if err != nil {
		return Persona{}, err
	}

	var persona Persona
	if err := json.Unmarshal([]byte(llm.StripCodeFences(raw)), &persona); err != nil {
		return Persona{}, errors.New(errors.ErrCodeLLM, "persona response is not valid JSON", err)
	}

	persona.Personality = clampString(persona.Personality, maxPersonaField)
	persona.Background = clampString(persona.Background, maxPersonaField)
	persona.CommunicationStyle = clampString(persona.CommunicationStyle, maxPersonaField)
	persona.Expertise = clampList(persona.Expertise)
	persona.CoreBeliefs = clampList(persona.CoreBeliefs)
	persona.Quirks = clampList(persona.Quirks)
	return persona, nil
}

func clampString(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}

func clampList(items []string) []string {
	if len(items) > maxPersonaItems {
		items = items[:maxPersonaItems]
	}
	for i, item := range items {
		items[i] = clampString(item, maxPersonaItemSize)
	}
	return items
}
