package translate

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/qrchat-dev/qrchat/backend/internal/config"
	"github.com/qrchat-dev/qrchat/backend/pkg/logger"
)

const translateSystemPrompt = "You are a translation engine. Translate the user text from {source} to {target}. " +
	"Reply with the translated text only, no explanations, no quotes. " +
	"If the source language is \"auto\", detect it yourself."

// LLMProvider translates through an Ark chat model.
type LLMProvider struct {
	chain compose.Runnable[map[string]any, *schema.Message]
}

// NewLLMProvider compiles the translation chain against the configured model.
func NewLLMProvider(ctx context.Context, cfg config.ArkConfig) (*LLMProvider, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(translateSystemPrompt),
		schema.UserMessage("{text}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile translation chain: %w", err)
	}

	return &LLMProvider{chain: runnable}, nil
}

// Translate runs one chain invocation per request.
func (p *LLMProvider) Translate(ctx context.Context, text, sourceLanguage, targetLanguage string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", nil
	}
	if sourceLanguage == "" {
		sourceLanguage = LanguageAuto
	}

	response, err := p.chain.Invoke(ctx, map[string]any{
		"source": sourceLanguage,
		"target": targetLanguage,
		"text":   text,
	})
	if err != nil {
		return "", fmt.Errorf("failed to run translation chain: %w", err)
	}

	translated := strings.TrimSpace(response.Content)
	if translated == "" {
		return "", ErrNoTranslation
	}

	logger.Debugf("[translate] llm result target=%s length=%d", targetLanguage, len(translated))
	return translated, nil
}
