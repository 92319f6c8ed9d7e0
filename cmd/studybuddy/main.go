// Command studybuddy is the terminal client: bring your own API key and study with
// Axon. The key and the conversation live in this process only.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"studybuddy-backend/internal/chat"
	"studybuddy-backend/internal/config"
	"studybuddy-backend/internal/history"
	"studybuddy-backend/internal/llm"
	"studybuddy-backend/internal/tui"
	"studybuddy-backend/internal/tutor"
)

func main() {
	_ = config.LoadDotEnv()

	provider := flag.String("provider", envOr("LLM_PROVIDER", string(config.ProviderGemini)), "model provider: gemini, openai or mock")
	model := flag.String("model", os.Getenv("LLM_MODEL"), "model name (provider default when empty)")
	baseURL := flag.String("base-url", os.Getenv("LLM_BASE_URL"), "override the provider endpoint")
	timeout := flag.Duration("timeout", 2*time.Minute, "limit for one model reply")
	logFile := flag.String("log", os.Getenv("STUDYBUDDY_LOG"), "write logs to this file")
	flag.Parse()

	// The alternate screen owns stdout and stderr, so logs go to a file or nowhere.
	logger := zap.NewNop()
	if *logFile != "" {
		cfg := zap.NewDevelopmentConfig()
		cfg.OutputPaths = []string{*logFile}
		cfg.ErrorOutputPaths = []string{*logFile}
		l, err := cfg.Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "studybuddy: cannot open log file: %v\n", err)
			os.Exit(1)
		}
		logger = l
	}
	zap.ReplaceGlobals(logger)
	defer logger.Sync()

	gen, err := newGenerator(config.LLMProvider(*provider), *model, *baseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "studybuddy: %v\n", err)
		os.Exit(1)
	}

	shell := chat.NewShell(tutor.New(gen, ""), chat.NewMemoryCredentials(), history.DefaultGreeting)
	if err := tui.Run(shell, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "studybuddy: %v\n", err)
		os.Exit(1)
	}
}

// newGenerator builds a generator without a server credential; every call carries the
// key the user signed in with.
func newGenerator(provider config.LLMProvider, model, baseURL string) (llm.Generator, error) {
	switch provider {
	case config.ProviderGemini:
		if model == "" {
			model = "gemini-2.5-flash"
		}
		return llm.NewGeminiGenerator("", model, baseURL), nil
	case config.ProviderOpenAI:
		if model == "" {
			model = "gpt-4o-mini"
		}
		gen, err := llm.NewOpenAIGenerator("", model, baseURL)
		if err != nil {
			return nil, err
		}
		return gen, nil
	case config.ProviderMock:
		return llm.NewMockGenerator(), nil
	}
	return nil, fmt.Errorf("unknown provider %q", provider)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
