package config

import "time"

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(apiKey, projectID, location, model string) *Gemini {
	return &Gemini{
		apiKey:    apiKey,
		projectID: projectID,
		location:  location,
		model:     model,
	}
}

func NewOpenAIForTest(apiKey, baseURL string) *OpenAI {
	return &OpenAI{apiKey: apiKey, baseURL: baseURL}
}

func NewLLMForTest(provider string, openai *OpenAI, gemini *Gemini) *LLM {
	x := &LLM{provider: provider, repair: true, heuristic: true}
	if openai != nil {
		x.OpenAI = *openai
	}
	if gemini != nil {
		x.Gemini = *gemini
	}
	return x
}

func NewEmbedderForTest(backend, clipURL string, dimension int) *Embedder {
	return &Embedder{backend: backend, clipURL: clipURL, dimension: dimension}
}

func NewRepositoryForTest(backend, namespaceBackend string) *Repository {
	return &Repository{backend: backend, namespaceBackend: namespaceBackend}
}

func NewNamespaceCacheForTest(backend string, ttl time.Duration) *NamespaceCache {
	return &NamespaceCache{backend: backend, ttl: ttl}
}

func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

func NewAppConfigForTest(path string) *AppConfig {
	return &AppConfig{path: path}
}

var ParseLevel = parseLevel
