// Package provider builds the generation backends Luna talks to. Each
// backend is an eino chat model constructed from a named configuration.
// Supported backends: Ollama, OpenAI, Azure OpenAI, Google Gemini, Ark.
package provider

import (
	"errors"
	"fmt"
)

// ErrUnconfigured is returned when a backend is selected but its required
// settings (usually an API key) are missing.
var ErrUnconfigured = errors.New("provider: backend not configured")

// Backend enumerates the supported generation backends.
type Backend string

const (
	// BackendOllama selects a locally running Ollama instance.
	BackendOllama Backend = "ollama"
	// BackendOpenAI selects the OpenAI API.
	BackendOpenAI Backend = "openai"
	// BackendAzure selects Azure OpenAI Service.
	BackendAzure Backend = "azure"
	// BackendGemini selects Google Gemini via AI Studio.
	BackendGemini Backend = "gemini"
	// BackendArk selects the Volcano Engine Ark runtime.
	BackendArk Backend = "ark"
)

// ProviderOllama holds settings for a local Ollama server.
type ProviderOllama struct {
	Host  string
	Model string
}

// ProviderOpenAI holds settings for the OpenAI API.
type ProviderOpenAI struct {
	APIKey string
	Model  string
	// BaseURL overrides the API endpoint for OpenAI-compatible gateways.
	BaseURL string
}

// ProviderAzureOpenAI holds settings for Azure OpenAI Service.
type ProviderAzureOpenAI struct {
	APIKey     string
	Endpoint   string
	Deployment string
	APIVersion string
}

// ProviderGemini holds settings for Google Gemini.
type ProviderGemini struct {
	APIKey string
	Model  string
}

// ProviderArk holds settings for the Ark runtime.
type ProviderArk struct {
	APIKey  string
	Model   string
	BaseURL string
}

// SharedTuning holds generation parameters applied where the backend
// supports them.
type SharedTuning struct {
	// MaxTokens caps the number of tokens generated per response.
	MaxTokens int
	// Temperature controls response randomness.
	Temperature float32
}

// Config holds everything needed to construct one backend.
type Config struct {
	Backend     Backend
	Ollama      ProviderOllama
	OpenAI      ProviderOpenAI
	AzureOpenAI ProviderAzureOpenAI
	Gemini      ProviderGemini
	Ark         ProviderArk
	Tuning      SharedTuning
}

// Validate checks the settings of the selected backend. Missing
// credentials wrap ErrUnconfigured so callers can tell an unconfigured
// fallback from a broken one.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendOllama:
		if c.Ollama.Host == "" {
			return fmt.Errorf("%w: OLLAMA_HOST is required for the ollama backend", ErrUnconfigured)
		}
		if c.Ollama.Model == "" {
			return fmt.Errorf("provider: OLLAMA_MODEL is required for the ollama backend")
		}
	case BackendOpenAI:
		if c.OpenAI.APIKey == "" {
			return fmt.Errorf("%w: OPENAI_API_KEY is required for the openai backend", ErrUnconfigured)
		}
		if c.OpenAI.Model == "" {
			return fmt.Errorf("provider: OPENAI_MODEL is required for the openai backend")
		}
	case BackendAzure:
		if c.AzureOpenAI.APIKey == "" {
			return fmt.Errorf("%w: AZURE_OPENAI_API_KEY is required for the azure backend", ErrUnconfigured)
		}
		if c.AzureOpenAI.Endpoint == "" {
			return fmt.Errorf("%w: AZURE_OPENAI_ENDPOINT is required for the azure backend", ErrUnconfigured)
		}
		if c.AzureOpenAI.Deployment == "" {
			return fmt.Errorf("provider: AZURE_OPENAI_DEPLOYMENT is required for the azure backend")
		}
	case BackendGemini:
		if c.Gemini.APIKey == "" {
			return fmt.Errorf("%w: GOOGLE_API_KEY is required for the gemini backend", ErrUnconfigured)
		}
		if c.Gemini.Model == "" {
			return fmt.Errorf("provider: GEMINI_MODEL is required for the gemini backend")
		}
	case BackendArk:
		if c.Ark.APIKey == "" {
			return fmt.Errorf("%w: ARK_API_KEY is required for the ark backend", ErrUnconfigured)
		}
		if c.Ark.Model == "" {
			return fmt.Errorf("provider: ARK_MODEL is required for the ark backend")
		}
	default:
		return fmt.Errorf("provider: unknown backend %q (valid: ollama, openai, azure, gemini, ark)", c.Backend)
	}
	if c.Tuning.MaxTokens < 0 {
		return fmt.Errorf("provider: MODEL_MAX_TOKENS must not be negative, got %d", c.Tuning.MaxTokens)
	}
	return nil
}

// ModelName returns the model or deployment name of the selected backend.
func (c *Config) ModelName() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Model
	case BackendOpenAI:
		return c.OpenAI.Model
	case BackendAzure:
		return c.AzureOpenAI.Deployment
	case BackendGemini:
		return c.Gemini.Model
	case BackendArk:
		return c.Ark.Model
	}
	return ""
}

// Endpoint returns the base URL the selected backend talks to, or an empty
// string when the SDK default is used.
func (c *Config) Endpoint() string {
	switch c.Backend {
	case BackendOllama:
		return c.Ollama.Host
	case BackendOpenAI:
		return c.OpenAI.BaseURL
	case BackendAzure:
		return c.AzureOpenAI.Endpoint
	case BackendArk:
		return c.Ark.BaseURL
	}
	return ""
}
