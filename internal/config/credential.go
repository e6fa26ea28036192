package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"docquery/internal/errs"
)

// LoadCredential resolves an API key from the named environment
// variable, reading a .env file first if one exists. An unset or
// blank variable is a fatal configuration error; no provider call
// should be attempted after it.
func LoadCredential(varName string) (string, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return "", errs.Wrap(errs.KindConfig, err, "loading .env file")
		}
	}
	key := strings.TrimSpace(os.Getenv(varName))
	if key == "" {
		return "", errs.New(errs.KindMissingCredential, "%s is not set", varName)
	}
	log.Debug().Str("var", varName).Msg("Loaded API credential")
	return key, nil
}

// ResolveCredentials loads the completion and embedding keys for the
// configured providers. Ollama needs no key; a shared variable is
// read once.
func ResolveCredentials(cfg *Config) (llmKey, embedKey string, err error) {
	if cfg.LLM.Provider != "ollama" {
		llmKey, err = LoadCredential(cfg.LLM.CredentialEnv)
		if err != nil {
			return "", "", err
		}
	}
	if cfg.EmbedLLM.Provider != "ollama" {
		if cfg.EmbedLLM.CredentialEnv == cfg.LLM.CredentialEnv && llmKey != "" {
			embedKey = llmKey
		} else {
			embedKey, err = LoadCredential(cfg.EmbedLLM.CredentialEnv)
			if err != nil {
				return "", "", err
			}
		}
	}
	return llmKey, embedKey, nil
}
