package logger

import (
	"os"
	"strings"
)

type Env string

const (
	EnvDev   Env = "dev"
	EnvTest  Env = "test"
	EnvStage Env = "stage"
	EnvProd  Env = "prod"
)

// DetectEnv reads CHAT_ENV, then APP_ENV, and falls back to dev.
func DetectEnv() Env {
	for _, key := range []string{"CHAT_ENV", "APP_ENV"} {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			return ParseEnv(v)
		}
	}
	return EnvDev
}

func ParseEnv(raw string) Env {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "prod", "production":
		return EnvProd
	case "stage", "staging":
		return EnvStage
	case "test", "ci":
		return EnvTest
	default:
		return EnvDev
	}
}

// Dev-like environments get the human readable backend by default.
func (e Env) devLike() bool { return e == EnvDev || e == EnvTest }
