// pkg/config/config.go
package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	HTTPAddr string

	// Control identity: the service principal the controller itself runs as.
	// Resources matching this id are never deleted, at any scope.
	ControlIdentityID string

	// Confirmation flow
	SessionTTL  time.Duration
	SettleDelay time.Duration
	TokenTTL    time.Duration

	// Executor
	WorkerPoolSize   int
	CooldownWindow   time.Duration
	DivergencePct    int  // tolerated drift between previewed and execute-time counts
	StrictDivergence bool // reject instead of log when drift exceeds DivergencePct

	// Preservation policy (optional extra rules on top of the control identity)
	PreserveRulesPath string // YAML rules file
	PreserveRegoPath  string // Rego module evaluated per resource

	// OIDC / JWT for operator auth
	Issuer   string
	Audience string
	JWKSURL  string

	// Collaborators
	RedisURL    string
	DatabaseURL string
	GraphURL    string // external inventory graph endpoint
	CloudAPIURL string // cloud-provider management endpoint
	CloudToken  string
}

func Load() Config {
	_ = godotenv.Load()
	cfg := Config{
		Env:               env("RESETCTL_ENV", "dev"),
		HTTPAddr:          env("RESETCTL_HTTP_ADDR", ":8080"),
		ControlIdentityID: env("CONTROL_IDENTITY_ID", ""),
		SessionTTL:        envDur("CONFIRM_SESSION_TTL_SEC", 600) * time.Second,
		SettleDelay:       envDur("CONFIRM_SETTLE_DELAY_SEC", 3) * time.Second,
		TokenTTL:          envDur("CONFIRM_TOKEN_TTL_SEC", 60) * time.Second,
		WorkerPoolSize:    envInt("RESET_WORKERS", 8),
		CooldownWindow:    envDur("RESET_COOLDOWN_SEC", 300) * time.Second,
		DivergencePct:     envInt("RESET_DIVERGENCE_PCT", 10),
		StrictDivergence:  envBool("RESET_STRICT_DIVERGENCE", false),
		PreserveRulesPath: env("PRESERVE_RULES_PATH", ""),
		PreserveRegoPath:  env("PRESERVE_REGO_PATH", ""),
		Issuer:            env("OIDC_ISSUER", ""),
		Audience:          env("OIDC_AUDIENCE", "resetctl"),
		JWKSURL:           env("JWKS_URL", ""),
		RedisURL:          env("REDIS_URL", ""),
		DatabaseURL:       env("DATABASE_URL", ""),
		GraphURL:          env("GRAPH_URL", ""),
		CloudAPIURL:       env("CLOUD_API_URL", ""),
		CloudToken:        env("CLOUD_API_TOKEN", ""),
	}
	if cfg.ControlIdentityID == "" {
		log.Println("[WARN] CONTROL_IDENTITY_ID not set; preservation falls back to rules file only")
	}
	if cfg.DatabaseURL == "" && cfg.GraphURL == "" {
		log.Println("[WARN] no DATABASE_URL or GRAPH_URL; using in-memory inventory provider for dev")
	}
	return cfg
}

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
func envBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
		log.Printf("[WARN] %s=%q is not a bool, using default", k, v)
	}
	return def
}
func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}
// envDur reads a duration given in whole seconds. A malformed value falls
// back to the default; the settle delay and token TTL must never silently
// collapse to zero.
func envDur(k string, def int) time.Duration {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return time.Duration(i)
		}
		log.Printf("[WARN] %s=%q is not a whole number of seconds, using default", k, v)
	}
	return time.Duration(def)
}
