package config

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type AppCfg struct {
	Env           string
	Port          string
	PublicBaseURL string
}

type GatewayCfg struct {
	TokenBaseURL   string
	PaymentBaseURL string
	PublicKey      string
	SecretKey      string
	Currency       string
	Timeout        time.Duration
}

// ChallengeCfg holds the fixed 3DS redirect targets. The gateway sends the
// cardholder's browser to one of these after the challenge; matching them is
// how the outcome is learned.
type ChallengeCfg struct {
	SuccessURL string
	FailureURL string
}

type Cfg struct {
	App       AppCfg
	Gateway   GatewayCfg
	Challenge ChallengeCfg
}

// Load reads configuration from the environment (with .env support) and
// fails fast on anything required. Gateway keys have no defaults on purpose.
func Load() Cfg {
	// Load .env into the process env if present.
	_ = godotenv.Load()

	viper.AutomaticEnv()
	viper.SetDefault("APP_ENV", "sandbox")
	viper.SetDefault("APP_PORT", "8080")
	viper.SetDefault("APP_BASE_URL", "http://localhost:8080")
	viper.SetDefault("GATEWAY_TOKEN_BASE_URL", "https://api.sandbox.checkout.com")
	viper.SetDefault("GATEWAY_PAYMENT_BASE_URL", "https://api.sandbox.checkout.com")
	viper.SetDefault("GATEWAY_CURRENCY", "GBP")
	viper.SetDefault("GATEWAY_TIMEOUT_SEC", 15)

	baseURL := strings.TrimRight(viper.GetString("APP_BASE_URL"), "/")
	viper.SetDefault("CHALLENGE_SUCCESS_URL", baseURL+"/callbacks/3ds/success")
	viper.SetDefault("CHALLENGE_FAILURE_URL", baseURL+"/callbacks/3ds/failure")

	cfg := Cfg{
		App: AppCfg{
			Env:           viper.GetString("APP_ENV"),
			Port:          viper.GetString("APP_PORT"),
			PublicBaseURL: baseURL,
		},
		Gateway: GatewayCfg{
			TokenBaseURL:   viper.GetString("GATEWAY_TOKEN_BASE_URL"),
			PaymentBaseURL: viper.GetString("GATEWAY_PAYMENT_BASE_URL"),
			PublicKey:      strings.TrimSpace(viper.GetString("GATEWAY_PUBLIC_KEY")),
			SecretKey:      strings.TrimSpace(viper.GetString("GATEWAY_SECRET_KEY")),
			Currency:       viper.GetString("GATEWAY_CURRENCY"),
			Timeout:        time.Duration(viper.GetInt("GATEWAY_TIMEOUT_SEC")) * time.Second,
		},
		Challenge: ChallengeCfg{
			SuccessURL: viper.GetString("CHALLENGE_SUCCESS_URL"),
			FailureURL: viper.GetString("CHALLENGE_FAILURE_URL"),
		},
	}

	if cfg.Gateway.PublicKey == "" {
		log.Fatal().Msg("GATEWAY_PUBLIC_KEY is required")
	}
	if cfg.Gateway.SecretKey == "" {
		log.Fatal().Msg("GATEWAY_SECRET_KEY is required")
	}
	return cfg
}
