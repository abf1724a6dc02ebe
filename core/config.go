package core

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

type Config struct {
	Env      string
	Debug    bool
	TestMode bool
	AppName  string

	RollbarToken string

	Server struct {
		Addr            string
		ShutdownTimeout time.Duration
	}

	// Identity is the hosted identity store (auth + row storage).
	// Both values are required; the process must not start without them.
	Identity struct {
		URL    string
		APIKey string
	}

	// Completion is the hosted chat-completion service. The key is
	// optional; without it the assistant degrades to a fixed message.
	Completion struct {
		URL         string
		APIKey      string
		Model       string
		MaxTokens   int
		Temperature float64
	}
}

var (
	errMissingIdentityURL = errors.New("config: identity store URL is required (IDENTITY_URL)")
	errMissingIdentityKey = errors.New("config: identity store API key is required (IDENTITY_APIKEY)")
)

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and the environment (in increasing precedence).
func NewConfig() (*Config, error) {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("appName", "Lumen")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("completion.url", "https://api.openai.com/v1/chat/completions")
	v.SetDefault("completion.model", "gpt-3.5-turbo")
	v.SetDefault("completion.maxTokens", 500)
	v.SetDefault("completion.temperature", 0.7)

	env := os.Getenv("ENV") // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	conf := &Config{
		Env:          env,
		Debug:        v.GetBool("debug"),
		TestMode:     env == "TEST",
		AppName:      v.GetString("appName"),
		RollbarToken: v.GetString("rollbarToken"),
	}
	conf.Server.Addr = v.GetString("server.addr")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Identity.URL = strings.TrimRight(v.GetString("identity.url"), "/")
	conf.Identity.APIKey = v.GetString("identity.apiKey")
	conf.Completion.URL = v.GetString("completion.url")
	conf.Completion.APIKey = v.GetString("completion.apiKey")
	conf.Completion.Model = v.GetString("completion.model")
	conf.Completion.MaxTokens = v.GetInt("completion.maxTokens")
	conf.Completion.Temperature = v.GetFloat64("completion.temperature")

	if conf.Identity.URL == "" {
		return nil, errMissingIdentityURL
	}
	if conf.Identity.APIKey == "" {
		return nil, errMissingIdentityKey
	}
	return conf, nil
}
