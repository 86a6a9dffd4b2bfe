package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host                      string
		DebugHost                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
		DisableReqLogs            bool
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	LLMConfig struct {
		APIKey            string
		BaseURL           string // any OpenAI compatible endpoint
		Model             string
		Temperature       float32
		MaxTokens         int
		Timeout           time.Duration
		RequestsPerMinute int
	}

	UploadsConfig struct {
		MaxBytes int64
		MaxChars int
	}

	ClassesConfig struct {
		JoinCodeTTL   time.Duration
		InvitationTTL time.Duration
	}

	Config struct {
		AppName                   string
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		SecretKey                 string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridAPIKey            string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		LLM      LLMConfig
		Uploads  UploadsConfig
		Classes  ClassesConfig

		defaultFromEmail string
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func (c *Config) DefaultFromEmail() mail.Address {
	return mail.Address{Name: c.AppName, Address: c.defaultFromEmail}
}

// NewConfig reads the configuration of the current environment (ENV: DEV (default), TEST, QA, PROD).
// Env vars are prefixed with the environment name, e.g. DEV_SECRETKEY, PROD_DATABASE_PASSWORD.
func NewConfig() *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("appName", "Alloqly")
	v.SetDefault("build", "develop")
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("secretKey", "4s$b-x(k2q!m7vz@w1r8n=c5)e0h_t+j9u6y&ilo3pgfad")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.jwtExpirationDelta", 4*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "alloqly")
	v.SetDefault("database.user", "alloqly")
	v.SetDefault("database.password", "alloqly")
	v.SetDefault("database.adminUser", "postgres")
	v.SetDefault("database.adminPassword", "postgres")
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("llm.apiKey", "")
	v.SetDefault("llm.baseURL", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.temperature", 0.4)
	v.SetDefault("llm.maxTokens", 4096)
	v.SetDefault("llm.timeout", 90*time.Second)
	v.SetDefault("llm.requestsPerMinute", 60)

	v.SetDefault("uploads.maxBytes", 10<<20)
	v.SetDefault("uploads.maxChars", 15000)

	v.SetDefault("classes.joinCodeTTL", 7*24*time.Hour)
	v.SetDefault("classes.invitationTTL", 14*24*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	case "PROD":
		v.SetDefault("debug", false)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	if wd, err := os.Getwd(); err == nil {
		dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
		if _, err := os.Stat(dotEnvPath); err == nil {
			if err := godotenv.Load(dotEnvPath); err != nil {
				log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
			}
		} else if !os.IsNotExist(err) {
			log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
		}
	}
	v.AutomaticEnv()

	return &Config{
		AppName:                   v.GetString("appName"),
		Env:                       env,
		Build:                     v.GetString("build"),
		Debug:                     v.GetBool("debug"),
		TestMode:                  v.GetBool("testMode"),
		SecretKey:                 v.GetString("secretKey"),
		FrontendBaseURL:           strings.TrimRight(v.GetString("frontendBaseURL"), "/"),
		RollbarToken:              v.GetString("rollbarToken"),
		SendgridAPIKey:            v.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          v.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			DebugHost:                 v.GetString("server.debugHost"),
			ShutdownTimeout:           v.GetDuration("server.shutdownTimeout"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
			DisableReqLogs:            v.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		LLM: LLMConfig{
			APIKey:            v.GetString("llm.apiKey"),
			BaseURL:           v.GetString("llm.baseURL"),
			Model:             v.GetString("llm.model"),
			Temperature:       float32(v.GetFloat64("llm.temperature")),
			MaxTokens:         v.GetInt("llm.maxTokens"),
			Timeout:           v.GetDuration("llm.timeout"),
			RequestsPerMinute: v.GetInt("llm.requestsPerMinute"),
		},
		Uploads: UploadsConfig{
			MaxBytes: v.GetInt64("uploads.maxBytes"),
			MaxChars: v.GetInt("uploads.maxChars"),
		},
		Classes: ClassesConfig{
			JoinCodeTTL:   v.GetDuration("classes.joinCodeTTL"),
			InvitationTTL: v.GetDuration("classes.invitationTTL"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests: no env lookups, no external services.
func NewTestConfig() *Config {
	return &Config{
		AppName:                   "Alloqly",
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://alloqly.test",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "noreply@alloqly.test",
		Server: ServerConfig{
			JWTExpirationDelta:        4 * time.Hour,
			JWTRefreshExpirationDelta: 7 * 24 * time.Hour,
			ShutdownTimeout:           time.Second,
			DisableReqLogs:            true,
		},
		LLM:     LLMConfig{Model: "test-model", MaxTokens: 1024},
		Uploads: UploadsConfig{MaxBytes: 1 << 20, MaxChars: 15000},
		Classes: ClassesConfig{JoinCodeTTL: 7 * 24 * time.Hour, InvitationTTL: 14 * 24 * time.Hour},
	}
}
