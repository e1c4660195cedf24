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

// Role store drivers.
const (
	RoleStoreMemory   = "memory"
	RoleStoreBadger   = "badger"
	RoleStorePostgres = "postgres"
)

type (
	Config struct {
		Env                       string
		Build                     string
		Debug                     bool
		TestMode                  bool
		AppName                   string
		SecretKey                 string
		WorkDir                   string
		FrontendBaseURL           string
		RollbarToken              string
		SendgridApiKey            string
		PasswordResetTimeoutDelta time.Duration
		defaultFromEmail          string

		Server    ServerConfig
		Database  DatabaseConfig
		Auth      AuthConfig
		RoleStore RoleStoreConfig
		AI        AIConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ShutdownTimeout time.Duration
		SessionTTL      time.Duration
		SecureCookies   bool
		DisableReqLogs  bool
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

	// AuthConfig bounds the session and role verification calls.
	AuthConfig struct {
		VerifyTimeout          time.Duration
		PersistenceTimeout     time.Duration
		LoginAttemptsPerMinute int
		SessionCacheSize       int
	}

	RoleStoreConfig struct {
		Driver     string
		BadgerPath string
	}

	AIConfig struct {
		BaseURL string
		APIKey  string
		Model   string
		Timeout time.Duration
	}
)

func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "College")
	conf.SetDefault("secretKey", "x8#k2-vq)lw0$+d9=fz&ub7h1(r!m)#*c4(#pe6j^$sat3nq")
	conf.SetDefault("build", "dev")
	conf.SetDefault("frontendBaseURL", "http://localhost:8000")
	conf.SetDefault("defaultFromEmail", "College <noreply@localhost>")
	conf.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", ":4000")
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)
	conf.SetDefault("server.sessionTTL", 7*24*time.Hour)
	conf.SetDefault("server.secureCookies", false)
	conf.SetDefault("server.disableReqLogs", false)

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "college")
	conf.SetDefault("database.user", "college")
	conf.SetDefault("database.password", "")
	conf.SetDefault("database.adminUser", "postgres")
	conf.SetDefault("database.adminPassword", "")
	conf.SetDefault("database.disableTLS", true)

	conf.SetDefault("auth.verifyTimeout", 10*time.Second)
	conf.SetDefault("auth.persistenceTimeout", 5*time.Second)
	conf.SetDefault("auth.loginAttemptsPerMinute", 10)
	conf.SetDefault("auth.sessionCacheSize", 4096)

	conf.SetDefault("roleStore.driver", RoleStorePostgres)
	conf.SetDefault("roleStore.badgerPath", "data/roles")

	conf.SetDefault("ai.baseURL", "https://api.openai.com/v1")
	conf.SetDefault("ai.apiKey", "")
	conf.SetDefault("ai.model", "gpt-4o-mini")
	conf.SetDefault("ai.timeout", 30*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	wd := Getwd()

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:                       env,
		Build:                     conf.GetString("build"),
		Debug:                     conf.GetBool("debug"),
		TestMode:                  conf.GetBool("testMode"),
		AppName:                   conf.GetString("appName"),
		SecretKey:                 conf.GetString("secretKey"),
		WorkDir:                   wd,
		FrontendBaseURL:           conf.GetString("frontendBaseURL"),
		RollbarToken:              conf.GetString("rollbarToken"),
		SendgridApiKey:            conf.GetString("sendgridApiKey"),
		PasswordResetTimeoutDelta: conf.GetDuration("passwordResetTimeoutDelta"),
		defaultFromEmail:          conf.GetString("defaultFromEmail"),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
			SessionTTL:      conf.GetDuration("server.sessionTTL"),
			SecureCookies:   conf.GetBool("server.secureCookies"),
			DisableReqLogs:  conf.GetBool("server.disableReqLogs"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("database.engine"),
			Host:          conf.GetString("database.host"),
			Port:          conf.GetString("database.port"),
			Name:          conf.GetString("database.name"),
			User:          conf.GetString("database.user"),
			Password:      conf.GetString("database.password"),
			AdminUser:     conf.GetString("database.adminUser"),
			AdminPassword: conf.GetString("database.adminPassword"),
			DisableTLS:    conf.GetBool("database.disableTLS"),
		},
		Auth: AuthConfig{
			VerifyTimeout:          conf.GetDuration("auth.verifyTimeout"),
			PersistenceTimeout:     conf.GetDuration("auth.persistenceTimeout"),
			LoginAttemptsPerMinute: conf.GetInt("auth.loginAttemptsPerMinute"),
			SessionCacheSize:       conf.GetInt("auth.sessionCacheSize"),
		},
		RoleStore: RoleStoreConfig{
			Driver:     strings.ToLower(conf.GetString("roleStore.driver")),
			BadgerPath: conf.GetString("roleStore.badgerPath"),
		},
		AI: AIConfig{
			BaseURL: conf.GetString("ai.baseURL"),
			APIKey:  conf.GetString("ai.apiKey"),
			Model:   conf.GetString("ai.model"),
			Timeout: conf.GetDuration("ai.timeout"),
		},
	}
}

// NewTestConfig returns a Config suitable for tests; no env or .env file is read.
func NewTestConfig() *Config {
	return &Config{
		Env:                       "TEST",
		Build:                     "test",
		TestMode:                  true,
		AppName:                   "College",
		SecretKey:                 "test-secret",
		FrontendBaseURL:           "http://localhost:8000",
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		defaultFromEmail:          "College <noreply@localhost>",
		Server: ServerConfig{
			Address:         ":0",
			ShutdownTimeout: time.Second,
			SessionTTL:      time.Hour,
			DisableReqLogs:  true,
		},
		Auth: AuthConfig{
			VerifyTimeout:          2 * time.Second,
			PersistenceTimeout:     time.Second,
			LoginAttemptsPerMinute: 60,
			SessionCacheSize:       128,
		},
		RoleStore: RoleStoreConfig{Driver: RoleStoreMemory},
		AI:        AIConfig{Model: "test-model", Timeout: time.Second},
	}
}

func (c *Config) DefaultFromEmail() mail.Address {
	addr, err := mail.ParseAddress(c.defaultFromEmail)
	if err != nil {
		return mail.Address{Name: c.AppName, Address: "noreply@localhost"}
	}
	return *addr
}

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}
