package config

import (
	"bufio"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const (
	settingsFile = "config/setting.ini"
	defaultEnv   = "dev"
)

// Settings contains global toggles such as the active environment.
type Settings struct {
	Environment string
}

// ServerConfig describes runtime options for the tidechat daemon.
type ServerConfig struct {
	Environment string
	// HTTPAddress is the listen address, host:port.
	HTTPAddress string
	// DatabasePath is a SQLite file path, or a postgres:// DSN to use the
	// Postgres backend instead.
	DatabasePath string
	// Upstream model server.
	OllamaBaseURL string
	OllamaModel   string
	// Logging.
	LogFile  string
	LogLevel string
	// SSEPingInterval inserts comment frames while waiting for upstream
	// fragments; zero disables pings.
	SSEPingInterval time.Duration
}

// LoadServerConfig reads the active environment and loads the matching
// config file, applying TIDECHAT_* environment overrides on top.
func LoadServerConfig(root string) (ServerConfig, error) {
	if root == "" {
		root = "."
	}
	s, err := loadSettings(root)
	if err != nil {
		return ServerConfig{}, err
	}

	values, err := parseINI(filepath.Join(root, envConfigFile(s.Environment)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return ServerConfig{}, err
	}
	if values == nil {
		values = map[string]string{}
	}

	cfg := ServerConfig{
		Environment:   s.Environment,
		HTTPAddress:   firstNonEmpty(os.Getenv("TIDECHAT_HTTP_ADDRESS"), values["http_address"], ":8090"),
		DatabasePath:  firstNonEmpty(os.Getenv("TIDECHAT_DATABASE_PATH"), values["database_path"], DefaultDatabasePath()),
		OllamaBaseURL: firstNonEmpty(os.Getenv("TIDECHAT_OLLAMA_BASE_URL"), values["ollama_base_url"], "http://127.0.0.1:11434"),
		OllamaModel:   firstNonEmpty(os.Getenv("TIDECHAT_OLLAMA_MODEL"), values["ollama_model"], "sam860/amoral-gemma3-1b-v2"),
		LogFile:       firstNonEmpty(os.Getenv("TIDECHAT_LOG_FILE"), values["log_file"]),
		LogLevel:      strings.ToLower(firstNonEmpty(os.Getenv("TIDECHAT_LOG_LEVEL"), values["log_level"], "info")),
	}

	ping := firstNonEmpty(os.Getenv("TIDECHAT_SSE_PING_INTERVAL"), values["sse_ping_interval"], "15s")
	d, err := time.ParseDuration(strings.TrimSpace(ping))
	if err != nil {
		return ServerConfig{}, errors.New("invalid sse_ping_interval " + strconv.Quote(ping))
	}
	cfg.SSEPingInterval = d

	return cfg, nil
}

func envConfigFile(env string) string {
	return filepath.Join("config", env, "tidechat.ini")
}

func loadSettings(root string) (Settings, error) {
	values, err := parseINI(filepath.Join(root, settingsFile))
	if errors.Is(err, os.ErrNotExist) {
		return Settings{Environment: defaultEnv}, nil
	}
	if err != nil {
		return Settings{}, err
	}
	env := firstNonEmpty(os.Getenv("TIDECHAT_ENV"), values["environment"], defaultEnv)
	return Settings{Environment: env}, nil
}

func parseINI(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		val := strings.TrimSpace(parts[1])
		if key == "" {
			continue
		}
		values[strings.ToLower(key)] = val
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return values, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// DefaultDatabasePath returns the fallback chat database path.
func DefaultDatabasePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "tidechat.db"
	}
	return filepath.Join(home, ".tidechat", "tidechat.db")
}
