// Package assistant – loader.go handles loading configuration from YAML
// files, with .env loading and environment variable expansion inside config
// values.
package assistant

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// envVarPattern matches environment variable references in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file. .env files
// are loaded first, then ${VAR} references inside the YAML are expanded.
// A ${VAR:?error} reference with its variable unset fails the load.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveSecrets(cfg)
	checkFilePermissions(path)
	return cfg, nil
}

// ParseConfig parses YAML bytes into a Config overlaid on defaults.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// FindConfigFile searches the standard locations for a config file.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"ava.yaml",
		"ava.yml",
		"configs/ava.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// loadEnvFiles loads .env files without overwriting existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default}, ${VAR:?error} and $VAR
// references with environment values. An unset ${VAR:?error} is rewritten to
// an "ERROR:" marker so validation can surface it.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, modifierValue, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			msg := modifierValue
			if msg == "" {
				msg = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + msg
		case "-":
			return modifierValue
		}
		return match
	})
}

// expandEnvVarsWithValidation is expandEnvVars plus an error for any unset
// ${VAR:?error} reference.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}

	rest := result[idx+6:]
	colonIdx := strings.Index(rest, ":")
	if colonIdx == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	msg := rest[colonIdx+1:]
	if end := strings.IndexAny(msg, "\r\n"); end != -1 {
		msg = msg[:end]
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colonIdx], msg)
}

// resolveSecrets fills empty config secrets from well-known environment
// variables.
func resolveSecrets(cfg *Config) {
	if cfg.API.APIKey == "" || IsEnvReference(cfg.API.APIKey) {
		if key := os.Getenv("AVA_API_KEY"); key != "" {
			cfg.API.APIKey = key
		} else if key := os.Getenv("GROQ_API_KEY"); key != "" {
			cfg.API.APIKey = key
		}
	}
	if cfg.TTS.APIKey == "" || IsEnvReference(cfg.TTS.APIKey) {
		cfg.TTS.APIKey = os.Getenv("ELEVENLABS_API_KEY")
	}
	if cfg.ImageGen.APIKey == "" || IsEnvReference(cfg.ImageGen.APIKey) {
		cfg.ImageGen.APIKey = os.Getenv("TOGETHER_API_KEY")
	}
	if cfg.News.APIKey == "" || IsEnvReference(cfg.News.APIKey) {
		cfg.News.APIKey = os.Getenv("NEWS_API_KEY")
	}
	if cfg.Memory.Embeddings.APIKey == "" || IsEnvReference(cfg.Memory.Embeddings.APIKey) {
		cfg.Memory.Embeddings.APIKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.WhatsApp.AccessToken == "" || IsEnvReference(cfg.WhatsApp.AccessToken) {
		cfg.WhatsApp.AccessToken = os.Getenv("WHATSAPP_TOKEN")
	}
}

// IsEnvReference checks whether a string is an unexpanded env var reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || strings.HasPrefix(s, "$")
}

// checkFilePermissions warns when the config file is group or world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
		)
	}
}
