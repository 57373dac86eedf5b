// Package auth resolves the API key used for basic auth against the REST APIs.
package auth

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// EnvAPIKey is the environment variable holding the API key.
const EnvAPIKey = "PL_API_KEY"

// DefaultEnvFile is the dotenv file consulted when the key is not otherwise set.
const DefaultEnvFile = ".env"

// ErrNoAPIKey is returned when no source provides a key.
var ErrNoAPIKey = errors.New("api key not found (set api.api_key, " + EnvAPIKey + ", or " + DefaultEnvFile + ")")

// Credentials holds the resolved API key and where it came from.
type Credentials struct {
	APIKey string
	Source string // "config", "env", or the dotenv path
}

// LoadCredentials resolves the API key. Precedence: configured value, process
// environment, then envFile. A missing envFile is not an error.
func LoadCredentials(configured, envFile string) (*Credentials, error) {
	if configured != "" {
		return &Credentials{APIKey: configured, Source: "config"}, nil
	}

	if key := os.Getenv(EnvAPIKey); key != "" {
		return &Credentials{APIKey: key, Source: "env"}, nil
	}

	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			if key := vars[EnvAPIKey]; key != "" {
				return &Credentials{APIKey: key, Source: envFile}, nil
			}
		case errors.Is(err, fs.ErrNotExist):
		default:
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	return nil, ErrNoAPIKey
}

// Redacted returns the key with all but its last four characters masked.
func (c *Credentials) Redacted() string {
	if len(c.APIKey) <= 4 {
		return "****"
	}
	return "****" + c.APIKey[len(c.APIKey)-4:]
}
