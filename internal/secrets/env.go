// Package secrets resolves credentials (database DSN, proxy api key) by name.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/JakeFAU/jobposting-crawler/internal/crawler"
)

// Resolver returns the secret value stored under name.
type Resolver interface {
	Resolve(ctx context.Context, name string) (string, error)
}

// EnvResolver reads secrets from the process environment, falling back to
// values read from dotenv files. The process environment is never modified.
type EnvResolver struct {
	lookup func(string) (string, bool)
	files  map[string]string
}

// NewEnvResolver reads the given dotenv files. Missing files are skipped;
// malformed files are an error.
func NewEnvResolver(files ...string) (*EnvResolver, error) {
	values := make(map[string]string)
	for _, file := range files {
		read, err := godotenv.Read(file)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%w: read %s: %w", crawler.ErrSecret, file, err)
		}
		for k, v := range read {
			if _, seen := values[k]; !seen {
				values[k] = v
			}
		}
	}
	return &EnvResolver{lookup: os.LookupEnv, files: values}, nil
}

// Resolve returns a non-empty secret or an error wrapping crawler.ErrSecret.
func (r *EnvResolver) Resolve(ctx context.Context, name string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %s: %w", crawler.ErrSecret, name, err)
	}
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("%w: empty secret name", crawler.ErrSecret)
	}
	if v, ok := r.lookup(name); ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	if v, ok := r.files[name]; ok && strings.TrimSpace(v) != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s is not set", crawler.ErrSecret, name)
}
