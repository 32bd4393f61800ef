// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads API keys from a directory of plain-text files. The
// file name is the key name and the trimmed contents are the value, so
// keys can live outside the config file and out of the environment.
//
// Recognized files: anthropic-api-key, tavily-api-key.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/equity-research/pkg/types"
)

const (
	AnthropicKey = "anthropic-api-key"
	TavilyKey    = "tavily-api-key"
)

// Load reads every regular, non-hidden file in dir. A missing directory is
// not an error. Unreadable files are logged and skipped.
func Load(dir string, logger *zap.Logger) (map[string]string, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	out := make(map[string]string)
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			logger.Warn("could not read secret", zap.String("name", name), zap.Error(err))
			continue
		}
		if v := strings.TrimSpace(string(data)); v != "" {
			out[name] = v
		}
	}
	return out, nil
}

// Apply fills API keys in cfg that are still empty. Keys set by flags,
// config or environment win over files.
func Apply(cfg *types.Config, keys map[string]string) {
	if cfg.AI.APIKey == "" {
		cfg.AI.APIKey = keys[AnthropicKey]
	}
	if cfg.Search.APIKey == "" {
		cfg.Search.APIKey = keys[TavilyKey]
	}
}
