// Copyright (c) 2026 Khaled Abbas
//
// This source code is licensed under the Business Source License 1.1.
//
// Change Date: 4 years after the first public release of this version.
// Change License: MIT
//
// On the Change Date, this version of the code automatically converts
// to the MIT License. Prior to that date, use is subject to the
// Additional Use Grant. See the LICENSE file for details.

// Package config reads worker settings from the environment (and an
// optional .env file) and resolves them into immutable snapshots.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"lintworker/src/execution"

	"github.com/joho/godotenv"
	"mvdan.cc/sh/v3/shell"
)

type DBConfig struct {
	User     string
	Password string
	Name     string
	Host     string
	Port     string
	SSLMode  string
}

// Enabled reports whether a database was configured at all.
func (c DBConfig) Enabled() bool {
	return c.Host != ""
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("user=%s password=%s dbname=%s host=%s port=%s sslmode=%s",
		c.User, c.Password, c.Name, c.Host, c.Port, c.SSLMode)
}

// Config is the raw, unresolved worker configuration.
type Config struct {
	ExecutePath         string
	UseBundler          bool
	UseDocker           bool
	DockerContainer     string
	DockerAPI           bool
	ConfigFilePath      string
	OnSave              bool
	SuppressWarnings    bool
	DisableEmptyFileCop bool
	ExtraArgs           []string
	Command             []string
	MaxBuffer           int64
	WorkspaceRoots      []string

	APIPort       string
	DB            DBConfig
	ListenChannel string
	PingInterval  time.Duration
}

// Load reads the given .env files (".env" when none are given; missing
// files are skipped) and then the process environment, which wins.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	fileVals := map[string]string{}
	for _, f := range files {
		vals, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", f, err)
		}
		for k, v := range vals {
			fileVals[k] = v
		}
	}
	return FromLookup(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVals[key]
		return v, ok
	})
}

// FromLookup builds a Config from a key lookup function.
func FromLookup(lookup func(string) (string, bool)) (*Config, error) {
	p := parser{lookup: lookup}

	cfg := &Config{
		ExecutePath:         p.str("RUBOCOP_EXECUTE_PATH", ""),
		UseBundler:          p.boolean("RUBOCOP_USE_BUNDLER", false),
		UseDocker:           p.boolean("RUBOCOP_USE_DOCKER", false),
		DockerContainer:     p.str("RUBOCOP_DOCKER_CONTAINER", ""),
		DockerAPI:           p.boolean("RUBOCOP_DOCKER_API", true),
		ConfigFilePath:      p.str("RUBOCOP_CONFIG_FILE", ""),
		OnSave:              p.boolean("RUBOCOP_ON_SAVE", true),
		SuppressWarnings:    p.boolean("RUBOCOP_SUPPRESS_WARNINGS", false),
		DisableEmptyFileCop: p.boolean("RUBOCOP_DISABLE_EMPTY_FILE_COP", false),
		ExtraArgs:           p.fields("RUBOCOP_EXTRA_ARGS"),
		Command:             p.fields("RUBOCOP_COMMAND"),
		MaxBuffer:           p.int64("RUBOCOP_MAX_BUFFER", execution.DefaultMaxBuffer),
		WorkspaceRoots:      p.list("WORKSPACE_ROOTS"),

		APIPort: p.str("API_PORT", "8080"),
		DB: DBConfig{
			User:     p.str("DB_USER", ""),
			Password: p.str("DB_PASSWORD", ""),
			Name:     p.str("DB_NAME", ""),
			Host:     p.str("DB_HOST", ""),
			Port:     p.str("DB_PORT", "5432"),
			SSLMode:  p.str("DB_SSLMODE", "require"),
		},
		ListenChannel: p.str("LISTEN_CHANNEL", "lint_requests"),
		PingInterval:  p.duration("PING_INTERVAL", 90*time.Second),
	}
	if err := errors.Join(p.errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

type parser struct {
	lookup func(string) (string, bool)
	errs   []error
}

func (p *parser) raw(key string) (string, bool) {
	v, ok := p.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (p *parser) str(key, def string) string {
	if v, ok := p.raw(key); ok {
		return v
	}
	return def
}

func (p *parser) boolean(key string, def bool) bool {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	return b
}

func (p *parser) int64(key string, def int64) int64 {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: invalid size %q", key, v))
		return def
	}
	return n
}

func (p *parser) duration(key string, def time.Duration) time.Duration {
	v, ok := p.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d <= 0 {
		p.errs = append(p.errs, fmt.Errorf("%s: must be positive, got %s", key, v))
		return def
	}
	return d
}

// fields splits a value with shell quoting rules. Variable references
// expand to nothing.
func (p *parser) fields(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	out, err := shell.Fields(v, func(string) string { return "" })
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("%s: %w", key, err))
		return nil
	}
	return out
}

func (p *parser) list(key string) []string {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for _, part := range filepath.SplitList(v) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
