// Package config loads and persists the application configuration as a JSON
// file in the user's config directory, with environment variable overrides
// for scripted and containerized use.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/culturebridge/nomadstr/pkg/relays"
	"github.com/culturebridge/nomadstr/pkg/session"
	"github.com/culturebridge/nomadstr/pkg/slog"
)

var log, chk = slog.New(os.Stderr)

// appName is the config directory name under the platform config root.
const appName = "nomadstr"

// S3 configures the optional self-hosted blob backend. When unset, uploads
// go to the Blossom servers instead.
type S3 struct {
	Endpoint  string `json:"endpoint" env:"NOMADSTR_S3_ENDPOINT"`
	Region    string `json:"region" env:"NOMADSTR_S3_REGION"`
	AccessKey string `json:"access-key" env:"NOMADSTR_S3_ACCESS_KEY"`
	SecretKey string `json:"secret-key" env:"NOMADSTR_S3_SECRET_KEY"`
	Bucket    string `json:"bucket" env:"NOMADSTR_S3_BUCKET"`
	UseSSL    bool   `json:"use-ssl" env:"NOMADSTR_S3_USE_SSL"`
	PublicURL string `json:"public-url" env:"NOMADSTR_S3_PUBLIC_URL"`
}

// Config is everything the CLI persists between runs, including the signed-in
// identity. The secret key is stored the way other nostr CLIs store it: in
// the user-only config file, never in shell history.
type Config struct {
	Relays      relays.Config `json:"relays"`
	BlobServers []string      `json:"blob-servers" env:"NOMADSTR_BLOB_SERVERS" envSeparator:","`
	S3          *S3           `json:"s3,omitempty"`

	SecretKey    string `json:"secret-key,omitempty" env:"NOMADSTR_SECRET_KEY"`
	BunkerURL    string `json:"bunker-url,omitempty" env:"NOMADSTR_BUNKER_URL"`
	BunkerPubkey string `json:"bunker-pubkey,omitempty" env:"NOMADSTR_BUNKER_PUBKEY"`

	path string
}

func defaultConfig() *Config {
	return &Config{
		Relays: relays.Config{
			"wss://relay.damus.io":   {Read: true, Write: true},
			"wss://nos.lol":          {Read: true, Write: true},
			"wss://relay.nostr.band": {Read: true, Write: true, Search: true},
		},
		BlobServers: []string{"https://blossom.primal.net"},
	}
}

// Dir returns the config directory, creating it if needed.
func Dir() (string, error) {
	root, err := os.UserConfigDir()
	if chk.E(err) {
		return "", err
	}
	dir := filepath.Join(root, appName)
	if err = os.MkdirAll(dir, 0700); chk.E(err) {
		return "", err
	}
	return dir, nil
}

func configPath(profile string) (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	name := "config.json"
	if profile != "" {
		name = "config-" + profile + ".json"
	}
	return filepath.Join(dir, name), nil
}

// Load reads the named profile's config, writing a fresh default one on
// first run. Environment variables override whatever the file says.
func Load(profile string) (cfg *Config, err error) {
	path, err := configPath(profile)
	if err != nil {
		return nil, err
	}
	cfg = defaultConfig()
	cfg.path = path
	raw, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		log.D.F("no config at %s, writing defaults", path)
		if err = cfg.Save(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		if err = json.Unmarshal(raw, cfg); chk.E(err) {
			return nil, fmt.Errorf("broken config at %s: %w", path, err)
		}
	}
	if err = env.Parse(cfg); chk.E(err) {
		return nil, err
	}
	if len(cfg.Relays) == 0 {
		cfg.Relays = defaultConfig().Relays
	}
	return cfg, nil
}

// Save writes the config back where it was loaded from, user-readable only.
func (c *Config) Save() (err error) {
	if c.path == "" {
		if c.path, err = configPath(""); err != nil {
			return
		}
	}
	raw, err := json.MarshalIndent(c, "", "  ")
	if chk.E(err) {
		return
	}
	return os.WriteFile(c.path, raw, 0600)
}

// RestoreSession signs the persisted identity back in. A config with no
// stored identity leaves the manager signed out without error.
func (c *Config) RestoreSession(m *session.Manager) (err error) {
	switch {
	case c.SecretKey != "":
		_, err = m.SignInWithSecret(c.SecretKey)
	case c.BunkerURL != "":
		_, err = m.SignInWithBunker(c.BunkerURL, c.BunkerPubkey)
	}
	return
}

// PersistSession stores the current identity so the next run starts signed
// in, and clears it again on sign-out.
func (c *Config) PersistSession(s session.Session) error {
	c.SecretKey, c.BunkerURL, c.BunkerPubkey = "", "", ""
	if s.Authenticated {
		c.SecretKey = s.SecretKey
		c.BunkerURL = s.BunkerURL
		if s.BunkerURL != "" {
			c.BunkerPubkey = s.Pubkey
		}
	}
	return c.Save()
}
