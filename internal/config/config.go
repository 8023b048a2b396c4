// upub-fed/core is an ActivityPub federation engine.
// Copyright (C) 2026 The upub-fed/core authors
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package config loads the TOML configuration of spec §6 into a typed
// struct, then verifies it. The section layout mirrors
// github.com/go-fed/apcore/framework/config's ini-backed Config, swapped to
// TOML per the spec's explicit choice.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the top-level decoded document.
type Config struct {
	Instance   InstanceConfig   `toml:"instance"`
	Datasource DatasourceConfig `toml:"datasource"`
	Security   SecurityConfig   `toml:"security"`
	Compat     CompatConfig     `toml:"compat"`
	Reject     RejectConfig     `toml:"reject"`
}

// InstanceConfig names this server to the network.
type InstanceConfig struct {
	Name        string `toml:"name"`
	Description string `toml:"description"`
	Domain      string `toml:"domain"`
	Contact     string `toml:"contact"`
	Frontend    string `toml:"frontend"` // base URL for pretty object links; empty disables
}

// DatasourceConfig configures the Postgres connection pool.
type DatasourceConfig struct {
	ConnectionString string `toml:"connection_string"`
	MaxConnections    int    `toml:"max_connections"`
	MinConnections    int    `toml:"min_connections"`
}

// SecurityConfig holds the knobs that bound federation behavior (§6).
type SecurityConfig struct {
	AllowRegistration       bool   `toml:"allow_registration"`
	RequireUserApproval     bool   `toml:"require_user_approval"`
	AllowPublicSearch       bool   `toml:"allow_public_search"`
	RequestTimeoutSeconds   int    `toml:"request_timeout"`
	ProxySecret             string `toml:"proxy_secret"`
	SessionDurationHours    int    `toml:"session_duration_hours"`
	MaxIDRedirects          int    `toml:"max_id_redirects"`
	ThreadCrawlDepth        int    `toml:"thread_crawl_depth"`
	JobExpirationDays       int    `toml:"job_expiration_days"`
	ReinsertionAttemptLimit int    `toml:"reinsertion_attempt_limit"`
}

// CompatConfig toggles interop workarounds for specific remote software
// (§4.d Lemmy compatibility notes).
type CompatConfig struct {
	FixAttachmentImagesMediaType    bool `toml:"fix_attachment_images_media_type"`
	AddExplicitTargetToLikesIfLocal bool `toml:"add_explicit_target_to_likes_if_local"`
	SkipSingleAttachmentIfImageIsSet bool `toml:"skip_single_attachment_if_image_is_set"`
}

// RejectConfig lists domains/patterns rejected at each chokepoint.
type RejectConfig struct {
	Incoming []string `toml:"incoming"`
	Fetch    []string `toml:"fetch"`
	Public   []string `toml:"public"`
	Media    []string `toml:"media"`
	Delivery []string `toml:"delivery"`
	Access   []string `toml:"access"`
	Requests []string `toml:"requests"`
}

// Default returns a Config with the same defaults the teacher's ini-backed
// config applied, adapted to this spec's knobs.
func Default() Config {
	return Config{
		Datasource: DatasourceConfig{
			MaxConnections: 20,
			MinConnections: 2,
		},
		Security: SecurityConfig{
			RequestTimeoutSeconds:   30,
			SessionDurationHours:    24 * 14,
			MaxIDRedirects:          5,
			ThreadCrawlDepth:        16,
			JobExpirationDays:       7,
			ReinsertionAttemptLimit: 10,
		},
	}
}

// Load reads and decodes the TOML file at path, applying defaults for any
// section left at its zero value, then verifies the result.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := toml.DecodeFile(path, &c); err != nil {
		return Config{}, fmt.Errorf("decoding config %q: %w", path, err)
	}
	if err := c.Verify(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadEnvOverride behaves like Load, but path may be overridden by the
// UPUB_CONFIG environment variable — convenient for tests and containers.
func LoadEnvOverride(path string) (Config, error) {
	if p := os.Getenv("UPUB_CONFIG"); p != "" {
		path = p
	}
	return Load(path)
}

// Verify reports the first missing required field or out-of-range value,
// mirroring framework/config/verify.go's per-section Verify methods.
func (c *Config) Verify() error {
	if c.Instance.Domain == "" {
		return fmt.Errorf("instance.domain is empty, but it is required")
	}
	if c.Datasource.ConnectionString == "" {
		return fmt.Errorf("datasource.connection_string is empty, but it is required")
	}
	if c.Datasource.MaxConnections <= 0 {
		return fmt.Errorf("datasource.max_connections must be positive")
	}
	if c.Security.MaxIDRedirects <= 0 {
		return fmt.Errorf("security.max_id_redirects must be positive")
	}
	if c.Security.ThreadCrawlDepth <= 0 {
		return fmt.Errorf("security.thread_crawl_depth must be positive")
	}
	if c.Security.JobExpirationDays <= 0 {
		return fmt.Errorf("security.job_expiration_days must be positive")
	}
	if c.Security.ReinsertionAttemptLimit <= 0 {
		return fmt.Errorf("security.reinsertion_attempt_limit must be positive")
	}
	return nil
}
