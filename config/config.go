package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// TomlRemote configures the remote posts/comments resource
type TomlRemote struct {
	BaseURL    string        `toml:"base_url"`
	Timeout    time.Duration `toml:"timeout"`
	MaxRetries int           `toml:"max_retries"`
}

// TomlAccount is the single account allowed to sign in.
// Either Password or PasswordHash (bcrypt) must be set.
type TomlAccount struct {
	Email        string        `toml:"email"`
	Password     string        `toml:"password,omitempty"`
	PasswordHash string        `toml:"password_hash,omitempty"`
	FirstName    string        `toml:"first_name"`
	LastName     string        `toml:"last_name"`
	IsModerator  bool          `toml:"is_moderator"`
	LoginDelay   time.Duration `toml:"login_delay"`
}

// TomlFeed holds feed cache and view settings
type TomlFeed struct {
	PageSize       int           `toml:"page_size"`
	OwnerUserId    int64         `toml:"owner_user_id"`
	SearchDebounce time.Duration `toml:"search_debounce"`
}

// TomlServer configures the local HTTP surface
type TomlServer struct {
	Listen       string `toml:"listen"`
	AllowOrigins string `toml:"allow_origins"`
}

// TomlConfig represents the top-level configuration
type TomlConfig struct {
	Database string      `toml:"database"`
	Remote   TomlRemote  `toml:"remote"`
	Account  TomlAccount `toml:"account"`
	Feed     TomlFeed    `toml:"feed"`
	Server   TomlServer  `toml:"server"`
}

// Default returns a configuration that works against the public
// jsonplaceholder API with the built-in test account
func Default() *TomlConfig {
	return &TomlConfig{
		Database: "socialfeed.db",
		Remote: TomlRemote{
			BaseURL:    "https://jsonplaceholder.typicode.com",
			Timeout:    10 * time.Second,
			MaxRetries: 2,
		},
		Account: TomlAccount{
			Email:       "testuser@logicwind.com",
			Password:    "Test123!",
			FirstName:   "Test",
			LastName:    "User",
			IsModerator: true,
			LoginDelay:  500 * time.Millisecond,
		},
		Feed: TomlFeed{
			PageSize:       5,
			OwnerUserId:    211094,
			SearchDebounce: 300 * time.Millisecond,
		},
		Server: TomlServer{
			Listen:       ":3000",
			AllowOrigins: "http://localhost:3001",
		},
	}
}

// LoadConfig reads path on top of the defaults. A missing file yields the
// defaults when allowMissing is set.
func LoadConfig(path string, allowMissing bool) (*TomlConfig, error) {
	config := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if allowMissing && errors.Is(err, os.ErrNotExist) {
			return config, nil
		}
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	return config, nil
}

func (c *TomlConfig) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Remote.BaseURL) == "" {
		errs = append(errs, errors.New("remote.base_url is required"))
	}
	if c.Remote.MaxRetries < 0 {
		errs = append(errs, errors.New("remote.max_retries must not be negative"))
	}
	if c.Feed.PageSize < 1 {
		errs = append(errs, errors.New("feed.page_size must be at least 1"))
	}
	if strings.TrimSpace(c.Account.Email) == "" {
		errs = append(errs, errors.New("account.email is required"))
	}
	if c.Account.Password == "" && c.Account.PasswordHash == "" {
		errs = append(errs, errors.New("account.password or account.password_hash is required"))
	}
	return errors.Join(errs...)
}
