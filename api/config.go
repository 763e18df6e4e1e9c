package api

import (
	"errors"
	"strings"
	"time"
)

type Config struct {
	Addr            string        `split_words:"true" default:":8080"`
	ReadTimeout     time.Duration `split_words:"true" default:"10s"`
	WriteTimeout    time.Duration `split_words:"true" default:"120s"`
	ShutdownTimeout time.Duration `split_words:"true" default:"10s"`
	// ExpireEvery is how often pending approvals are checked against the
	// approval TTL. 0 disables the sweep.
	ExpireEvery time.Duration `split_words:"true" default:"1m"`
	// MountSupplier serves the mock supplier under /supplier on the same
	// listener.
	MountSupplier bool `split_words:"true" default:"true"`
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Addr) == "" {
		return errors.New("listen address is required")
	}
	if c.ReadTimeout < 0 || c.WriteTimeout < 0 || c.ShutdownTimeout < 0 || c.ExpireEvery < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}
