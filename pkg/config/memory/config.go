// Package memory provides a config.Config backed by a value held in memory.
// It is used for test overrides and for values fixed at construction.
package memory

import (
	"context"
	"sync/atomic"

	"github.com/code-payments/code-solana-client/pkg/config"
)

type state struct {
	value    interface{}
	err      error
	shutdown bool
}

// Config is an in memory config.Config. A nil value means no value is set.
// Zero values of other types are returned as is.
type Config struct {
	state atomic.Pointer[state]
}

func NewConfig(value interface{}) *Config {
	c := &Config{}
	c.state.Store(&state{value: value})
	return c
}

// Get implements config.Config.Get.
func (c *Config) Get(_ context.Context) (interface{}, error) {
	s := c.state.Load()
	switch {
	case s.shutdown:
		return nil, config.ErrShutdown
	case s.err != nil:
		return nil, s.err
	case s.value == nil:
		return nil, config.ErrNoValue
	}
	return s.value, nil
}

// Shutdown implements config.Config.Shutdown. Later updates are ignored.
func (c *Config) Shutdown() {
	c.update(func(s *state) { s.shutdown = true })
}

// Set replaces the value returned by Get.
func (c *Config) Set(value interface{}) {
	c.update(func(s *state) { s.value = value })
}

// Clear removes the value, so Get returns config.ErrNoValue.
func (c *Config) Clear() {
	c.Set(nil)
}

// SetError makes Get fail with err until it is called again with nil.
func (c *Config) SetError(err error) {
	c.update(func(s *state) { s.err = err })
}

func (c *Config) update(fn func(*state)) {
	for {
		old := c.state.Load()
		if old.shutdown {
			return
		}

		next := *old
		fn(&next)
		if c.state.CompareAndSwap(old, &next) {
			return
		}
	}
}
