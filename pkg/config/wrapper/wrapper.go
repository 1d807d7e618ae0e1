package wrapper

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cast"

	"github.com/code-payments/code-solana-client/pkg/config"
)

// ErrUnsuportedConversion indicates the wrapper does not implement conversion from the source type
var ErrUnsuportedConversion = errors.New("config: wrapper conversion from source type not implemented")

// Converter turns a raw source value into a typed value.
type Converter[T any] func(raw interface{}) (T, error)

// Value is a utility wrapper that converts a config.Config into a typed
// config with a default value.
type Value[T any] struct {
	override     config.Config
	defaultValue T
	convert      Converter[T]

	stateMu   sync.RWMutex
	lastValue T
}

// New returns a new typed config utility wrapper.
func New[T any](override config.Config, defaultValue T, convert Converter[T]) *Value[T] {
	return &Value[T]{
		override:     override,
		defaultValue: defaultValue,
		convert:      convert,
		lastValue:    defaultValue,
	}
}

// GetSafe gets a config value and propagates any errors that arise. A best-effort
// attempt is made to return the last known value
func (c *Value[T]) GetSafe(ctx context.Context) (T, error) {
	override, err := c.override.Get(ctx)

	c.stateMu.RLock()
	lastValue := c.lastValue
	c.stateMu.RUnlock()

	if errors.Is(err, config.ErrNoValue) {
		c.set(c.defaultValue)
		return c.defaultValue, nil
	} else if err != nil {
		return lastValue, err
	}

	newValue, err := c.convert(override)
	if err != nil {
		return lastValue, err
	}

	c.set(newValue)
	return newValue, nil
}

// Get is a wrapper for GetSafe that ignores the returned error
func (c *Value[T]) Get(ctx context.Context) T {
	val, _ := c.GetSafe(ctx)
	return val
}

// Shutdown signals the config to stop all underlying resources
func (c *Value[T]) Shutdown() {
	c.override.Shutdown()
}

func (c *Value[T]) set(v T) {
	c.stateMu.Lock()
	c.lastValue = v
	c.stateMu.Unlock()
}

// NewBoolConfig returns a new bool config utility wrapper
func NewBoolConfig(override config.Config, defaultValue bool) config.Bool {
	return New(override, defaultValue, ToBool)
}

// NewDurationConfig returns a new time.Duration config utility wrapper
func NewDurationConfig(override config.Config, defaultValue time.Duration) config.Duration {
	return New(override, defaultValue, ToDuration)
}

// NewFloat64Config returns a new float64 config utility wrapper
func NewFloat64Config(override config.Config, defaultValue float64) config.Float64 {
	return New(override, defaultValue, ToFloat64)
}

// NewUint64Config returns a new uint64 config utility wrapper
func NewUint64Config(override config.Config, defaultValue uint64) config.Uint64 {
	return New(override, defaultValue, ToUint64)
}

// NewStringConfig returns a new string config utility wrapper
func NewStringConfig(override config.Config, defaultValue string) config.String {
	return New(override, defaultValue, ToString)
}

// ToBool converts strings ("true", "1", ...), byte slices and bools.
func ToBool(raw interface{}) (bool, error) {
	return convert(raw, cast.ToBoolE)
}

// ToDuration converts duration strings ("1.5s"), byte slices and
// time.Duration values. Bare integers are nanoseconds.
func ToDuration(raw interface{}) (time.Duration, error) {
	return convert(raw, cast.ToDurationE)
}

// ToFloat64 converts numeric values, strings and byte slices.
func ToFloat64(raw interface{}) (float64, error) {
	return convert(raw, cast.ToFloat64E)
}

// ToUint64 converts non-negative numeric values, strings and byte slices.
func ToUint64(raw interface{}) (uint64, error) {
	return convert(raw, cast.ToUint64E)
}

// ToString converts strings and byte slices only.
func ToString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	default:
		return "", ErrUnsuportedConversion
	}
}

func convert[T any](raw interface{}, fn func(interface{}) (T, error)) (T, error) {
	if b, ok := raw.([]byte); ok {
		raw = string(b)
	}

	v, err := fn(raw)
	if err != nil {
		var zero T
		return zero, errors.Wrap(ErrUnsuportedConversion, err.Error())
	}
	return v, nil
}
