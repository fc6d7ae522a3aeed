package bridgelua

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/go-redis/redis/v8"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/multierr"
)

// Config supplies interpreter settings to NewRuntimeWithConfig.
type Config interface {
	GetLuaOptions() lua.Options
	// Maximum event queue size.
	GetEventQueueSize() int
	// Lua script entry.
	GetScriptEntry() string
}

// FileConfig is the TOML-backed configuration carrying interpreter
// settings plus the named script hooks the bridges resolve at
// runtime.
type FileConfig struct {
	Runtime   RuntimeConfig   `toml:"runtime"`
	Redis     RedisConfig     `toml:"redis"`
	ViewModel ViewModelConfig `toml:"viewmodel"`
	Widget    WidgetConfig    `toml:"widget"`
}

type RuntimeConfig struct {
	Entry          string `toml:"entry"`
	EventQueueSize int    `toml:"event_queue_size"`
	CallStackSize  int    `toml:"call_stack_size"`
	RegistrySize   int    `toml:"registry_size"`
}

type RedisConfig struct {
	Address  string `toml:"address"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type ViewModelConfig struct {
	OnGetProperty string `toml:"on_get_property"`
	OnSetProperty string `toml:"on_set_property"`
}

type WidgetConfig struct {
	OnConstructed string `toml:"on_constructed"`
	OnActivated   string `toml:"on_activated"`
	OnDeactivated string `toml:"on_deactivated"`
	OnDestructed  string `toml:"on_destructed"`
}

// NewFileConfig returns a configuration with usable defaults.
func NewFileConfig() *FileConfig {
	return &FileConfig{
		Runtime: RuntimeConfig{
			Entry:          "main",
			EventQueueSize: 128,
			CallStackSize:  128,
			RegistrySize:   512,
		},
	}
}

// LoadConfig reads and validates a TOML configuration file.
func LoadConfig(path string) (*FileConfig, error) {
	config := NewFileConfig()
	if _, err := toml.DecodeFile(path, config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// Validate reports every configuration problem at once.
func (c *FileConfig) Validate() error {
	var err error
	if c.Runtime.Entry == "" {
		err = multierr.Append(err, fmt.Errorf("runtime.entry must not be empty"))
	}
	if c.Runtime.EventQueueSize < 0 {
		err = multierr.Append(err, fmt.Errorf("runtime.event_queue_size must not be negative"))
	}
	if c.Runtime.CallStackSize < 0 {
		err = multierr.Append(err, fmt.Errorf("runtime.call_stack_size must not be negative"))
	}
	if c.Runtime.RegistrySize < 0 {
		err = multierr.Append(err, fmt.Errorf("runtime.registry_size must not be negative"))
	}
	if c.Redis.DB < 0 {
		err = multierr.Append(err, fmt.Errorf("redis.db must not be negative"))
	}
	return err
}

func (c *FileConfig) GetLuaOptions() lua.Options {
	return lua.Options{
		CallStackSize:       c.Runtime.CallStackSize,
		RegistrySize:        c.Runtime.RegistrySize,
		RegistryGrowStep:    128,
		SkipOpenLibs:        true,
		IncludeGoStackTrace: true,
	}
}

func (c *FileConfig) GetEventQueueSize() int {
	return c.Runtime.EventQueueSize
}

func (c *FileConfig) GetScriptEntry() string {
	return c.Runtime.Entry
}

// Options converts the redis section for WithModuleRedis.
func (c RedisConfig) Options() *redis.Options {
	return &redis.Options{
		Addr:     c.Address,
		Password: c.Password,
		DB:       c.DB,
	}
}

// Options converts the viewmodel section for NewViewModel.
func (c ViewModelConfig) Options() []ViewModelOption {
	options := make([]ViewModelOption, 0, 2)
	if c.OnGetProperty != "" {
		options = append(options, WithGetPropertyHook(c.OnGetProperty))
	}
	if c.OnSetProperty != "" {
		options = append(options, WithSetPropertyHook(c.OnSetProperty))
	}
	return options
}

// Options converts the widget section for NewWidget.
func (c WidgetConfig) Options() []WidgetOption {
	return []WidgetOption{
		WithLifecycleHooks(
			c.OnConstructed,
			c.OnActivated,
			c.OnDeactivated,
			c.OnDestructed,
		),
	}
}
