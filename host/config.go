package host

import (
	"encoding/json"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/wasm-bridge/errors"
)

// Config holds the host's tunables. Zero values are replaced by defaults
// in LoadConfig, ParseConfig and New.
type Config struct {
	// MaxWorkers limits concurrently running workers. 0 means unlimited.
	MaxWorkers int `yaml:"max_workers" json:"max_workers" validate:"gte=0" jsonschema:"description=Maximum number of concurrently running workers (0 means unlimited)"`

	// Parallelism is reported to the module. 0 reports the number of CPUs.
	Parallelism uint32 `yaml:"parallelism" json:"parallelism" jsonschema:"description=Parallelism reported to the module (0 means number of CPUs)"`

	// TLSSize and TLSAlign describe the thread-local block of modules that
	// cannot report it themselves.
	TLSSize  uint32 `yaml:"tls_size" json:"tls_size" jsonschema:"description=Thread-local storage block size in bytes"`
	TLSAlign uint32 `yaml:"tls_align" json:"tls_align" validate:"omitempty,pow2" jsonschema:"description=Thread-local storage alignment (power of two)"`

	// FetchTimeout bounds a single fetch request.
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout" validate:"gte=0" jsonschema:"description=Timeout of a single fetch request"`

	// AllowedHosts restricts fetch. Empty allows every host.
	AllowedHosts []string `yaml:"allowed_hosts" json:"allowed_hosts,omitempty" validate:"dive,required" jsonschema:"description=Hosts the fetch library may contact (empty allows all)"`

	// MaxResponseBytes truncates fetch bodies.
	MaxResponseBytes int64 `yaml:"max_response_bytes" json:"max_response_bytes" validate:"gte=0" jsonschema:"description=Maximum fetch response body size in bytes"`

	// StackSize is the worker stack size used by modules the host creates.
	StackSize uint32 `yaml:"stack_size" json:"stack_size" validate:"omitempty,min=65536" jsonschema:"description=Worker stack size in bytes"`

	// MemoryPages and MaxMemoryPages size the linear memory.
	MemoryPages    uint32 `yaml:"memory_pages" json:"memory_pages" validate:"omitempty,min=1,max=65535" jsonschema:"description=Initial linear memory size in 64 KiB pages"`
	MaxMemoryPages uint32 `yaml:"max_memory_pages" json:"max_memory_pages" validate:"omitempty,max=65535,gtefield=MemoryPages" jsonschema:"description=Maximum linear memory size in 64 KiB pages"`
}

// Defaults.
const (
	DefaultMaxWorkers       = 64
	DefaultTLSSize          = 64
	DefaultTLSAlign         = 16
	DefaultFetchTimeout     = 30 * time.Second
	DefaultMaxResponseBytes = 16 << 20
	DefaultStackSize        = 1 << 20
	DefaultMemoryPages      = 17
	DefaultMaxMemoryPages   = 2048
)

// DefaultConfig returns a configuration with every default applied.
func DefaultConfig() Config {
	return Config{}.withDefaults()
}

func (c Config) withDefaults() Config {
	if c.MaxWorkers == 0 {
		c.MaxWorkers = DefaultMaxWorkers
	}
	if c.TLSSize == 0 {
		c.TLSSize = DefaultTLSSize
	}
	if c.TLSAlign == 0 {
		c.TLSAlign = DefaultTLSAlign
	}
	if c.FetchTimeout == 0 {
		c.FetchTimeout = DefaultFetchTimeout
	}
	if c.MaxResponseBytes == 0 {
		c.MaxResponseBytes = DefaultMaxResponseBytes
	}
	if c.StackSize == 0 {
		c.StackSize = DefaultStackSize
	}
	if c.MemoryPages == 0 {
		c.MemoryPages = DefaultMemoryPages
	}
	if c.MaxMemoryPages == 0 {
		c.MaxMemoryPages = DefaultMaxMemoryPages
	}
	return c
}

// validate is shared by every Config; building a validator is expensive.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("pow2", func(fl validator.FieldLevel) bool {
		n := fl.Field().Uint()
		return n != 0 && n&(n-1) == 0
	})
	return v
}

// Validate checks c against its validation tags.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return errors.New(errors.PhaseConfig, errors.KindInvalidInput).
			Detail("config validation failed").
			Cause(err).
			Build()
	}
	return nil
}

// ParseConfig decodes YAML, applies defaults and validates the result.
func ParseConfig(data []byte) (Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindInvalidData).
			Detail("parse config").
			Cause(err).
			Build()
	}
	c = c.withDefaults()
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// LoadConfig reads and parses the YAML file at path.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.New(errors.PhaseConfig, errors.KindNotFound).
			Path(path).
			Detail("read config").
			Cause(err).
			Build()
	}
	return ParseConfig(data)
}

// ConfigSchema returns the JSON Schema of Config.
func ConfigSchema() ([]byte, error) {
	r := jsonschema.Reflector{ExpandedStruct: true}
	s := r.Reflect(&Config{})
	s.Title = "wasm-bridge host configuration"

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, errors.Wrap(errors.PhaseConfig, errors.KindInvalidData, err, "marshal schema")
	}
	return data, nil
}
