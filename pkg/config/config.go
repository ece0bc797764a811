package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"sync"

	"github.com/gagliardetto/solana-go"
	"github.com/go-playground/validator/v10"
	"github.com/openfroyo/hookguard/pkg/address"
	"github.com/openfroyo/hookguard/pkg/ledger"
	"github.com/openfroyo/hookguard/pkg/telemetry"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Environment overrides, applied after the file is read.
const (
	EnvLedgerPath = "HOOKGUARD_LEDGER_PATH"
	EnvLogLevel   = "HOOKGUARD_LOG_LEVEL"
)

// DefaultLedgerPath is used when neither the file nor the environment name a
// ledger.
const DefaultLedgerPath = "hookguard.db"

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
	FormatCUE  Format = "cue"
)

// FormatOf picks the format from a file extension. JSON is read as YAML.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	case ".cue":
		return FormatCUE, nil
	}
	return "", fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Path: DefaultLedgerPath,
		},
		Program: ProgramConfig{
			ID:           address.DefaultProgramID.String(),
			TokenProgram: solana.TokenProgramID.String(),
		},
		Telemetry: *telemetry.DefaultConfig(),
	}
}

// Load reads the configuration at path, or only the defaults when path is
// empty, then applies the environment and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		format, err := FormatOf(path)
		if err != nil {
			return nil, err
		}
		if err := decode(cfg, data, format, path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes data over the defaults and validates the result. The
// environment is not consulted.
func Parse(data []byte, format Format) (*Config, error) {
	cfg := Default()
	if err := decode(cfg, data, format, ""); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode overlays data on cfg. TOML and CUE documents are normalized to a
// generic tree and decoded through YAML so every format shares one set of
// field names and duration syntax ("5s").
func decode(cfg *Config, data []byte, format Format, filename string) error {
	var tree map[string]interface{}

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
		return nil

	case FormatTOML:
		if err := toml.Unmarshal(data, &tree); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}

	case FormatCUE:
		var err error
		if tree, err = decodeCUE(data, filename); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported config format %q", format)
	}

	normalized, err := yaml.Marshal(tree)
	if err != nil {
		return fmt.Errorf("failed to normalize %s config: %w", format, err)
	}
	if err := yaml.Unmarshal(normalized, cfg); err != nil {
		return fmt.Errorf("failed to decode %s config: %w", format, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	if path := os.Getenv(EnvLedgerPath); path != "" {
		c.Ledger.Path = path
	}
	if level := os.Getenv(EnvLogLevel); level != "" {
		c.Telemetry.Logging.Level = level
	}
}

// Validate checks struct constraints and the telemetry section.
func (c *Config) Validate() error {
	v, err := getValidator()
	if err != nil {
		return err
	}

	if err := v.Struct(c); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("failed to validate config: %w", err)
		}

		errs := make(ValidationErrors, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			errs = append(errs, ValidationError{
				Path:    strings.TrimPrefix(fe.Namespace(), "Config."),
				Message: describe(fe),
			})
		}
		return errs
	}

	if err := c.Telemetry.Validate(); err != nil {
		return ValidationErrors{{Path: "telemetry", Message: err.Error()}}
	}
	return nil
}

// ProgramID returns the hook program identity. Validate has checked it.
func (c *Config) ProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Program.ID)
}

// TokenProgramID returns the token engine identity.
func (c *Config) TokenProgramID() solana.PublicKey {
	return solana.MustPublicKeyFromBase58(c.Program.TokenProgram)
}

// LedgerConfig returns the store configuration for the ledger section.
func (c *Config) LedgerConfig() ledger.Config {
	return ledger.Config{Path: c.Ledger.Path, MaxOpenConns: c.Ledger.MaxOpenConns}
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "pubkey":
		return fmt.Sprintf("%q is not a base58 public key", fe.Value())
	case "gte":
		return "must be at least " + fe.Param()
	}
	return fmt.Sprintf("failed %q validation", fe.Tag())
}

var (
	validate     *validator.Validate
	validateErr  error
	validateOnce sync.Once
)

func getValidator() (*validator.Validate, error) {
	validateOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())

		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("yaml"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})

		validateErr = v.RegisterValidation("pubkey", func(fl validator.FieldLevel) bool {
			_, err := solana.PublicKeyFromBase58(fl.Field().String())
			return err == nil
		})
		validate = v
	})
	return validate, validateErr
}
