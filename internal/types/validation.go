package types

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// NameValidationConfig contains rules for operation, backend and cache key names.
type NameValidationConfig struct {
	ReservedPatterns  []string
	MaxLength         int
	AllowEmpty        bool
	AllowControlChars bool
	AllowWhitespace   bool
}

// DefaultNameValidationConfig returns the rules used for operation and backend names.
func DefaultNameValidationConfig() NameValidationConfig {
	return NameValidationConfig{
		MaxLength:         128,
		AllowEmpty:        false,
		AllowControlChars: false,
		AllowWhitespace:   false,
		ReservedPatterns:  []string{","},
	}
}

// NameValidator validates identifiers according to configured rules.
type NameValidator struct {
	config NameValidationConfig
}

// NewNameValidator creates a new NameValidator with the given configuration.
func NewNameValidator(config NameValidationConfig) *NameValidator {
	return &NameValidator{config: config}
}

// Validate checks if a name is valid according to the configured rules.
func (v *NameValidator) Validate(name string) error {
	if name == "" {
		if !v.config.AllowEmpty {
			return fmt.Errorf("%w: name cannot be empty", ErrInvalidKey)
		}
		return nil
	}

	if v.config.MaxLength > 0 && len(name) > v.config.MaxLength {
		return fmt.Errorf("%w: name length %d exceeds maximum %d bytes",
			ErrInvalidKey, len(name), v.config.MaxLength)
	}

	if !utf8.ValidString(name) {
		return fmt.Errorf("%w: name contains invalid UTF-8", ErrInvalidKey)
	}

	for i, r := range name {
		if !v.config.AllowControlChars && (r < 32 || r == 127) {
			return fmt.Errorf("%w: name contains control character at position %d", ErrInvalidKey, i)
		}
		if !v.config.AllowWhitespace && unicode.IsSpace(r) {
			return fmt.Errorf("%w: name contains whitespace at position %d", ErrInvalidKey, i)
		}
	}

	// Commas separate vendor lists in configuration.
	for _, pattern := range v.config.ReservedPatterns {
		if strings.Contains(name, pattern) {
			return fmt.Errorf("%w: name contains reserved pattern %q", ErrInvalidKey, pattern)
		}
	}

	return nil
}

// ValidateName validates a name using the default validator.
func ValidateName(name string) error {
	return DefaultNameValidator.Validate(name)
}

// DefaultNameValidator is the default validator instance.
var DefaultNameValidator = NewNameValidator(DefaultNameValidationConfig())
