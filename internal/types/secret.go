package types

import (
	"encoding/json"
	"log/slog"

	"gopkg.in/yaml.v3"
)

const redacted = "[REDACTED]"

// SecretString holds an API key or password. It redacts its value when
// printed or marshaled so credentials never reach logs or config dumps.
type SecretString struct {
	value string
}

func NewSecretString(value string) SecretString {
	return SecretString{value: value}
}

func (s SecretString) Value() string {
	return s.value
}

func (s SecretString) String() string {
	if s.value == "" {
		return ""
	}
	return redacted
}

func (s SecretString) MarshalJSON() ([]byte, error) {
	if s.value == "" {
		return json.Marshal("")
	}
	return json.Marshal(redacted)
}

func (s *SecretString) UnmarshalJSON(data []byte) error {
	var value string
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.value = value
	return nil
}

func (s SecretString) MarshalYAML() (any, error) {
	return s.String(), nil
}

func (s *SecretString) UnmarshalYAML(node *yaml.Node) error {
	var value string
	if err := node.Decode(&value); err != nil {
		return err
	}
	s.value = value
	return nil
}

// LogValue keeps secrets out of slog output.
func (s SecretString) LogValue() slog.Value {
	return slog.StringValue(s.String())
}

func (s SecretString) IsEmpty() bool {
	return s.value == ""
}
