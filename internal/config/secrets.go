package config

import (
	"fmt"
	"os"
	"strings"
)

// ResolveSecret expands "env:NAME" and "file:PATH" references. Any other value
// is returned trimmed.
func ResolveSecret(value string) (string, error) {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return "", nil
	case strings.HasPrefix(value, "env:"):
		name := strings.TrimPrefix(value, "env:")
		secret, ok := os.LookupEnv(name)
		if !ok {
			return "", fmt.Errorf("secret env %s is not set", name)
		}
		return strings.TrimSpace(secret), nil
	case strings.HasPrefix(value, "file:"):
		data, err := os.ReadFile(strings.TrimPrefix(value, "file:"))
		if err != nil {
			return "", fmt.Errorf("read secret: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	}
	return value, nil
}
