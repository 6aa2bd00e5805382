package logging

import (
	"encoding/json"
	"strings"

	"github.com/sirupsen/logrus"
)

// RedactedValue replaces sensitive values in log output.
const RedactedValue = "***REDACTED***"

// Key fragments that mark a field as sensitive.
var sensitiveKeyPatterns = []string{
	"password",
	"secret",
	"token",
	"authorization",
	"credential",
}

// IsSensitiveKey reports whether a field name looks like it carries a secret
func IsSensitiveKey(key string) bool {
	keyLower := strings.ToLower(key)
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(keyLower, pattern) {
			return true
		}
	}
	return false
}

// RedactHook masks sensitive fields before an entry is formatted
type RedactHook struct{}

func NewRedactHook() *RedactHook {
	return &RedactHook{}
}

func (h *RedactHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *RedactHook) Fire(entry *logrus.Entry) error {
	for k, v := range entry.Data {
		if k == logrus.ErrorKey {
			continue
		}
		if IsSensitiveKey(k) {
			if s, ok := v.(string); ok && s == "" {
				continue
			}
			entry.Data[k] = RedactedValue
			continue
		}
		if m, ok := v.(map[string]interface{}); ok {
			entry.Data[k] = redactValue(m)
		}
	}
	return nil
}

// RedactJSON returns body with every sensitive key masked. Bodies that are
// not JSON are dropped entirely since they cannot be inspected.
func RedactJSON(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var decoded interface{}
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "***UNPARSEABLE BODY***"
	}

	out, err := json.Marshal(redactValue(decoded))
	if err != nil {
		return "***UNPARSEABLE BODY***"
	}
	return string(out)
}

func redactValue(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		redacted := make(map[string]interface{}, len(val))
		for k, inner := range val {
			if IsSensitiveKey(k) {
				redacted[k] = RedactedValue
				continue
			}
			redacted[k] = redactValue(inner)
		}
		return redacted
	case []interface{}:
		redacted := make([]interface{}, len(val))
		for i, inner := range val {
			redacted[i] = redactValue(inner)
		}
		return redacted
	default:
		return v
	}
}
