package telemetry

import (
	"encoding/json"
	"net/url"
	"strings"
)

// sensitiveKeys are argument and query parameter names whose values never
// reach trace attributes.
var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"token":         true,
	"secret":        true,
	"password":      true,
	"auth":          true,
	"authorization": true,
	"access_token":  true,
	"key":           true,
}

func isSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	return sensitiveKeys[lower] ||
		strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") ||
		strings.Contains(lower, "password")
}

// SanitiseURL removes credentials and sensitive query parameters from a URL.
func SanitiseURL(rawURL string) string {
	if rawURL == "" {
		return ""
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" {
		return "[INVALID_URL]"
	}

	parsedURL.User = nil
	if parsedURL.RawQuery != "" {
		query := parsedURL.Query()
		for key := range query {
			if isSensitiveKey(key) || strings.Contains(strings.ToLower(key), "key") {
				query.Set(key, "[REDACTED]")
			}
		}
		parsedURL.RawQuery = query.Encode()
	}
	return parsedURL.String()
}

// SanitiseArguments renders tool arguments as JSON with sensitive values
// redacted.
func SanitiseArguments(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	jsonBytes, err := json.Marshal(sanitiseMap(args))
	if err != nil {
		return `{"error": "failed to serialise arguments"}`
	}
	return string(jsonBytes)
}

func sanitiseMap(m map[string]any) map[string]any {
	sanitised := make(map[string]any, len(m))
	for key, value := range m {
		if isSensitiveKey(key) {
			sanitised[key] = "[REDACTED]"
			continue
		}
		if nested, ok := value.(map[string]any); ok {
			sanitised[key] = sanitiseMap(nested)
			continue
		}
		sanitised[key] = value
	}
	return sanitised
}

// TruncateString truncates a string to a maximum length with ellipsis
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return s[:maxLen-3] + "..."
}
