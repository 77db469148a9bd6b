package api

import (
	"encoding/json"
	"io"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/claude-watch/relay/apperror"
)

// BindJSON decodes the request body into dst, accepting both camelCase and
// legacy snake_case field names. Every handler uses this instead of gin's
// ShouldBindJSON so older bridge/client builds using snake_case keep
// working against a relay that now only documents camelCase.
func BindJSON(c *gin.Context, dst any) error {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "failed to read request body", err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return apperror.Wrap(apperror.InvalidInput, "malformed JSON body", err)
	}

	normalized, err := json.Marshal(camelizeKeys(raw))
	if err != nil {
		return apperror.Wrap(apperror.InvalidInput, "failed to normalize request body", err)
	}

	if err := json.Unmarshal(normalized, dst); err != nil {
		return apperror.Wrap(apperror.InvalidInput, "request body does not match expected shape", err)
	}
	return nil
}

// camelizeKeys recursively rewrites snake_case object keys to camelCase so a
// single set of camelCase-tagged structs can decode either convention.
func camelizeKeys(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[snakeToCamel(k)] = camelizeKeys(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = camelizeKeys(val)
		}
		return out
	default:
		return v
	}
}

func snakeToCamel(s string) string {
	if !strings.Contains(s, "_") {
		return s
	}
	parts := strings.Split(s, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
