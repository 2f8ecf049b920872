// Package validation provides input validation helpers for the Rankwell API.
package validation

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
)

// MaxRequestSize is the maximum request body size (1MB)
const MaxRequestSize = 1 << 20 // 1MB

// MaxKeywordLength is the maximum length of a single tracked keyword.
const MaxKeywordLength = 200

// MaxKeywordBatch is the maximum number of keywords accepted in one request.
const MaxKeywordBatch = 1000

var (
	// domainRegex validates bare hostnames such as "example.co.uk"
	domainRegex = regexp.MustCompile(`^([a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?\.)+[a-z]{2,63}$`)
	whitespace  = regexp.MustCompile(`\s+`)
)

// RequestSizeMiddleware limits request body size
func RequestSizeMiddleware(maxSize int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize)
		c.Next()
	}
}

// SanitizeString removes dangerous characters and limits length
func SanitizeString(s string, maxLen int) string {
	s = strings.TrimSpace(s)
	if len(s) > maxLen {
		s = s[:maxLen]
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// NormalizeDomain lowercases a site domain and strips scheme, "www." and path.
func NormalizeDomain(raw string) string {
	d := strings.ToLower(strings.TrimSpace(raw))
	d = strings.TrimPrefix(d, "https://")
	d = strings.TrimPrefix(d, "http://")
	d = strings.TrimPrefix(d, "www.")
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	return d
}

// IsValidDomain checks if a normalized domain is a plausible hostname.
func IsValidDomain(d string) bool {
	return len(d) <= 253 && domainRegex.MatchString(d)
}

// NormalizeKeywords lowercases, collapses whitespace and de-duplicates a
// keyword batch, dropping blanks. Input order is kept.
func NormalizeKeywords(raw []string) []string {
	seen := make(map[string]bool, len(raw))
	out := make([]string, 0, len(raw))
	for _, k := range raw {
		k = whitespace.ReplaceAllString(strings.ToLower(SanitizeString(k, MaxKeywordLength)), " ")
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}
	return e[0].Field + ": " + e[0].Message
}

// Validate runs validators and collects the failures.
func Validate(validators ...func() *ValidationError) ValidationErrors {
	var errs ValidationErrors
	for _, v := range validators {
		if err := v(); err != nil {
			errs = append(errs, *err)
		}
	}
	return errs
}

// Required checks if a field is non-empty
func Required(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if strings.TrimSpace(value) == "" {
			return &ValidationError{Field: field, Message: "is required"}
		}
		return nil
	}
}

// ValidDomain checks if a field is a valid site domain
func ValidDomain(field, value string) func() *ValidationError {
	return func() *ValidationError {
		if value == "" {
			return nil // Use Required for required fields
		}
		if !IsValidDomain(NormalizeDomain(value)) {
			return &ValidationError{Field: field, Message: "must be a valid domain (example.com)"}
		}
		return nil
	}
}

// MaxLength checks if a field exceeds max length
func MaxLength(field, value string, max int) func() *ValidationError {
	return func() *ValidationError {
		if len(value) > max {
			return &ValidationError{Field: field, Message: "exceeds maximum length"}
		}
		return nil
	}
}

// BatchSize checks that a list has between 1 and max entries.
func BatchSize(field string, n, max int) func() *ValidationError {
	return func() *ValidationError {
		switch {
		case n == 0:
			return &ValidationError{Field: field, Message: "must not be empty"}
		case n > max:
			return &ValidationError{Field: field, Message: "too many entries"}
		}
		return nil
	}
}
