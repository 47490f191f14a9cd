// Package query is the Traceability Query Engine's internal query
// surface: a gate that rejects mutating or SSRF-shaped SPARQL-style
// requests, and a reduced pattern-matching executor that runs what
// survives the gate against the union of committed named graphs.
// pkg/trace renders every hop of its walk as one of these requests
// before executing it, so the walk can never do anything the (currently
// out-of-scope) external query endpoint would itself be forbidden to
// do.
package query

import (
	"fmt"
	"strings"
)

// Config mirrors which query forms the engine accepts.
type Config struct {
	MaxQueryLength int
	AllowSelect    bool
	AllowAsk       bool
	AllowConstruct bool
	AllowDescribe  bool
}

// DefaultConfig matches the traceability engine's own needs: read-only
// SELECT/ASK traversal, no CONSTRUCT/DESCRIBE surface.
func DefaultConfig() Config {
	return Config{
		MaxQueryLength: 50_000,
		AllowSelect:    true,
		AllowAsk:       true,
		AllowConstruct: false,
		AllowDescribe:  false,
	}
}

var updateKeywords = []string{"INSERT", "DELETE", "LOAD", "CLEAR", "CREATE", "DROP", "COPY", "MOVE", "ADD"}

var sensitiveProperties = []string{
	"password", "passwd", "pwd", "token", "secret", "credential",
	"hash", "salt", "key", "private", "auth", "login", "session",
	"csrf", "jwt", "bearer", "cookie", "api_key", "apikey",
}

// Validator rejects any query string that would mutate the store, leak
// sensitive vocabulary, or reach outside the local dataset.
type Validator struct {
	cfg Config
}

func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

func WithDefaultConfig() *Validator {
	return NewValidator(DefaultConfig())
}

// Validate rejects q unless it is a well-formed, side-effect-free query
// of a form this validator's config allows.
func (v *Validator) Validate(q string) error {
	trimmed := strings.TrimSpace(q)
	if trimmed == "" {
		return fmt.Errorf("query: query must not be empty")
	}
	if len(q) > v.cfg.MaxQueryLength {
		return fmt.Errorf("query: query too long (max %d chars, got %d)", v.cfg.MaxQueryLength, len(q))
	}
	if err := v.validateQueryType(trimmed); err != nil {
		return err
	}
	return v.checkInjectionPatterns(q)
}

func (v *Validator) validateQueryType(trimmed string) error {
	upper := strings.ToUpper(trimmed)

	for _, kw := range updateKeywords {
		if strings.Contains(upper, kw) {
			return fmt.Errorf("query: update operation %q is not allowed", kw)
		}
	}

	hasSelect := strings.HasPrefix(upper, "SELECT")
	hasAsk := strings.HasPrefix(upper, "ASK")
	hasConstruct := strings.HasPrefix(upper, "CONSTRUCT")
	hasDescribe := strings.HasPrefix(upper, "DESCRIBE")

	switch {
	case hasSelect && !v.cfg.AllowSelect:
		return fmt.Errorf("query: SELECT queries are not allowed")
	case hasAsk && !v.cfg.AllowAsk:
		return fmt.Errorf("query: ASK queries are not allowed")
	case hasConstruct && !v.cfg.AllowConstruct:
		return fmt.Errorf("query: CONSTRUCT queries are not allowed")
	case hasDescribe && !v.cfg.AllowDescribe:
		return fmt.Errorf("query: DESCRIBE queries are not allowed")
	}

	if !hasSelect && !hasAsk && !hasConstruct && !hasDescribe {
		return fmt.Errorf("query: query must start with SELECT, ASK, CONSTRUCT, or DESCRIBE")
	}
	return nil
}

func (v *Validator) checkInjectionPatterns(q string) error {
	upper := strings.ToUpper(q)
	lower := strings.ToLower(q)

	for _, sensitive := range sensitiveProperties {
		if strings.Contains(lower, ":"+sensitive) || strings.Contains(lower, "?"+sensitive) {
			if usedAsProperty(lower, sensitive) {
				return fmt.Errorf("query: access to sensitive property %q is not allowed", sensitive)
			}
		}
		if strings.Contains(lower, sensitive) && (strings.Contains(upper, "FILTER") || strings.Contains(upper, "REGEX")) {
			return fmt.Errorf("query: potential injection: sensitive property %q in FILTER/REGEX", sensitive)
		}
	}

	if strings.Contains(q, "--") || strings.Contains(q, "#") {
		for _, pattern := range []string{"-- DROP", "#; DROP", "*/"} {
			if strings.Contains(upper, pattern) {
				return fmt.Errorf("query: potential injection via comment pattern %q", pattern)
			}
		}
	}

	if n := strings.Count(q, ";"); n > 5 {
		return fmt.Errorf("query: too many statements (detected %d, max 5)", n+1)
	}

	if strings.Contains(upper, "SERVICE") {
		return fmt.Errorf("query: SERVICE clause is not allowed (potential SSRF)")
	}

	if strings.Contains(upper, "GRAPH") && hasUnsafeGraphPattern(upper) {
		return fmt.Errorf("query: unsafe GRAPH clause detected")
	}

	if strings.Contains(q, "<<<") || strings.Contains(q, ">>>") {
		return fmt.Errorf("query: RDF* triple patterns are not allowed")
	}

	dangerousFunctions := []string{"MD5", "SHA1", "SHA256", "ENCRYPT"}
	if strings.Contains(upper, "BIND") {
		for _, fn := range dangerousFunctions {
			if strings.Contains(upper, fn) {
				return fmt.Errorf("query: use of %s in BIND is not allowed", fn)
			}
		}
	}
	return nil
}

func usedAsProperty(lower, sensitive string) bool {
	for _, pattern := range []string{":" + sensitive, "?" + sensitive} {
		pos := strings.Index(lower, pattern)
		if pos < 0 {
			continue
		}
		after := lower[pos+len(pattern):]
		for _, prefix := range []string{" ", "\t", ";", "}", "|", "/", "^"} {
			if strings.HasPrefix(after, prefix) {
				return true
			}
		}
	}
	return false
}

func hasUnsafeGraphPattern(upper string) bool {
	hasGraphVariable := strings.Contains(upper, "GRAPH ?G") || strings.Contains(upper, "GRAPH ?GRAPH")
	if strings.Contains(upper, "GRAPH <") {
		for _, unsafe := range []string{"ADMIN", "SECRET", "PASSWORD", "AUTH", "CONFIG", "PRIVATE", "INTERNAL", "SYSTEM", "METADATA", "../", "./", `\.\.`} {
			if strings.Contains(upper, unsafe) {
				return true
			}
		}
	}
	return !hasGraphVariable
}
