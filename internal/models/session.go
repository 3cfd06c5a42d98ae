package models

import (
	"strings"
	"time"
)

// Environment selects the demo or live API endpoint.
type Environment string

const (
	EnvironmentDemo Environment = "demo"
	EnvironmentLive Environment = "live"
)

// EnvironmentFor maps the demo flag from config to an Environment.
func EnvironmentFor(demo bool) Environment {
	if demo {
		return EnvironmentDemo
	}
	return EnvironmentLive
}

// String returns the upper-case label (DEMO / LIVE).
func (e Environment) String() string {
	return strings.ToUpper(string(e))
}

// Credentials are exchanged once for a Session.
type Credentials struct {
	APIKey     string
	Identifier string
	Password   string
}

// Session is the authenticated handle passed to every market client call.
// It is owned by a single run and never shared across processes.
type Session struct {
	CST           string
	SecurityToken string
	Environment   Environment
	AccountID     string
	CreatedAt     time.Time
}

// Valid reports whether both tokens are present.
func (s *Session) Valid() bool {
	return s != nil && s.CST != "" && s.SecurityToken != ""
}
