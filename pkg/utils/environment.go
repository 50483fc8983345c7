package utils

import "strings"

// Environment identifies the deployment target of the server. It decides
// whether call media is routed to the fixed production relay or to a
// locally reachable WebSocket endpoint.
type Environment string

const (
	PRODUCTION Environment = "production"
	LOCAL      Environment = "local"
)

// Get returns the string form of the environment.
func (e Environment) Get() string {
	return string(e)
}

// IsProduction reports whether the server runs against the production relay.
func (e Environment) IsProduction() bool {
	return e == PRODUCTION
}

// FromEnvironmentStr parses an environment tag, defaulting to LOCAL for
// anything unrecognized.
func FromEnvironmentStr(env string) Environment {
	switch strings.ToLower(env) {
	case "production":
		return PRODUCTION
	case "local":
		return LOCAL
	default:
		return LOCAL
	}
}
