package env

import "fmt"

type Environment string

const (
	Development Environment = "development"
	Production  Environment = "production"
)

func (e Environment) IsDevelopment() bool { return e == Development }
func (e Environment) IsProduction() bool  { return e == Production }

// UnmarshalText rejects unknown names so a typo in ENV cannot silently run a
// production deployment with development settings.
func (e *Environment) UnmarshalText(text []byte) error {
	switch v := Environment(text); v {
	case Development, Production:
		*e = v
		return nil
	default:
		return fmt.Errorf("unknown environment %q (valid: %s, %s)", text, Development, Production)
	}
}
