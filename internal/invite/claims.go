package invite

import "github.com/golang-jwt/jwt/v5"

type Kind string

const (
	// KindCandidate links let a candidate submit references for a check.
	KindCandidate Kind = "candidate"
	// KindReference links let a reference view the check and schedule a call.
	KindReference Kind = "reference"
)

// Claims are the only supported link token shape. Subject is the check id for
// candidate links and the contact id for reference links.
type Claims struct {
	jwt.RegisteredClaims

	Kind Kind `json:"kind"`
}
