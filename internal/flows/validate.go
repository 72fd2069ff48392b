package flows

import (
	"errors"
	"strings"

	"github.com/MrEthical07/authcore/jwt"
)

// ValidateFailureKind classifies access token validation failures.
type ValidateFailureKind int

const (
	ValidateFailureNone ValidateFailureKind = iota
	ValidateFailureMissingToken
	ValidateFailureInvalid
	ValidateFailureExpired
)

// ValidateResult returns either the verified claims or a classified failure.
type ValidateResult struct {
	Failure ValidateFailureKind
	Err     error
	Claims  *jwt.AccessClaims
}

// ValidateDeps captures access validation dependencies.
type ValidateDeps struct {
	ParseAccess func(string) (*jwt.AccessClaims, error)
}

// RunValidate checks signature and expiry of an access token. It performs no
// store lookups.
func RunValidate(tokenStr string, deps ValidateDeps) ValidateResult {
	tokenStr = strings.TrimSpace(tokenStr)
	if tokenStr == "" {
		return ValidateResult{Failure: ValidateFailureMissingToken}
	}

	claims, err := deps.ParseAccess(tokenStr)
	if err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return ValidateResult{Failure: ValidateFailureExpired, Err: err}
		}
		return ValidateResult{Failure: ValidateFailureInvalid, Err: err}
	}

	return ValidateResult{Claims: claims}
}
