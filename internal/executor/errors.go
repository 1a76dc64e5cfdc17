package executor

import "errors"

var (
	// ErrTokenExpired means the token's lifetime elapsed before execute.
	ErrTokenExpired = errors.New("confirmation token expired")
	// ErrTokenScopeMismatch means the token's bound scope does not
	// byte-for-byte match the requested scope. The token is not consumed;
	// the operator must re-run the confirmation flow for the right scope.
	ErrTokenScopeMismatch = errors.New("token scope does not match requested scope")
	// ErrPreviewDiverged (strict mode only) means execute-time re-resolution
	// drifted beyond tolerance from the confirmed preview.
	ErrPreviewDiverged = errors.New("inventory diverged from confirmed preview")
)
