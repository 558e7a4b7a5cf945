package model

import "github.com/m-mizutani/goerr/v2"

// Sentinel errors for domain operations
var (
	ErrCredentialNotFound = goerr.New("destination credential not found")
	ErrRunNotFound        = goerr.New("run not found")
	ErrRootTeamNotFound   = goerr.New("organization root team not found")
	ErrTeamNameExhausted  = goerr.New("no unique team name available")
)

// Error tags classify failures by how far they propagate
var (
	// ErrTagConfig marks configuration-fatal errors detected before any mutation
	ErrTagConfig = goerr.NewTag("config")
	// ErrTagAuth marks unrecoverable authentication failures; the run must stop
	ErrTagAuth = goerr.NewTag("auth")
	// ErrTagRateLimited marks a call that stayed rate limited past the retry ceiling
	ErrTagRateLimited = goerr.NewTag("rate_limited")
	// ErrTagAPI marks any other non-2xx destination response
	ErrTagAPI = goerr.NewTag("api")
	// ErrTagNotFound is added to ErrTagAPI errors for 404 responses
	ErrTagNotFound = goerr.NewTag("not_found")
)

// IsRunFatal reports whether err must abort the whole reconciliation run
func IsRunFatal(err error) bool {
	if err == nil {
		return false
	}
	return goerr.HasTag(err, ErrTagAuth) || goerr.HasTag(err, ErrTagConfig)
}
