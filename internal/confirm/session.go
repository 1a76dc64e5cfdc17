// internal/confirm/session.go
package confirm

import (
	"time"

	"resetctl/internal/scope"
)

// Session states.
const (
	StateActive   = "active"
	StateSettling = "settling" // stage 5 passed, settle delay running
)

// NumStages is the number of confirmation stages an operator must pass.
const NumStages = 5

// Session is the server-held state of one confirmation flow. The server is
// the sole authority on stage ordering and input validity; clients are never
// trusted with either.
type Session struct {
	ID           string           `json:"id"`
	TenantID     string           `json:"tenantId"`
	Scope        scope.Descriptor `json:"scope"`
	Stage        int              `json:"stage"` // 1..5, the stage awaiting input
	StageInputs  map[int]string   `json:"stageInputs"`
	PreviewCount int              `json:"previewCount"` // to-delete count shown to the operator
	State        string           `json:"state"`
	CreatedAt    time.Time        `json:"createdAt"`
	ExpiresAt    time.Time        `json:"expiresAt"` // absolute, independent of per-stage activity
}

func (s Session) expired(now time.Time) bool { return now.After(s.ExpiresAt) }

// stagePrompt documents each stage for API consumers.
var stagePrompt = map[int]string{
	1: "acknowledge that deletion is permanent",
	2: "acknowledge the resource-count preview has been reviewed",
	3: "enter the tenant id verbatim",
	4: "acknowledge the control identity will be preserved",
	5: "type DELETE to commit",
}

// StagePrompt returns the operator-facing description of a stage.
func StagePrompt(stage int) string { return stagePrompt[stage] }

// validStageInput is the per-stage predicate. Matches are byte-exact and
// case-sensitive; stage 3 must reproduce the tenant id verbatim.
func validStageInput(s Session, stage int, input string) bool {
	switch stage {
	case 1, 2, 4:
		return input == "yes"
	case 3:
		return input == s.TenantID
	case 5:
		return input == "DELETE"
	}
	return false
}
