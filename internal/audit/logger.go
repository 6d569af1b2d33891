package audit

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rs/zerolog/log"
)

// Actions recorded by the authorization server. Targets are always
// identifiers (client IDs, token IDs, family IDs), never credentials.
const (
	ActionClientRegister     = "client.register"
	ActionClientUpdate       = "client.update"
	ActionClientSecretRotate = "client.secret_rotate"
	ActionClientRevoke       = "client.revoke"
	ActionCodeIssue          = "code.issue"
	ActionCodeExchange       = "code.exchange"
	ActionTokenRefresh       = "token.refresh"
	ActionTokenReuse         = "token.reuse_detected"
	ActionTokenRevoke        = "token.revoke"
	ActionGrantRevoke        = "grant.revoke"
)

// Event is a single audit record.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Action    string    `json:"action"`
	Actor     string    `json:"actor,omitempty"`  // user or client performing the action
	Target    string    `json:"target,omitempty"` // resource acted on
	Detail    string    `json:"detail,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
}

var auditLogger = log.Output(os.Stdout).With().Str("log_type", "audit").Logger()

// Log records an audit event on stdout as a single JSON document.
func Log(action, actor, target, detail string, success bool, err error) {
	event := Event{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Actor:     actor,
		Target:    target,
		Detail:    detail,
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}

	entry, marshalErr := json.Marshal(event)
	if marshalErr != nil {
		auditLogger.Error().
			Str("action", action).
			Str("actor", actor).
			Str("target", target).
			Bool("success", success).
			Err(err).
			Msg("audit event (marshal fallback)")
		return
	}
	auditLogger.Log().RawJSON("audit_event", entry).Msg("")
}
