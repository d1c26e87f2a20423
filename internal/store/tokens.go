package store

import (
	"database/sql"
	"fmt"

	"github.com/terminal-coder/tc/internal/domain"
)

// SessionToken binds an opaque token to the session and task it scopes
// control-plane requests to.
type SessionToken struct {
	Token     string
	SessionID string
	TaskID    string
}

// MintSessionToken records a new session token, minted by the engine when a
// session is created and handed to the Agent via the per-task MCP config
// file (.tc/mcp/<task_id>.json) the engine writes on dispatch.
func (r *Repository) MintSessionToken(token, sessionID, taskID string) error {
	return r.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`INSERT INTO session_tokens (token, session_id, task_id) VALUES (?, ?, ?)`, token, sessionID, taskID)
		if err != nil {
			return domain.NewError(domain.ErrInfrastructure, sessionID, err)
		}
		return nil
	})
}

// ResolveSessionToken maps a token back to its session and task.
func (r *Repository) ResolveSessionToken(token string) (SessionToken, error) {
	var st SessionToken
	row := r.db.QueryRow(`SELECT token, session_id, task_id FROM session_tokens WHERE token = ?`, token)
	if err := row.Scan(&st.Token, &st.SessionID, &st.TaskID); err != nil {
		if err == sql.ErrNoRows {
			return SessionToken{}, domain.NewError(domain.ErrValidation, token, fmt.Errorf("unknown session token"))
		}
		return SessionToken{}, domain.NewError(domain.ErrInfrastructure, token, err)
	}
	return st, nil
}

// revokeSessionTokens deletes every token minted for sessionID, within an
// already-open transaction. Called from every path that ends a session
// (FinishSession, ResetTask, ResetPhase) so a terminated session's token can
// never be replayed against the task's next, different session (spec §4.7,
// spec §8 property #3: at most one live session per task).
func revokeSessionTokens(tx *sql.Tx, sessionID string) error {
	if _, err := tx.Exec(`DELETE FROM session_tokens WHERE session_id = ?`, sessionID); err != nil {
		return domain.NewError(domain.ErrInfrastructure, sessionID, err)
	}
	return nil
}
