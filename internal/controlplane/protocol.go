// Package controlplane is the local RPC endpoint the Agent connects to from
// within its terminal session (spec §4.7). Six operations, each scoped by a
// session token minted when the engine starts a session. Every operation
// validates its precondition against internal/statemachine before writing;
// a rejected precondition returns a PRECONDITION error the Agent must treat
// as non-retriable.
//
// Wire framing is grounded on the teacher's MCP stdio transport
// (internal/mcp/transport_stdio.go): newline-delimited JSON over a
// bufio.Scanner, one request per line, one response per line. The teacher's
// transport is a client dialing an external process over stdio; this
// package is a server accepting connections over a UNIX-domain socket, so
// the request/response framing is kept but the connection and dispatch
// loop are new.
package controlplane

import "encoding/json"

// Op identifies one of the six control-plane operations.
type Op string

const (
	OpReportProgress     Op = "report_progress"
	OpReportCompletion   Op = "report_completion"
	OpReportFailure      Op = "report_failure"
	OpReportReview       Op = "report_review"
	OpGetContext         Op = "get_context"
	OpRequestHumanInput  Op = "request_human_input"
)

// Request is one newline-delimited JSON request frame.
type Request struct {
	Op     Op              `json:"op"`
	Token  string          `json:"token"`
	TaskID string          `json:"task_id,omitempty"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ErrorPayload is the wire shape of a failed response.
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Response is one newline-delimited JSON response frame.
type Response struct {
	OK     bool            `json:"ok"`
	Error  *ErrorPayload   `json:"error,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
}

// ReportProgressParams is the params payload for report_progress.
type ReportProgressParams struct {
	Pct  *float64 `json:"pct,omitempty"`
	Note string   `json:"note"`
}

// ReportCompletionParams is the params payload for report_completion.
type ReportCompletionParams struct {
	Summary      string   `json:"summary"`
	FilesChanged []string `json:"files_changed"`
}

// ReportFailureParams is the params payload for report_failure.
type ReportFailureParams struct {
	Message string `json:"message"`
	Context string `json:"context,omitempty"`
}

// ReviewVerdict is the closed set of outcomes for report_review.
type ReviewVerdict string

const (
	VerdictApproved        ReviewVerdict = "approved"
	VerdictChangesRequested ReviewVerdict = "changes_requested"
)

// ReportReviewParams is the params payload for report_review.
type ReportReviewParams struct {
	Verdict  ReviewVerdict `json:"verdict"`
	Findings []string      `json:"findings"`
}

// GetContextParams is the params payload for get_context.
type GetContextParams struct {
	TaskID string `json:"task_id,omitempty"`
}

// GetContextResult is the result payload for get_context.
type GetContextResult struct {
	Brief        string             `json:"brief"`
	Files        []string           `json:"files"`
	LastEvents   []string           `json:"last_events"`
	Requirements []RequirementEntry `json:"requirements,omitempty"`
}

// RequirementEntry is the wire form of a domain.Requirement the requesting
// task covers.
type RequirementEntry struct {
	ID          string `json:"id"`
	Description string `json:"description"`
	Source      string `json:"source"`
}

// RequestHumanInputParams is the params payload for request_human_input.
type RequestHumanInputParams struct {
	Question string   `json:"question"`
	Choices  []string `json:"choices,omitempty"`
}

// RequestHumanInputResult is the result payload for request_human_input.
type RequestHumanInputResult struct {
	Answer string `json:"answer"`
}
