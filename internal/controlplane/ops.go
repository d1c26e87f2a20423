package controlplane

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/store"
)

var errUnknownOp = errors.New("unknown control-plane operation")

type handlerFunc func(s *Server, tok store.SessionToken, req Request) (any, error)

var handlers = map[Op]handlerFunc{
	OpReportProgress:    (*Server).handleReportProgress,
	OpReportCompletion:  (*Server).handleReportCompletion,
	OpReportFailure:     (*Server).handleReportFailure,
	OpReportReview:      (*Server).handleReportReview,
	OpGetContext:        (*Server).handleGetContext,
	OpRequestHumanInput: (*Server).handleRequestHumanInput,
}

func errResponse(err error) Response {
	var tc *domain.TCError
	if errors.As(err, &tc) {
		return Response{OK: false, Error: &ErrorPayload{Kind: string(tc.Kind), Message: tc.Error()}}
	}
	return Response{OK: false, Error: &ErrorPayload{Kind: string(domain.ErrInfrastructure), Message: err.Error()}}
}

// requireRunningSession checks not just that the task is running but that
// tok's session is still the task's live session. Without the second check
// a stale token from a killed/reset/retried session would keep passing once
// the task was redispatched under a new session for the same task id
// (spec §4.7, spec §8 property #3: at most one live session per task).
func requireRunningSession(repo *store.Repository, tok store.SessionToken, task domain.Task) error {
	if task.Status != domain.TaskRunning {
		return domain.NewError(domain.ErrPrecondition, task.ID, errors.New("task is not running"))
	}
	sess, ok, err := repo.GetRunningSession(task.ID)
	if err != nil {
		return err
	}
	if !ok || sess.ID != tok.SessionID {
		return domain.NewError(domain.ErrPrecondition, task.ID, errors.New("session token no longer matches the task's live session"))
	}
	return nil
}

func (s *Server) handleReportProgress(tok store.SessionToken, req Request) (any, error) {
	task, err := s.repo.GetTask(tok.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireRunningSession(s.repo, tok, task); err != nil {
		return nil, err
	}
	var params ReportProgressParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
	}
	payload := map[string]any{"note": params.Note}
	if params.Pct != nil {
		payload["pct"] = *params.Pct
	}
	if _, err := s.repo.AppendEvent(domain.EventProgress, task.ID, payload, s.clock()); err != nil {
		return nil, err
	}
	s.publish(domain.EventProgress, task.ID, payload)
	return struct{}{}, nil
}

func (s *Server) handleReportCompletion(tok store.SessionToken, req Request) (any, error) {
	task, err := s.repo.GetTask(tok.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireRunningSession(s.repo, tok, task); err != nil {
		return nil, err
	}
	if task.Kind != domain.KindCoding {
		return nil, domain.NewError(domain.ErrPrecondition, task.ID, errors.New("report_completion requires a coding task"))
	}
	var params ReportCompletionParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
	}

	if err := s.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{NewStatus: domain.TaskCompleted}); err != nil {
		return nil, err
	}
	reviewTask, err := s.repo.AppendTask(task.PhaseID, domain.KindReview, "Review: "+task.Name, []string{task.ID})
	if err != nil {
		return nil, err
	}

	payload := map[string]any{"summary": params.Summary, "files_changed": toAnySlice(params.FilesChanged), "review_task_id": reviewTask.ID}
	if _, err := s.repo.AppendEvent(domain.EventStatusChange, task.ID, payload, s.clock()); err != nil {
		return nil, err
	}
	s.publish(domain.EventStatusChange, task.ID, payload)
	return struct{}{}, nil
}

func (s *Server) handleReportFailure(tok store.SessionToken, req Request) (any, error) {
	task, err := s.repo.GetTask(tok.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireRunningSession(s.repo, tok, task); err != nil {
		return nil, err
	}
	var params ReportFailureParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
	}

	if err := s.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{
		NewStatus:    domain.TaskFailed,
		ErrorContext: &params.Message,
	}); err != nil {
		return nil, err
	}
	payload := map[string]any{"message": params.Message, "context": params.Context}
	if _, err := s.repo.AppendEvent(domain.EventError, task.ID, payload, s.clock()); err != nil {
		return nil, err
	}
	s.publish(domain.EventError, task.ID, payload)
	return struct{}{}, nil
}

func (s *Server) handleReportReview(tok store.SessionToken, req Request) (any, error) {
	task, err := s.repo.GetTask(tok.TaskID)
	if err != nil {
		return nil, err
	}
	if err := requireRunningSession(s.repo, tok, task); err != nil {
		return nil, err
	}
	if task.Kind != domain.KindReview {
		return nil, domain.NewError(domain.ErrPrecondition, task.ID, errors.New("report_review requires a review task"))
	}
	var params ReportReviewParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
	}
	if params.Verdict != VerdictApproved && params.Verdict != VerdictChangesRequested {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, errors.New("verdict must be approved or changes_requested"))
	}

	if err := s.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{NewStatus: domain.TaskCompleted}); err != nil {
		return nil, err
	}

	var followUpID string
	if params.Verdict == VerdictChangesRequested {
		followUp, err := s.repo.AppendTask(task.PhaseID, domain.KindCoding, "Address review: "+task.Name, []string{task.ID})
		if err != nil {
			return nil, err
		}
		followUpID = followUp.ID
	}

	payload := map[string]any{"verdict": string(params.Verdict), "findings": toAnySlice(params.Findings)}
	if followUpID != "" {
		payload["follow_up_task_id"] = followUpID
	}
	if _, err := s.repo.AppendEvent(domain.EventReviewVerdict, task.ID, payload, s.clock()); err != nil {
		return nil, err
	}
	s.publish(domain.EventReviewVerdict, task.ID, payload)
	return struct{}{}, nil
}

func (s *Server) handleGetContext(tok store.SessionToken, req Request) (any, error) {
	var params GetContextParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
		}
	}
	taskID := params.TaskID
	if taskID == "" {
		taskID = tok.TaskID
	}
	task, err := s.repo.GetTask(taskID)
	if err != nil {
		return nil, err
	}

	brief := ""
	if task.BriefRef != "" {
		if raw, err := os.ReadFile(task.BriefRef); err == nil {
			brief = string(raw)
		}
	}

	events, err := s.repo.ReadEvents(store.EventFilter{Subject: taskID, Limit: 20})
	if err != nil {
		return nil, err
	}
	var lastEvents []string
	var files []string
	for _, ev := range events {
		lastEvents = append(lastEvents, string(ev.Kind))
		if raw, ok := ev.Payload["files_changed"]; ok {
			if list, ok := raw.([]any); ok {
				for _, f := range list {
					if s, ok := f.(string); ok {
						files = append(files, s)
					}
				}
			}
		}
	}

	reqs, err := s.repo.ListRequirementsForTask(taskID)
	if err != nil {
		return nil, err
	}
	var reqEntries []RequirementEntry
	for _, req := range reqs {
		reqEntries = append(reqEntries, RequirementEntry{ID: req.ID, Description: req.Description, Source: req.Source})
	}

	return GetContextResult{Brief: brief, Files: files, LastEvents: lastEvents, Requirements: reqEntries}, nil
}

func (s *Server) handleRequestHumanInput(tok store.SessionToken, req Request) (any, error) {
	var params RequestHumanInputParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return nil, domain.NewError(domain.ErrValidation, tok.TaskID, err)
	}

	payload := map[string]any{"question": params.Question, "choices": toAnySlice(params.Choices)}
	if _, err := s.repo.AppendEvent(domain.EventHumanInputRequest, tok.TaskID, payload, s.clock()); err != nil {
		return nil, err
	}

	requestID := tok.TaskID + ":" + params.Question
	wait := s.human.register(requestID)
	s.publish(domain.EventHumanInputRequest, tok.TaskID, payload)

	answer, err := wait(s.humanInputTimeout)
	if err != nil {
		return nil, domain.NewError(domain.ErrPrecondition, tok.TaskID, err)
	}
	return RequestHumanInputResult{Answer: answer}, nil
}

func (s *Server) publish(kind domain.EventKind, subject string, payload map[string]any) {
	s.bus.Publish(domain.Event{Kind: kind, Subject: subject, CreatedAt: s.clock(), Payload: payload})
}

func toAnySlice(in []string) []any {
	out := make([]any, len(in))
	for i, v := range in {
		out[i] = v
	}
	return out
}
