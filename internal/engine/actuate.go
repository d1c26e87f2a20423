package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/terminal-coder/tc/internal/brief"
	"github.com/terminal-coder/tc/internal/domain"
	"github.com/terminal-coder/tc/internal/scheduler"
	"github.com/terminal-coder/tc/internal/store"
)

// actuate carries out one scheduler decision (spec §4.8 step 4). It returns
// stop=true once the project has reached a terminal state.
func (e *Engine) actuate(ctx context.Context, decision scheduler.Decision, now time.Time) (bool, error) {
	switch decision.Kind {
	case scheduler.DispatchCoding:
		return false, e.dispatch(ctx, decision.Task, domain.PaneCoding, now)
	case scheduler.DispatchReview:
		return false, e.dispatch(ctx, decision.Task, domain.PaneReview, now)
	case scheduler.Idle:
		e.log.Debug("idle", zap.String("reason", decision.Reason))
		return false, nil
	case scheduler.Complete:
		return true, e.finishProject(domain.ProjectCompleted, "", now)
	case scheduler.Deadlock:
		e.log.Error("deadlock", zap.String("reason", decision.Reason), zap.Int("blocked", len(decision.Blocked)))
		return true, e.finishProject(domain.ProjectFailed, decision.Reason, now)
	default:
		return false, fmt.Errorf("unhandled decision kind %q", decision.Kind)
	}
}

func (e *Engine) finishProject(status domain.ProjectStatus, reason string, now time.Time) error {
	if err := e.repo.UpdateProjectStatus(e.projectID, status); err != nil {
		return err
	}
	payload := map[string]any{"status": string(status)}
	if reason != "" {
		payload["reason"] = reason
	}
	if _, err := e.repo.AppendEvent(domain.EventStatusChange, e.projectID, payload, now); err != nil {
		return err
	}
	e.bus.Publish(domain.Event{Kind: domain.EventStatusChange, Subject: e.projectID, CreatedAt: now, Payload: payload})
	return nil
}

func (e *Engine) dispatch(ctx context.Context, task domain.Task, pane domain.Pane, now time.Time) error {
	project, err := e.repo.GetProject(e.projectID)
	if err != nil {
		return err
	}
	phase, ok, err := e.findPhase(task.PhaseID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("dispatch: phase %s not found", task.PhaseID)
	}

	kind, in, err := e.buildBriefInput(project, phase, task)
	if err != nil {
		return err
	}
	briefPath, rendered, err := brief.WriteToProject(e.projectDir, task.ID, kind, in)
	if err != nil {
		return err
	}

	processID, err := e.pane.Spawn(ctx, int(pane), rendered)
	if err != nil {
		return fmt.Errorf("spawn pane %d: %w", pane, err)
	}

	sess, err := e.repo.CreateSession(store.SessionSpec{TaskID: task.ID, Pane: pane, ProcessID: processID, StartedAt: now})
	if err != nil {
		return err
	}
	token, err := e.cp.RegisterToken(sess.ID, task.ID)
	if err != nil {
		return err
	}
	if err := e.writeMCPConfig(task.ID, token); err != nil {
		return err
	}
	if err := e.repo.UpdateTaskStatus(task.ID, store.TaskStatusUpdate{NewStatus: domain.TaskRunning, BriefRef: &briefPath}); err != nil {
		return err
	}

	payload := map[string]any{"pane": int(pane), "brief": briefPath, "session_id": sess.ID}
	if _, err := e.repo.AppendEvent(domain.EventStatusChange, task.ID, payload, now); err != nil {
		return err
	}
	e.bus.Publish(domain.Event{Kind: domain.EventStatusChange, Subject: task.ID, CreatedAt: now, Payload: payload})
	return nil
}

// mcpConfig is the MCP server descriptor written to .tc/mcp/<task>.json so
// the Agent's session can locate the control-plane socket and its
// session-scoped token (spec §4.7: "handed to the Agent via the rendered
// brief / .mcp.json").
type mcpConfig struct {
	Socket string `json:"socket"`
	Token  string `json:"token"`
	TaskID string `json:"task_id"`
}

func (e *Engine) writeMCPConfig(taskID, token string) error {
	dir := filepath.Join(e.projectDir, ".tc", "mcp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mcp config: create directory: %w", err)
	}
	raw, err := json.MarshalIndent(mcpConfig{
		Socket: filepath.Join(e.projectDir, ".tc", "control.sock"),
		Token:  token,
		TaskID: taskID,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("mcp config: marshal: %w", err)
	}
	path := filepath.Join(dir, taskID+".json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("mcp config: write %s: %w", path, err)
	}
	return nil
}

func (e *Engine) findPhase(phaseID string) (domain.Phase, bool, error) {
	phases, err := e.repo.ListPhases(e.projectID)
	if err != nil {
		return domain.Phase{}, false, err
	}
	for _, p := range phases {
		if p.ID == phaseID {
			return p, true, nil
		}
	}
	return domain.Phase{}, false, nil
}

func (e *Engine) buildBriefInput(project domain.Project, phase domain.Phase, task domain.Task) (brief.Kind, brief.Input, error) {
	deps, err := e.dependencyOutputs(task.ID)
	if err != nil {
		return "", brief.Input{}, err
	}

	in := brief.Input{
		ProjectName:  project.Name,
		PhaseName:    phase.Name,
		TaskName:     task.Name,
		TaskKind:     task.Kind,
		Dependencies: deps,
		ErrorContext: task.ErrorContext,
	}

	retry := task.ErrorContext != ""
	switch {
	case task.Kind == domain.KindReview && retry:
		return brief.KindRetryReview, in, nil
	case task.Kind == domain.KindReview:
		return brief.KindReview, in, nil
	case retry:
		return brief.KindRetryCoding, in, nil
	default:
		return brief.KindCoding, in, nil
	}
}

// dependencyOutputs reads the most recent completion event for each
// dependency of taskID, for inclusion in the rendered brief.
func (e *Engine) dependencyOutputs(taskID string) ([]brief.DependencyOutput, error) {
	deps, err := e.repo.ListDependencies(e.projectID)
	if err != nil {
		return nil, err
	}
	var out []brief.DependencyOutput
	for _, d := range deps {
		if d.TaskID != taskID {
			continue
		}
		depTask, err := e.repo.GetTask(d.DependsOnID)
		if err != nil {
			continue
		}
		events, err := e.repo.ReadEvents(store.EventFilter{Subject: depTask.ID})
		if err != nil {
			return nil, err
		}
		summary := ""
		var files []string
		for i := len(events) - 1; i >= 0; i-- {
			if s, ok := events[i].Payload["summary"].(string); ok {
				summary = s
				if raw, ok := events[i].Payload["files_changed"].([]any); ok {
					for _, f := range raw {
						if fs, ok := f.(string); ok {
							files = append(files, fs)
						}
					}
				}
				break
			}
		}
		out = append(out, brief.DependencyOutput{TaskName: depTask.Name, Summary: summary, Files: files})
	}
	return out, nil
}
