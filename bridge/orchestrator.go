package bridge

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/claude-watch/relay/bridge/agentsdk"
	"github.com/claude-watch/relay/log"
	"github.com/claude-watch/relay/queue"
)

// dangerousBashPatterns are substrings that mark a bash command as
// destructive enough that its literal text must never reach the relay.
var dangerousBashPatterns = []string{
	"rm -rf",
	"git push --force",
	"git push -f",
	"> /dev/sd",
	"dd if=",
	"mkfs",
	":(){ :|:& };:",
}

// Orchestrator drives the bridge's CanUseTool callback: it enqueues
// permission prompts to the relay, polls for a decision, and falls back to
// local terminal input when the relay is unreachable and local fallback is
// enabled.
type Orchestrator struct {
	relay         *RelayClient
	localFallback bool

	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	stdin *bufio.Reader
}

// NewOrchestrator constructs an Orchestrator bound to relay.
func NewOrchestrator(relay *RelayClient, localFallback bool) *Orchestrator {
	return &Orchestrator{
		relay:         relay,
		localFallback: localFallback,
		inflight:      make(map[string]context.CancelFunc),
		stdin:         bufio.NewReader(os.Stdin),
	}
}

// CanUseTool implements agentsdk.CanUseToolFunc. It tracks the in-flight
// relay round trip under the control protocol's own request_id (ctx.RequestID)
// rather than an id of its own minting, so a later control_cancel_request
// naming that same request_id can cancel precisely this call and no other.
func (o *Orchestrator) CanUseTool(toolName string, input map[string]any, ctx agentsdk.ToolPermissionContext) (agentsdk.PermissionResult, error) {
	id := ctx.RequestID
	if id == "" {
		// No request_id on this call (e.g. a test driving the callback
		// directly) — mint one so tracking and relay enqueue still work.
		id = uuid.NewString()
	}

	rctx, cancel := context.WithCancel(context.Background())
	o.track(id, cancel)
	defer o.untrack(id)

	if toolName == "AskUserQuestion" {
		return o.handleQuestion(rctx, id, input)
	}
	return o.handleApproval(rctx, id, toolName, input)
}

// CancelRequest propagates a control_cancel_request naming requestID: it
// cancels that specific in-flight relay round trip. An unknown or
// already-resolved requestID is a silent no-op, since the agent CLI can race
// a cancel against a response that already arrived.
func (o *Orchestrator) CancelRequest(requestID string) {
	o.mu.Lock()
	cancel, ok := o.inflight[requestID]
	o.mu.Unlock()
	if ok {
		cancel()
	}
}

func (o *Orchestrator) track(id string, cancel context.CancelFunc) {
	o.mu.Lock()
	o.inflight[id] = cancel
	o.mu.Unlock()
}

func (o *Orchestrator) untrack(id string) {
	o.mu.Lock()
	delete(o.inflight, id)
	o.mu.Unlock()
}

func (o *Orchestrator) handleApproval(ctx context.Context, id, toolName string, input map[string]any) (agentsdk.PermissionResult, error) {
	title, description, filePath, command := describeTool(toolName, input)

	if err := o.relay.EnqueueApproval(ctx, id, toolName, title, description, filePath, command); err != nil {
		if o.localFallback {
			return o.localApproval(toolName, title)
		}
		return agentsdk.PermissionResultDeny{Message: "relay unreachable"}, err
	}

	status, err := o.pollApproval(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			_ = o.relay.RejectApproval(context.Background(), id)
			return agentsdk.PermissionResultDeny{Message: "cancelled"}, err
		}
		if o.localFallback {
			return o.localApproval(toolName, title)
		}
		return agentsdk.PermissionResultDeny{Message: "relay unreachable"}, err
	}

	switch status {
	case queue.ResponseApproved:
		return agentsdk.PermissionResultAllow{UpdatedInput: input}, nil
	case queue.ResponseRejected:
		return agentsdk.PermissionResultDeny{Message: "User rejected from wearable"}, nil
	default:
		_ = o.relay.RejectApproval(context.Background(), id)
		return agentsdk.PermissionResultDeny{Message: "cancelled"}, nil
	}
}

func (o *Orchestrator) pollApproval(ctx context.Context, id string) (queue.ResponseStatus, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0 // keep retrying transient errors until cancelled

	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		status, err := o.relay.PollApprovalOnce(ctx, id)
		if err != nil {
			d := bo.NextBackOff()
			if d == backoff.Stop {
				return "", err
			}
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(d):
			}
			continue
		}
		bo.Reset()

		if status == queue.ResponsePending {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		return status, nil
	}
}

func (o *Orchestrator) handleQuestion(ctx context.Context, id string, input map[string]any) (agentsdk.PermissionResult, error) {
	question, _ := input["question"].(string)
	header, _ := input["header"].(string)
	multiSelect, _ := input["multiSelect"].(bool)
	recommended, _ := input["recommendedAnswer"].(string)

	var options []string
	if raw, ok := input["options"].([]any); ok {
		for _, o := range raw {
			if s, ok := o.(string); ok {
				options = append(options, s)
			}
		}
	}

	if err := o.relay.EnqueueQuestion(ctx, id, question, header, options, multiSelect, recommended); err != nil {
		if o.localFallback {
			return o.localQuestion(question, options)
		}
		return agentsdk.PermissionResultDeny{Message: "relay unreachable"}, err
	}

	status, answer, err := o.pollQuestion(ctx, id)
	if err != nil {
		if ctx.Err() != nil {
			_ = o.relay.RejectQuestion(context.Background(), id)
			return agentsdk.PermissionResultDeny{Message: "cancelled"}, err
		}
		if o.localFallback {
			return o.localQuestion(question, options)
		}
		return agentsdk.PermissionResultDeny{Message: "relay unreachable"}, err
	}
	if status != queue.ResponseAnswered || answer == nil {
		_ = o.relay.RejectQuestion(context.Background(), id)
		return agentsdk.PermissionResultDeny{Message: "cancelled"}, nil
	}

	updated := map[string]any{}
	for k, v := range input {
		updated[k] = v
	}
	updated["answers"] = map[string]any{id: answerToAny(*answer)}

	return agentsdk.PermissionResultAllow{UpdatedInput: updated}, nil
}

func (o *Orchestrator) pollQuestion(ctx context.Context, id string) (queue.ResponseStatus, *queue.QuestionAnswer, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 5 * time.Second
	bo.MaxElapsedTime = 0

	for {
		select {
		case <-ctx.Done():
			return "", nil, ctx.Err()
		default:
		}

		status, answer, err := o.relay.PollQuestionOnce(ctx, id)
		if err != nil {
			d := bo.NextBackOff()
			if d == backoff.Stop {
				return "", nil, err
			}
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			case <-time.After(d):
			}
			continue
		}
		bo.Reset()

		if status == queue.ResponsePending {
			select {
			case <-ctx.Done():
				return "", nil, ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		return status, answer, nil
	}
}

func answerToAny(a queue.QuestionAnswer) any {
	if a.Handled != "" {
		return a.Handled
	}
	if a.Indices != nil {
		return a.Indices
	}
	if a.Index != nil {
		return *a.Index
	}
	return nil
}

// describeTool builds the relay-facing title/description/filePath/command
// for an approval prompt, stripping the literal argument values for
// destructive bash commands.
func describeTool(toolName string, input map[string]any) (title, description, filePath, command string) {
	title = toolName

	if toolName == "Bash" {
		cmd, _ := input["command"].(string)
		if isDangerousCommand(cmd) {
			return "Dangerous command", "", "", ""
		}
		return "Run command", "", "", cmd
	}

	if path, ok := input["file_path"].(string); ok {
		filePath = path
	}
	description = fmt.Sprintf("%v", input)
	return title, description, filePath, command
}

func isDangerousCommand(cmd string) bool {
	for _, p := range dangerousBashPatterns {
		if strings.Contains(cmd, p) {
			return true
		}
	}
	return false
}

func (o *Orchestrator) localApproval(toolName, title string) (agentsdk.PermissionResult, error) {
	fmt.Printf("\n[relay unreachable] allow %s (%s)? [y/N]: ", toolName, title)
	line, _ := o.stdin.ReadString('\n')
	line = strings.TrimSpace(strings.ToLower(line))
	log.Warn().Str("tool", toolName).Msg("handled permission prompt via local fallback")
	if line == "y" || line == "yes" {
		return agentsdk.PermissionResultAllow{}, nil
	}
	return agentsdk.PermissionResultDeny{Message: "User rejected (local fallback)"}, nil
}

func (o *Orchestrator) localQuestion(question string, options []string) (agentsdk.PermissionResult, error) {
	fmt.Printf("\n[relay unreachable] %s\n", question)
	for i, opt := range options {
		fmt.Printf("  %d) %s\n", i, opt)
	}
	fmt.Print("choice: ")
	line, _ := o.stdin.ReadString('\n')
	line = strings.TrimSpace(line)
	log.Warn().Msg("handled question via local fallback")

	updated := map[string]any{"answers": map[string]any{"local": line}}
	return agentsdk.PermissionResultAllow{UpdatedInput: updated}, nil
}
