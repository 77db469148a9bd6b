// Package agentsdk provides a Go SDK for driving an external AI coding CLI
// tool as a subprocess over its JSON control protocol.
//
// The protocol this SDK speaks (stream-json input/output, control_request /
// control_response / control_cancel_request framing, can_use_tool permission
// interception) is CLI-agnostic; the binary is a configurable path, not a
// fixed tool name.
//
// # Architecture
//
// The SDK is organized into several layers:
//
//   - Transport: Low-level subprocess management (stdin/stdout/stderr)
//   - Query: Control protocol handler with request/response routing
//   - AgentClient: High-level bidirectional client
//
// # Quick Start
//
// For simple one-shot queries:
//
//	messages, errors := agentsdk.QueryOnce(ctx, "What is 2+2?", agentsdk.AgentOptions{})
//	for msg := range messages {
//	    if am, ok := msg.(agentsdk.AssistantMessage); ok {
//	        fmt.Println(agentsdk.GetTextContent(am))
//	    }
//	}
//
// For interactive conversations:
//
//	client := agentsdk.NewAgentClient(agentsdk.AgentOptions{})
//
//	if err := client.Connect(ctx, "Hello!"); err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Send messages
//	client.SendMessage("What files are in this directory?")
//
//	// Receive messages
//	for msg := range client.Messages() {
//	    switch m := msg.(type) {
//	    case agentsdk.AssistantMessage:
//	        fmt.Println(agentsdk.GetTextContent(m))
//	    case agentsdk.ResultMessage:
//	        fmt.Printf("Cost: %s\n", agentsdk.FormatCost(m.TotalCostUSD))
//	        return
//	    }
//	}
//
// # Permission Handling
//
// The SDK supports rich permission handling via callbacks:
//
//	client := agentsdk.NewAgentClient(agentsdk.AgentOptions{
//	    CanUseTool: func(toolName string, input map[string]any, ctx agentsdk.ToolPermissionContext) (agentsdk.PermissionResult, error) {
//	        // Auto-approve read-only tools
//	        if toolName == "Read" || toolName == "Glob" {
//	            return agentsdk.PermissionResultAllow{Behavior: agentsdk.PermissionAllow}, nil
//	        }
//	        // Deny dangerous commands
//	        if toolName == "Bash" {
//	            if cmd, ok := input["command"].(string); ok {
//	                if strings.Contains(cmd, "rm -rf") {
//	                    return agentsdk.PermissionResultDeny{
//	                        Behavior: agentsdk.PermissionDeny,
//	                        Message:  "Dangerous command not allowed",
//	                    }, nil
//	                }
//	            }
//	        }
//	        return agentsdk.PermissionResultAllow{Behavior: agentsdk.PermissionAllow}, nil
//	    },
//	})
//
// # Hook System
//
// Hooks allow intercepting and modifying tool usage:
//
//	hooks := agentsdk.NewHookManager()
//
//	// Log all tool usage
//	hooks.Register(agentsdk.HookPreToolUse, "*", agentsdk.LoggingHook(func(event, tool string, input map[string]any) {
//	    log.Printf("[%s] %s: %v", event, tool, input)
//	}))
//
//	// Validate Bash commands
//	hooks.Register(agentsdk.HookPreToolUse, "Bash", agentsdk.ValidationHook(func(tool string, input map[string]any) (bool, string) {
//	    if cmd, ok := input["command"].(string); ok {
//	        if strings.Contains(cmd, "sudo") {
//	            return false, "sudo commands are not allowed"
//	        }
//	    }
//	    return true, ""
//	}))
//
//	client := agentsdk.NewAgentClient(agentsdk.AgentOptions{
//	    Hooks: hooks.ToOptionsMap(),
//	})
//
// # Control Protocol
//
// The SDK implements the full agent CLI control protocol:
//
//   - Initialize handshake with hooks registration
//   - Interrupt running operations
//   - Change permission mode mid-session
//   - Change model mid-session
//   - File checkpointing and rewind
//
// # Message Types
//
// The SDK provides typed message parsing:
//
//   - UserMessage: User input
//   - AssistantMessage: the agent's response with content blocks
//   - SystemMessage: Internal system events
//   - ResultMessage: Final result with cost/usage info
//   - StreamEvent: Partial message updates during streaming
//
// Content blocks within messages:
//
//   - TextBlock: Plain text
//   - ThinkingBlock: the agent's reasoning
//   - ToolUseBlock: Tool invocations
//   - ToolResultBlock: Tool execution results
package agentsdk
