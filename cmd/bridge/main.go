// Command bridge runs the CLI-side streaming permission bridge: it spawns
// the wrapped coding tool, answers its can_use_tool control requests by
// round-tripping them through the relay's approval/question queues, and
// reports session progress back.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/claude-watch/relay/bridge"
	"github.com/claude-watch/relay/bridge/agentsdk"
	"github.com/claude-watch/relay/config"
	"github.com/claude-watch/relay/log"
)

func main() {
	cfg := config.Get()

	pairingID := flag.String("pairing-id", "", "pairingId this bridge session serves")
	prompt := flag.String("prompt", "", "initial prompt to send the wrapped CLI")
	flag.Parse()

	if *pairingID == "" {
		log.Fatal().Msg("-pairing-id is required")
	}

	relay := bridge.NewRelayClient(cfg.BridgeRelayURL, *pairingID)
	orch := bridge.NewOrchestrator(relay, cfg.BridgeLocalFallback)

	client := agentsdk.NewAgentClient(agentsdk.AgentOptions{
		CliPath:                  cfg.AgentCLIPath,
		CanUseTool:               orch.CanUseTool,
		PermissionPromptToolName: "can_use_tool",
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := client.Connect(ctx, *prompt); err != nil {
		log.Fatal().Err(err).Msg("failed to connect to agent CLI")
	}
	defer client.Close()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// RawMessages is the single consumer of the query's message channel;
	// Messages() parses from the same underlying channel and would steal
	// frames from this loop if both were read concurrently.
	raw := client.RawMessages()

	for {
		select {
		case msg, ok := <-raw:
			if !ok {
				log.Info().Msg("agent session ended")
				return
			}
			switch msg["type"] {
			case "control_cancel_request":
				if id, ok := msg["request_id"].(string); ok {
					orch.CancelRequest(id)
				}
			case "result":
				log.Info().Msg("agent turn complete")
			}
		case <-quit:
			log.Info().Msg("interrupt received, shutting down bridge")
			client.SignalShutdown()
			return
		}
	}
}
