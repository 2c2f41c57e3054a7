package terminal

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m4xw311/parley/agent"
	"github.com/m4xw311/parley/toolcall"
)

// Terminal handles the terminal/CLI interaction mode for the agent.
type Terminal struct {
	agent *agent.Agent
	in    *bufio.Reader
}

// New creates a new Terminal instance.
func New(a *agent.Agent) *Terminal {
	return &Terminal{
		agent: a,
		in:    bufio.NewReader(os.Stdin),
	}
}

// Run starts the interactive terminal session.
func (t *Terminal) Run(ctx context.Context, initialPrompt string) error {
	// If there's an initial prompt from the command line, use it first
	if initialPrompt != "" {
		if err := t.processTurn(ctx, initialPrompt); err != nil {
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			break
		}

		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		// Exit commands
		if userInput == "/quit" || userInput == "/exit" {
			break
		}

		if err := t.processTurn(ctx, userInput); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// processTurn handles a single user input turn.
func (t *Terminal) processTurn(ctx context.Context, userInput string) error {
	streaming := false
	callbacks := agent.Callbacks{
		OnStream: func(delta string) {
			if !streaming {
				fmt.Print("Parley: ")
				streaming = true
			}
			fmt.Print(delta)
		},
		OnToolSuggested: func(requests []toolcall.Request) {
			if streaming {
				fmt.Println()
				streaming = false
			}
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				for _, req := range requests {
					fmt.Printf("Parley wants to call tool `%s` (%s) with args: %v\n", req.Name, req.Source, req.Args)
				}
			} else if t.agent.Verbosity == agent.ToolVerbosityInfo {
				for _, req := range requests {
					fmt.Printf("Parley wants to call tool `%s`\n", req.Name)
				}
			}
		},
		ConfirmToolCall: func(req toolcall.Request) bool {
			if t.agent.Mode == agent.ModeAuto {
				return true
			}
			fmt.Printf("Allow tool `%s`? (y/n): ", req.Name)
			answer, _ := t.in.ReadString('\n')
			return strings.TrimSpace(strings.ToLower(answer)) == "y"
		},
		OnToolExecuted: func(name, result string) {
			if t.agent.Verbosity == agent.ToolVerbosityAll {
				fmt.Printf("Tool `%s` output: %s\n", name, result)
			}
		},
		OnToolError: func(name, errMsg string) agent.Resolution {
			fmt.Printf("Tool `%s` failed: %s\n", name, errMsg)
			for {
				fmt.Print("(s)kip, (r)etry, or re(g)enerate? ")
				answer, _ := t.in.ReadString('\n')
				switch strings.TrimSpace(strings.ToLower(answer)) {
				case "r", "retry":
					return agent.ResolutionRetry
				case "g", "regenerate":
					return agent.ResolutionRegenerate
				case "s", "skip":
					return agent.ResolutionSkip
				}
			}
		},
		OnComplete: func(text string) {
			if streaming {
				fmt.Println()
				streaming = false
			}
		},
		OnCompactionStart: func() {
			fmt.Println("(compacting conversation history...)")
		},
		OnCompactionComplete: func(compacted bool) {
			if !compacted {
				fmt.Println("(compaction skipped; continuing with full history)")
			}
		},
	}

	return t.agent.ProcessUserInput(ctx, userInput, callbacks)
}
