package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m4xw311/parley/agent"
	"github.com/m4xw311/parley/agent/acp"
	"github.com/m4xw311/parley/agent/terminal"
	"github.com/m4xw311/parley/config"
	"github.com/m4xw311/parley/llm"
	"github.com/m4xw311/parley/memory"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/tools"
)

func main() {
	// Define flags
	modeFlag := flag.String("m", "", "Execution mode: 'auto' or 'prompt'")
	sessionFlag := flag.String("s", "", "Session name to create or use")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolVerbosityFlag := flag.String("tool-verbosity", "", "Tool verbosity level: 'none', 'info', or 'all'")
	acpFlag := flag.Bool("acp", false, "Enable Agent Client Protocol support")
	traceFlag := flag.Bool("trace", false, "Enable execution tracing to troubleshoot issues")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}

	var sess *session.Session
	sessionName := *sessionFlag

	if *resumeFlag != "" {
		// Resume session
		sessionName = *resumeFlag
		sess, err = session.Load(cfg.DataDir, sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Resuming session: %s\n", sessionName)
		// Apply session flags if not explicitly overridden by user
		if *modeFlag == "" && sess.Mode != "" {
			*modeFlag = sess.Mode
		}
		if *toolsetFlag == "" && sess.Toolset != "" {
			*toolsetFlag = sess.Toolset
		}
		if *toolVerbosityFlag == "" && sess.ToolVerbosity != "" {
			*toolVerbosityFlag = sess.ToolVerbosity
		}
	} else {
		// Start new session
		if sessionName == "" {
			sessionName = defaultSessionName()
		}
		sess, err = session.New(cfg.DataDir, sessionName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", sessionName, err)
			os.Exit(1)
		}
		fmt.Printf("Starting new session: %s\n", sessionName)
	}

	if *modeFlag == "" {
		*modeFlag = "prompt"
	}
	if *toolsetFlag == "" {
		*toolsetFlag = "default"
	}
	if *toolVerbosityFlag == "" {
		*toolVerbosityFlag = "none"
	}

	// Update session with current flag values and save
	sess.Mode = *modeFlag
	sess.Toolset = *toolsetFlag
	sess.ToolVerbosity = *toolVerbosityFlag
	sess.Acp = *acpFlag
	if err := sess.Save(); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving session '%s': %+v\n", sessionName, err)
		os.Exit(1)
	}

	// Validate mode
	var opMode agent.Mode
	switch *modeFlag {
	case "auto":
		opMode = agent.ModeAuto
	case "prompt":
		opMode = agent.ModePrompt
	default:
		fmt.Fprintf(os.Stderr, "Invalid mode '%s'. Must be 'auto' or 'prompt'.\n", *modeFlag)
		os.Exit(1)
	}

	// Validate tool verbosity
	var verbosity agent.ToolVerbosity
	switch *toolVerbosityFlag {
	case "none":
		verbosity = agent.ToolVerbosityNone
	case "info":
		verbosity = agent.ToolVerbosityInfo
	case "all":
		verbosity = agent.ToolVerbosityAll
	default:
		fmt.Fprintf(os.Stderr, "Invalid tool verbosity '%s'. Must be 'none', 'info', or 'all'.\n", *toolVerbosityFlag)
		os.Exit(1)
	}

	ctx := context.Background()

	// Initialize the LLM client
	client, err := llm.New(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.Provider, err)
		os.Exit(1)
	}

	// Build the tool catalog (starts configured MCP servers)
	registry, err := tools.NewRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing tool catalog: %+v\n", err)
		os.Exit(1)
	}
	defer registry.Close()

	// Memory store for working memory and managed thread history
	store, err := memory.NewFileStore(cfg.DataDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing memory store: %+v\n", err)
		os.Exit(1)
	}

	// Create the agent
	parleyAgent, err := agent.New(cfg, sess, *toolsetFlag, opMode, client, registry, store)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing agent: %+v\n", err)
		os.Exit(1)
	}
	parleyAgent.Verbosity = verbosity

	// A dedicated summarizer model gets its own client
	if cfg.SummarizerModel != "" && cfg.SummarizerModel != cfg.Model {
		summarizerCfg := *cfg
		summarizerCfg.Model = cfg.SummarizerModel
		if summarizer, err := llm.New(ctx, &summarizerCfg); err == nil {
			parleyAgent.SetSummarizer(summarizer)
		}
	}

	if *acpFlag {
		// Run in ACP mode
		in := bufio.NewReader(os.Stdin)
		out := bufio.NewWriter(os.Stdout)
		if err := acp.Run(ctx, parleyAgent, in, out, traceFlag); err != nil {
			fmt.Fprintf(os.Stderr, "ACP mode failed: %+v\n", err)
			os.Exit(1)
		}
		return
	}

	// Get initial prompt from remaining arguments
	initialPrompt := strings.Join(flag.Args(), " ")

	// Run the agent in regular CLI mode
	fmt.Println("Parley is ready. Type your prompt.")
	term := terminal.New(parleyAgent)
	if err := term.Run(ctx, initialPrompt); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "parley"
	}
	dirName := filepath.Base(wd)
	timestamp := time.Now().Format("2006-01-02_15-04-05")
	return fmt.Sprintf("%s_%s", dirName, timestamp)
}
