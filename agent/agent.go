package agent

import (
	"github.com/m4xw311/parley/compact"
	"github.com/m4xw311/parley/config"
	"github.com/m4xw311/parley/llm"
	"github.com/m4xw311/parley/memory"
	"github.com/m4xw311/parley/session"
	"github.com/m4xw311/parley/toolcall"
	"github.com/m4xw311/parley/tools"
)

// Mode controls whether tool calls run automatically or behind a
// confirmation gate.
type Mode string

const (
	ModeAuto   Mode = "auto"
	ModePrompt Mode = "prompt"
)

// ToolVerbosity controls how much tool execution detail front ends show.
type ToolVerbosity string

const (
	ToolVerbosityNone ToolVerbosity = "none"
	ToolVerbosityInfo ToolVerbosity = "info"
	ToolVerbosityAll  ToolVerbosity = "all"
)

// Resolution is the caller's answer to a failed tool execution.
type Resolution string

const (
	ResolutionSkip       Resolution = "skip"
	ResolutionRetry      Resolution = "retry"
	ResolutionRegenerate Resolution = "regenerate"
)

// Callbacks lets each interaction mode (terminal, ACP server, tests)
// customize how loop events are handled. Every hook is optional; the loop
// functions with none supplied.
type Callbacks struct {
	// OnStream receives text deltas as the model generates them.
	OnStream func(delta string)

	// OnToolSuggested fires once per turn when the model requested tools,
	// before any confirmation or execution.
	OnToolSuggested func(requests []toolcall.Request)

	// ConfirmToolCall gates each execution. When nil, the agent's mode
	// decides: auto-mode executes, prompt-mode declines.
	ConfirmToolCall func(req toolcall.Request) bool

	// OnToolExecuted fires after each successful execution.
	OnToolExecuted func(name, result string)

	// OnToolError is consulted after a failed execution. When nil the
	// failure is skipped.
	OnToolError func(name, errMsg string) Resolution

	// OnComplete receives the concatenated visible text of all turns on
	// natural termination (including turn-ceiling soft aborts).
	OnComplete func(text string)

	// OnError receives unrecoverable errors; the request is aborted and
	// nothing is persisted.
	OnError func(err error)

	// Compaction lifecycle hooks. OnCompactionComplete reports whether
	// the history actually shrank.
	OnCompactionStart    func()
	OnCompactionComplete func(compacted bool)
}

// Agent orchestrates one conversation: it assembles memory context,
// compacts oversized history, and runs the bounded turn loop of
// stream → detect tool calls → confirm → execute → reinject.
type Agent struct {
	Config         *config.Config
	Session        *session.Session
	Client         llm.Client
	Registry       *tools.Registry
	Store          memory.Store
	AvailableTools []tools.Tool
	Mode           Mode
	Verbosity      ToolVerbosity

	// ResourceID scopes working memory; defaults to "default".
	ResourceID string

	// ContextBlock is externally supplied context (e.g. retrieval
	// results) appended to the system prompt verbatim.
	ContextBlock string

	assembler   memory.Assembler
	compactor   *compact.Compactor
	coordinator *toolcall.Coordinator
}

// New wires an agent from its collaborators. The registry stays owned by
// the caller (it may be shared between agents); summarizer defaults to
// the agent's own client.
func New(cfg *config.Config, sess *session.Session, toolset string, mode Mode, client llm.Client, registry *tools.Registry, store memory.Store) (*Agent, error) {
	ts, err := cfg.GetToolset(toolset)
	if err != nil {
		return nil, err
	}
	activeTools, err := registry.ActiveTools(ts)
	if err != nil {
		return nil, err
	}

	return &Agent{
		Config:         cfg,
		Session:        sess,
		Client:         client,
		Registry:       registry,
		Store:          store,
		AvailableTools: activeTools,
		Mode:           mode,
		Verbosity:      ToolVerbosityNone,
		ResourceID:     "default",
		assembler: memory.Assembler{
			Store:        store,
			HistoryLimit: cfg.HistoryLimit,
		},
		compactor: &compact.Compactor{
			Client: client,
			Store:  store,
			Policy: compact.Policy{
				TriggerTokens:   cfg.Compaction.TriggerTokens,
				TargetTokens:    cfg.Compaction.TargetTokens,
				PreserveRecent:  cfg.Compaction.PreserveRecent,
				SummarizerModel: cfg.SummarizerModel,
			},
		},
		coordinator: &toolcall.Coordinator{Registry: registry},
	}, nil
}

// SetSummarizer replaces the compaction summarizer client (used when the
// configuration names a dedicated summarizer model).
func (a *Agent) SetSummarizer(client llm.Client) {
	a.compactor.Client = client
}
