// Package terminal provides the interactive command-line interface for
// the Parley agent.
//
// The terminal mode streams assistant text to stdout as it is generated,
// asks for tool confirmation on stdin when the agent runs in prompt mode,
// and offers skip/retry/regenerate recovery when a tool fails. Sessions
// end on EOF or the /quit and /exit commands.
package terminal
