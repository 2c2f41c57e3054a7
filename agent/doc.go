// Package agent provides the core conversational agent for Parley.
//
// This package contains the execution loop that is shared between the
// interaction modes (terminal CLI and ACP server): a bounded multi-turn
// state machine that streams model output, detects tool-call requests,
// gates their execution behind confirmation, executes them with
// skip/retry/regenerate recovery, and reinjects results so the model can
// react to them.
//
// # Request lifecycle
//
// Each call to ProcessUserInput runs one request:
//
//  1. Memory context is assembled for the thread (working memory plus
//     conversation history, from the memory store or the local session).
//  2. If the token estimate exceeds the compaction trigger, older history
//     is condensed into a summary message before the first turn.
//  3. The turn loop streams a model response, collects tool-call requests
//     (structured and embedded), confirms and executes them strictly in
//     detection order, appends one outcome message per call, and loops
//     until the model stops requesting tools or the turn ceiling is hit.
//
// # Callbacks
//
// The Callbacks structure lets each interaction mode customize how loop
// events are handled: streaming deltas, tool suggestions, confirmation,
// execution results, failure resolution, and completion. All hooks are
// optional. This design enables the same core loop to drive the terminal
// CLI (printing to stdout, prompting on stdin) and the ACP server
// (JSON-RPC notifications) without either knowing about the other.
//
// # Modes
//
//   - ModeAuto: tools execute without confirmation when no gate callback
//     is supplied.
//   - ModePrompt: tools require confirmation; without a gate callback
//     they are declined.
//
// # Error handling
//
// Provider failures abort the request through OnError and nothing is
// persisted. Tool failures, declined confirmations and compaction
// failures degrade to in-conversation messages so the model (and the
// user) can see and react to them. The turn ceiling produces a soft
// abort: the accumulated text is still delivered with an early-stop
// marker.
package agent
