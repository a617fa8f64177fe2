// Package acp implements the Agent Client Protocol: a bidirectional
// JSON-RPC 2.0 protocol between an interactive client (an editor) and
// an autonomous coding agent.
//
// The protocol is symmetric at the JSON-RPC layer — either peer sends
// requests and notifications and serves the other's — so both roles sit
// on the same [Session] engine. The role facades fix the method sets:
// a [ClientConn] initiates initialize/session methods and serves file,
// permission, and terminal callbacks; an [AgentConn] is the mirror
// image.
//
// Transports are pluggable: newline-framed stdio and an in-memory pair
// live in the transport package, WebSocket in transport/ws.
//
// Typical agent-side wiring:
//
//	tr := transport.NewStdio(os.Stdin, os.Stdout)
//	conn := acp.NewAgentConn(myAgent, tr)
//	if err := conn.Start(); err != nil { ... }
//	<-conn.Done()
//
// Handlers that fail with an [Error] put that exact code on the wire;
// any other failure reaches the peer as INTERNAL_ERROR. Callers branch
// on the code of errors returned by the typed call helpers.
package acp
