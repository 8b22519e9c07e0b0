// Package protocol owns the device wire contracts.
//
// Ownership boundary:
// - frame: inbound delivery classification (scalar / anchor report)
// - command: operator line to outbound device line formatting
//
// Inbound deliveries are never reassembled; each transport read is one frame.
package protocol
