// Package bridge owns the device session side of the debug bridge.
//
// Ownership boundary:
// - device connection accept loop and per-connection handlers
// - live connection registry and command broadcast
// - operator console loop
//
// Inbound frames are classified by protocol/frame; outbound lines are
// produced by protocol/command. Connection state is never shared outside
// Registry.
package bridge
