// Package stagehand is the stateful control-plane for the integration test
// harness: pack-override resolution, resumable sessions, and the runner
// event proxy
package stagehand

const (
	Name    = "stagehand"
	Version = "0.3.0"
)
