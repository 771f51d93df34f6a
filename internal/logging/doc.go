// Package logging provides file-based logging with size-based rotation
// under ~/.agent-brain/logs/, and a viewer for reading those logs.
// Setup writes JSON logs to the configured file and, when WriteToStderr
// is set, to stderr as well.
package logging
