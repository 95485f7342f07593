// Package execshell provides structured helpers for invoking external tools.
//
// It wraps os/exec with logging via ShellExecutor, exposes OSCommandRunner
// for default process execution, and formats human-readable lifecycle
// messages for the git commands used by the mirror transport. Credentials
// embedded in remote URLs never reach the logs.
package execshell
