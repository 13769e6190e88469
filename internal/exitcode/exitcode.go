// Package exitcode defines the process exit codes used by ymd. The CLI maps
// typed errors onto these; nothing else should call os.Exit directly.
package exitcode

const (
	Success           = 0
	RuntimeFailure    = 1
	InvalidUsage      = 2
	InvalidConfig     = 3
	MissingDependency = 4
	PartialSuccess    = 5
	Interrupted       = 130
)
