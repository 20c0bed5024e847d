package cmdlog

import (
	"herald/internal/logging"
	"herald/internal/metrics"
)

// Run executes a CLI command body, counting runs and failures.
func Run(cmd string, f func() error) error {
	metrics.IncCommandRun(cmd)
	err := f()
	if err != nil {
		metrics.IncCommandError(cmd)
		logging.Error(cmd+"_error", logging.Fields{"error": err.Error()})
	} else {
		logging.Info(cmd+"_ok", nil)
	}
	return err
}
