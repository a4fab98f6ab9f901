package storage

import (
	"fmt"
	"os"
)

// AppendSummary adds a "n procs seconds" line to the summary file.
func AppendSummary(path string, n, procs int, seconds float64) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(f, "%d %d %g\n", n, procs, seconds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
