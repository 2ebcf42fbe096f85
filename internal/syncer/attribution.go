package syncer

import (
	"strings"
)

// claimFromCommandLine recognises bead-tracker invocations that imply a
// claim, e.g. "bd update bd-12 --status=in_progress" or "bd claim bd-12".
// It returns the bead id and whether the command implies claiming it.
func claimFromCommandLine(commandLine string) (beadID string, claimed bool) {
	fields := strings.Fields(commandLine)
	if len(fields) < 3 || fields[0] != "bd" {
		return "", false
	}
	verb := fields[1]
	switch verb {
	case "claim":
		return fields[2], true
	case "update":
		id := fields[2]
		for i := 3; i < len(fields); i++ {
			f := fields[i]
			if f == "--status" {
				// Separated form: the value is the next field.
				if i+1 < len(fields) {
					return id, fields[i+1] == "in_progress"
				}
				return "", false
			}
			if strings.HasPrefix(f, "--status=") {
				return id, strings.TrimPrefix(f, "--status=") == "in_progress"
			}
		}
	}
	return "", false
}
