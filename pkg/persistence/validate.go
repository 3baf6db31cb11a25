package persistence

import (
	"fmt"
	"regexp"
)

var flowIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{0,127}$`)

// ValidateFlowID rejects ids that are empty or could escape a storage
// namespace, such as path separators.
func ValidateFlowID(flowID string) error {
	if !flowIDPattern.MatchString(flowID) || flowID == "." || flowID == ".." {
		return fmt.Errorf("%w: %q", ErrInvalidFlowID, flowID)
	}

	return nil
}
