package errors

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
)

// FormatForCLI formats an error for terminal display.
// KBErrors show their suggestion and code; other errors print as-is.
func FormatForCLI(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var ke *KBError
	if !stderrors.As(err, &ke) {
		return fmt.Sprintf("Error: %s\n", err.Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Error: %s\n", ke.Message)

	if ke.Suggestion != "" {
		fmt.Fprintf(&sb, "  Suggestion: %s\n", ke.Suggestion)
	}

	if debug {
		keys := make([]string, 0, len(ke.Details))
		for k := range ke.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, ke.Details[k])
		}
		if ke.Cause != nil {
			fmt.Fprintf(&sb, "  cause: %v\n", ke.Cause)
		}
	}

	fmt.Fprintf(&sb, "  [%s]\n", ke.Code)
	return sb.String()
}
