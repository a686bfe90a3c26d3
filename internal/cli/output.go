package cli

import (
	"encoding/json"
	"fmt"
	"os"
)

// WriteJSON writes v to stdout as a single JSON line. Dashboard mode
// reserves stdout for exactly one of these per invocation; everything else
// goes through WriteLog.
func WriteJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	_, err = fmt.Fprintf(os.Stdout, "%s\n", data)
	if err != nil {
		return fmt.Errorf("failed to write JSON to stdout: %w", err)
	}
	return nil
}

// WriteLog writes a human-readable progress message to stderr, keeping
// stdout clean for the JSON response.
func WriteLog(message string) error {
	_, err := fmt.Fprintf(os.Stderr, "%s\n", message)
	if err != nil {
		return fmt.Errorf("failed to write log to stderr: %w", err)
	}
	return nil
}
