package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
)

// FormatForUser returns a user-friendly error message.
// If debug is true, the underlying cause chain is appended.
func FormatForUser(err error, debug bool) string {
	if err == nil {
		return ""
	}

	var be *BrainError
	if !stderrors.As(err, &be) {
		return err.Error()
	}

	var sb strings.Builder

	sb.WriteString("Error: ")
	sb.WriteString(be.Message)
	sb.WriteString("\n")

	if be.Suggestion != "" {
		sb.WriteString("\nSuggestion: ")
		sb.WriteString(be.Suggestion)
		sb.WriteString("\n")
	}

	if debug && be.Cause != nil {
		sb.WriteString("\nCause: ")
		sb.WriteString(be.Cause.Error())
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\n[%s]", be.Code))

	return sb.String()
}

// FormatForCLI formats an error for CLI output.
// Uses a concise format suitable for terminal display.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	var be *BrainError
	if !stderrors.As(err, &be) {
		be = Wrap(ErrCodeInternal, err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Error: %s\n", be.Message))

	if be.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", be.Suggestion))
	}

	sb.WriteString(fmt.Sprintf("  Code: %s\n", be.Code))

	return sb.String()
}

// FormatForLog formats an error for structured logging.
// Returns key-value pairs suitable for slog attributes.
func FormatForLog(err error) map[string]any {
	if err == nil {
		return nil
	}

	var be *BrainError
	if !stderrors.As(err, &be) {
		return map[string]any{
			"error": err.Error(),
		}
	}

	result := map[string]any{
		"error_code": be.Code,
		"message":    be.Message,
		"category":   string(be.Category),
		"severity":   string(be.Severity),
		"retryable":  be.Retryable,
	}

	if be.Cause != nil {
		result["cause"] = be.Cause.Error()
	}

	if be.Suggestion != "" {
		result["suggestion"] = be.Suggestion
	}

	for k, v := range be.Details {
		result["detail_"+k] = v
	}

	return result
}
