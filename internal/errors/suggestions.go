package errors

import "errors"

// Suggestions maps common errors to helpful suggestions.
var Suggestions = map[error]string{
	ErrInvalidID:          "Ids are a 3 letter prefix followed by 16 letters or digits, e.g. recAbCdEfGh12345678.",
	ErrMissingWindow:      "Pass --window or set a window id on the execution context.",
	ErrNoColumns:          "Provide at least one column with record values.",
	ErrNoRecords:          "Provide at least one record id for the batch.",
	ErrFieldNotFound:      "Use 'tabula sql literal --help' to list the supported field kinds.",
	ErrUnsupportedVersion: "The history was written by a newer release; upgrade before replaying it.",
	ErrVersionConflict:    "Reload the record and retry the edit.",
	ErrHistoryCorrupted:   "Move the history database aside; a fresh one is created on next start.",
}

// GetSuggestion returns a suggestion for an error, if available.
// It walks the error chain to find matching suggestions.
func GetSuggestion(err error) string {
	if err == nil {
		return ""
	}
	for knownErr, suggestion := range Suggestions {
		if errors.Is(err, knownErr) {
			return suggestion
		}
	}
	return GetCategorySuggestion(err)
}

// GetCategorySuggestion returns a generic suggestion based on error category.
func GetCategorySuggestion(err error) string {
	switch Classify(err) {
	case CategoryUser:
		return "Check your input and try again. Use --help for usage information."
	case CategorySystem:
		return "This is a system error. Check system resources and try again."
	case CategoryRecoverable:
		return "This error may resolve itself. Retry the operation."
	}
	return ""
}

// FormatByCategory returns a user-appropriate error message based on category.
func FormatByCategory(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	suggestion := GetSuggestion(err)
	switch Classify(err) {
	case CategorySystem:
		msg = "System error: " + msg
	case CategoryInternal:
		msg = "Internal error: " + msg
	}
	if suggestion != "" {
		return msg + "\n\nTry: " + suggestion
	}
	return msg
}
