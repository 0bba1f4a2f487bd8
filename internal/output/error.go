package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	wardenerr "github.com/mrz1836/warden/pkg/errors"
)

// ErrorOutput is the JSON shape of an error.
type ErrorOutput struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Failure    bool              `json:"failure,omitempty"`
	ExitCode   int               `json:"exit_code"`
}

// Describe flattens err into an ErrorDetail. Failures are the expected
// outcomes a user causes: a wrong password, a cancelled prompt or a locked
// device.
func Describe(err error) ErrorDetail {
	d := ErrorDetail{
		Code:     wardenerr.Code(err),
		Message:  err.Error(),
		Failure:  wardenerr.IsFailure(err),
		ExitCode: wardenerr.ExitCode(err),
	}
	var we *wardenerr.WardenError
	if errors.As(err, &we) {
		d.Message = we.Message
		d.Details = we.Details
		d.Suggestion = we.Suggestion
	}
	return d
}

// FormatError writes err to w. Nil writes nothing.
func FormatError(w io.Writer, err error, format Format) error {
	if err == nil {
		return nil
	}
	d := Describe(err)

	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ErrorOutput{Error: d})
	}

	var sb strings.Builder
	if d.Failure {
		sb.WriteString(d.Message + "\n")
	} else {
		fmt.Fprintf(&sb, "Error: %s\n", d.Message)
	}
	if len(d.Details) > 0 {
		keys := make([]string, 0, len(d.Details))
		for k := range d.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("\nDetails:\n")
		for _, k := range keys {
			fmt.Fprintf(&sb, "  %s: %s\n", k, d.Details[k])
		}
	}
	if d.Suggestion != "" {
		fmt.Fprintf(&sb, "\nSuggestion: %s\n", d.Suggestion)
	}
	_, werr := io.WriteString(w, sb.String())
	return werr
}

// FormatSuccess writes a one-line success message.
func FormatSuccess(w io.Writer, message string, format Format) error {
	if format == FormatJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]string{"status": "success", "message": message})
	}
	_, err := fmt.Fprintln(w, message)
	return err
}
