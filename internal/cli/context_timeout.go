package cli

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

// defaultDeviceTimeout bounds a device command, including the time spent
// waiting for the user to plug the device in and confirm on it.
const defaultDeviceTimeout = 3 * time.Minute

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var deviceTimeout time.Duration

// contextWithTimeout returns a timeout context rooted in the command context.
func contextWithTimeout(cmd *cobra.Command, d time.Duration) (context.Context, context.CancelFunc) {
	base := cmd.Context()
	if base == nil {
		base = context.Background()
	}
	if d <= 0 {
		d = defaultDeviceTimeout
	}
	return context.WithTimeout(base, d)
}

// deviceContext bounds a command that talks to a device by --timeout.
func deviceContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return contextWithTimeout(cmd, deviceTimeout)
}
