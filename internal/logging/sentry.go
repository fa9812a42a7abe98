package logging

import (
	"fmt"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
)

var (
	sentryEnabled bool
	environment   = "production"
)

// SentryOptions configures crash and error reporting.
type SentryOptions struct {
	Enabled     bool
	DSN         string
	Environment string
	Release     string
}

// InitSentry initializes Sentry for crash reporting.
// Opt-in: enabled via config or NFC_READER_SENTRY=1, disabled by NFC_READER_SENTRY=0.
// Returns true if Sentry was successfully initialized.
func InitSentry(opts SentryOptions) bool {
	enabled := opts.Enabled
	switch os.Getenv("NFC_READER_SENTRY") {
	case "1":
		enabled = true
	case "0":
		enabled = false
	}

	if !enabled {
		return false
	}

	if opts.DSN == "" {
		fmt.Fprintln(os.Stderr, "Warning: crash reporting enabled but no Sentry DSN configured")
		return false
	}
	if opts.Environment != "" {
		environment = opts.Environment
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              opts.DSN,
		Release:          "nfc-reader@" + opts.Release,
		Environment:      getEnvironment(),
		AttachStacktrace: true,
		// Sample rate for performance monitoring (disabled by default)
		TracesSampleRate: 0.0,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: Failed to initialize Sentry: %v\n", err)
		return false
	}

	sentryEnabled = true
	return true
}

// getEnvironment returns the environment name for Sentry.
func getEnvironment() string {
	if env := os.Getenv("NFC_READER_ENVIRONMENT"); env != "" {
		return env
	}
	return environment
}

// SentryEnabled returns whether Sentry is currently enabled.
func SentryEnabled() bool {
	return sentryEnabled
}

// FlushSentry flushes any buffered events to Sentry.
// Call this before application exit.
func FlushSentry(timeout time.Duration) {
	if sentryEnabled {
		sentry.Flush(timeout)
	}
}

// CapturePanic sends a panic to Sentry along with the stack trace.
// This should be called from recover() handlers.
func CapturePanic(panicValue any, stack []byte, context string) {
	if !sentryEnabled {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("panic_context", context)
		scope.SetExtra("stack_trace", string(stack))
		scope.SetLevel(sentry.LevelFatal)

		switch v := panicValue.(type) {
		case error:
			sentry.CaptureException(v)
		case string:
			sentry.CaptureMessage(v)
		default:
			sentry.CaptureMessage(fmt.Sprintf("%v", v))
		}
	})

	// Flush immediately for panics since app may crash
	sentry.Flush(2 * time.Second)
}

// CaptureError sends an error to Sentry.
func CaptureError(err error, context string, data map[string]any) {
	if !sentryEnabled || err == nil {
		return
	}

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("error_context", context)
		for k, v := range data {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}
