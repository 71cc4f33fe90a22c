package eventmodels

import "fmt"

// EnvironmentProvisionError indicates the runtime environment for a manifest
// could not be built. Recoverable: the next call retries provisioning.
type EnvironmentProvisionError struct {
	ManifestHash string
	Err          error
}

func (e *EnvironmentProvisionError) Error() string {
	return fmt.Sprintf("environment provisioning failed for manifest %s: %v", e.ManifestHash, e.Err)
}

func (e *EnvironmentProvisionError) Unwrap() error {
	return e.Err
}

// CredentialDecryptionError is scoped to a single subscriber.
type CredentialDecryptionError struct {
	SubscriberID uint
	Err          error
}

func (e *CredentialDecryptionError) Error() string {
	return fmt.Sprintf("failed to decrypt credentials for subscriber %d: %v", e.SubscriberID, e.Err)
}

func (e *CredentialDecryptionError) Unwrap() error {
	return e.Err
}

// ProcessLaunchError indicates the strategy subprocess never started.
type ProcessLaunchError struct {
	Err error
}

func (e *ProcessLaunchError) Error() string {
	return fmt.Sprintf("failed to launch strategy process: %v", e.Err)
}

func (e *ProcessLaunchError) Unwrap() error {
	return e.Err
}

// ProcessTimeoutError indicates the subprocess exceeded its wall-clock budget
// and was forcibly killed.
type ProcessTimeoutError struct {
	Timeout string
}

func (e *ProcessTimeoutError) Error() string {
	return fmt.Sprintf("strategy process timed out after %s", e.Timeout)
}

// ResultParseError indicates the subprocess exited 0 but its standard output
// was not a valid run result. Treated as a failed run, never a success.
type ResultParseError struct {
	Output string
	Err    error
}

func (e *ResultParseError) Error() string {
	return fmt.Sprintf("failed to parse run result: %v", e.Err)
}

func (e *ResultParseError) Unwrap() error {
	return e.Err
}

// InvariantViolation is a data-integrity error, e.g. appending a fill to a
// closed trade cycle. The offending write is aborted.
type InvariantViolation struct {
	Message string
}

func (e *InvariantViolation) Error() string {
	return fmt.Sprintf("invariant violation: %s", e.Message)
}
