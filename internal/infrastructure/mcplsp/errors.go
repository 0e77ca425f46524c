package mcplsp

import "fmt"

// ErrServerNotInstalled means the server command is missing from PATH.
// This class of failure does not count against the restart budget because
// retrying is pointless (spec 4.D).
type ErrServerNotInstalled struct {
	Server      string
	InstallHint string
}

func (e *ErrServerNotInstalled) Error() string {
	return fmt.Sprintf("language server binary not found: %s (install with: %s)", e.Server, e.InstallHint)
}

// ErrServerFailed means the lifecycle is permanently Failed (restart budget exhausted).
type ErrServerFailed struct {
	Server   string
	Restarts int
}

func (e *ErrServerFailed) Error() string {
	return fmt.Sprintf("server %s failed after %d restarts", e.Server, e.Restarts)
}

// ErrServerRestarting means a respawn is already in flight for this key.
type ErrServerRestarting struct {
	Server string
}

func (e *ErrServerRestarting) Error() string {
	return fmt.Sprintf("server %s is restarting", e.Server)
}
