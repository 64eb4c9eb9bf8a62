package secondary

import "context"

// RemoteExecutor defines the secondary port for running a command on the
// measurement host.
type RemoteExecutor interface {
	// Run executes command remotely and returns its stdout. Transport failures
	// wrap ErrSyncUnreachable.
	Run(ctx context.Context, command string) ([]byte, error)

	// Host names the remote host, recorded as measurement origin.
	Host() string
}

// Notifier defines the secondary port for the operator notification channel.
type Notifier interface {
	Send(ctx context.Context, msg Notification) error
}

// Notification is a message to the operator.
type Notification struct {
	Subject string
	Body    string
}
