package types

// Logger defines the structured logging interface used throughout the
// pipeline. slog satisfies the first three methods; mains wrap it in a
// small adapter because slog's With returns *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
	With(args ...any) Logger
}

// DeliveryResult is the outcome of a channel sender call that reached the
// provider. Transport-level failures are returned as errors instead and
// classified transient/permanent via IsTransient/IsPermanent.
type DeliveryResult struct {
	// Accepted means the provider confirmed or accepted the message for
	// asynchronous delivery.
	Accepted bool

	// RejectReason is set when Accepted is false: the provider refused the
	// message permanently (invalid address, revoked credential). Rejections
	// are terminal and never retried.
	RejectReason string

	// ProviderMsgID is the provider-side message identifier, when available.
	ProviderMsgID string
}
