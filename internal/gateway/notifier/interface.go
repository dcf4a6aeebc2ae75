package notifier

// Notifier defines a minimal notification interface.
// It is intentionally small so different components can depend on it without
// importing concrete implementations (e.g. SMTP).
type Notifier interface {
	Send(subject, body string) error
}
