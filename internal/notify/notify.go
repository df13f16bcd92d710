// Package notify tells operators about committed batches and bot assignments.
package notify

import (
	"strings"

	"github.com/hashicorp/go-multierror"
)

// NotificationType represents the type of notification
type NotificationType int

const (
	NotifyInfo NotificationType = iota
	NotifySuccess
	NotifyWarning
	NotifyError
)

// Notification represents a notification to be sent
type Notification struct {
	Title     string
	Message   string
	Type      NotificationType
	ProcessID string // Optional process group reference
	VMID      string // Optional VM reference
}

// Subject joins the optional references, e.g. "PID-10234 / vm-001"
func (n Notification) Subject() string {
	var parts []string
	if n.ProcessID != "" {
		parts = append(parts, n.ProcessID)
	}
	if n.VMID != "" {
		parts = append(parts, n.VMID)
	}
	return strings.Join(parts, " / ")
}

// Notifier is the interface for sending notifications
type Notifier interface {
	Send(n Notification) error
}

// MultiNotifier sends to multiple notifiers
type MultiNotifier struct {
	notifiers []Notifier
}

// NewMultiNotifier creates a notifier that sends to all provided notifiers
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Send sends the notification to all notifiers. Every notifier is tried;
// failures are returned together.
func (m *MultiNotifier) Send(n Notification) error {
	var result *multierror.Error
	for _, notifier := range m.notifiers {
		if err := notifier.Send(n); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// NoopNotifier does nothing (for testing or disabled notifications)
type NoopNotifier struct{}

func (NoopNotifier) Send(n Notification) error { return nil }
