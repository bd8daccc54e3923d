package board

import (
	log "github.com/sirupsen/logrus"
)

// Notifier is the non-blocking user notification surface (the toast area
// of the presentation layer). Remote failures of optimistic mutations are
// reported here instead of being returned to the caller.
type Notifier interface {
	Info(msg string)
	Error(msg string)
}

// LogNotifier routes notifications to a logger. It is the default when
// no presentation notifier is wired.
type LogNotifier struct {
	Logger *log.Logger
}

func (n LogNotifier) Info(msg string) {
	if n.Logger != nil {
		n.Logger.Info(msg)
	}
}

func (n LogNotifier) Error(msg string) {
	if n.Logger != nil {
		n.Logger.Error(msg)
	}
}

func notifyErr(n Notifier, msg string) {
	if n != nil {
		n.Error(msg)
	}
}

func notifyInfo(n Notifier, msg string) {
	if n != nil {
		n.Info(msg)
	}
}
