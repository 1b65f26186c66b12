// Package ctflog provides the injectable, silent-by-default logger
// shared by the core's stateful components (metadata.Resolver,
// msgiter.Iterator). The teacher is a library with no logging of its
// own; this follows the rest of the pack's convention of accepting an
// injected logger rather than calling a global one.
package ctflog

import "github.com/sirupsen/logrus"

// Discard returns a *logrus.Entry whose output goes nowhere, the
// default a component falls back to when no logger is injected.
func Discard() *logrus.Entry {
	l := logrus.New()
	l.SetOutput(discardWriter{})
	return logrus.NewEntry(l)
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
