// Logging setup: zap for the structured event logs every long-lived
// component takes (ribosome calls, network dispatch, reducer, instance),
// plus a logrus logger constructor that no component in this module
// calls.
package core

import (
	"github.com/sirupsen/logrus"
	"go.uber.org/zap"
)

// NewZapLogger builds a production zap logger unless dev is set, in
// which case it builds a human-readable development logger.
func NewZapLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// NewLogrusLogger builds a text-formatted logrus logger at debug level
// when debug is set, info level otherwise.
func NewLogrusLogger(debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if debug {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
	return l
}
