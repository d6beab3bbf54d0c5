package singleton

import "github.com/sirupsen/logrus"

type options struct {
	id              string
	logger          *logrus.Logger
	allowOverriding bool
}

// Option configures a Registry.
type Option func(*options)

// WithLogger sets the logger the registry writes to. The default is the
// logrus standard logger.
func WithLogger(l *logrus.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithID overrides the generated registry identifier.
func WithID(id string) Option {
	return func(o *options) {
		o.id = id
	}
}

// WithAliasOverriding controls whether aliases may be re-pointed at a
// different name. It defaults to true.
func WithAliasOverriding(allow bool) Option {
	return func(o *options) {
		o.allowOverriding = allow
	}
}
