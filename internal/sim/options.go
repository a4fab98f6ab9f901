package sim

import "github.com/sirupsen/logrus"

type options struct {
	log       logrus.FieldLogger
	observers []Observer
	sink      SnapshotSink
}

// Option configures a run. Observers and snapshot sinks only fire on the
// root rank.
type Option func(*options)

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) { o.log = l }
}

func WithObserver(obs Observer) Option {
	return func(o *options) { o.observers = append(o.observers, obs) }
}

func WithSnapshots(s SnapshotSink) Option {
	return func(o *options) { o.sink = s }
}

func buildOptions(opts []Option) options {
	o := options{log: logrus.StandardLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o *options) emit(ev StepEvent) {
	for _, obs := range o.observers {
		obs.OnStep(ev)
	}
}
