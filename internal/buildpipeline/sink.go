package buildpipeline

// ChannelSink forwards events into a channel. Expand items arrive from
// worker goroutines, so the channel should be buffered.
type ChannelSink struct {
	Ch chan<- Event
}

func (s ChannelSink) OnEvent(ev Event) {
	if s.Ch == nil {
		return
	}
	s.Ch <- ev
}

// SinkFunc adapts a function to ProgressSink.
type SinkFunc func(Event)

func (f SinkFunc) OnEvent(ev Event) {
	if f != nil {
		f(ev)
	}
}

// Tee sends every event to each non-nil sink in order.
func Tee(sinks ...ProgressSink) ProgressSink {
	out := make([]ProgressSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return SinkFunc(func(ev Event) {
		for _, s := range out {
			s.OnEvent(ev)
		}
	})
}
