package actor

import "sync/atomic"

// Sink receives updates from the loop. Send must not block.
type Sink interface {
	Send(Update)
}

// ChannelSink is a bounded Sink that drops updates when the reader falls behind.
type ChannelSink struct {
	ch      chan Update
	dropped atomic.Uint64
}

func NewChannelSink(size int) *ChannelSink {
	if size <= 0 {
		size = 1
	}
	return &ChannelSink{ch: make(chan Update, size)}
}

func (s *ChannelSink) Send(u Update) {
	select {
	case s.ch <- u:
	default:
		s.dropped.Add(1)
	}
}

func (s *ChannelSink) Updates() <-chan Update {
	return s.ch
}

func (s *ChannelSink) Dropped() uint64 {
	return s.dropped.Load()
}

// FanOut delivers every update to each sink in order.
type FanOut []Sink

func (f FanOut) Send(u Update) {
	for _, s := range f {
		if s != nil {
			s.Send(u)
		}
	}
}
