package core

import "github.com/lisuiheng/micunit/audio"

// Sink receives every unit the pipeline emits. OnUnit runs on the capture
// thread and must return quickly; the unit belongs to the sink afterwards.
type Sink interface {
	OnUnit(unit *audio.SampleUnit)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(unit *audio.SampleUnit)

func (f SinkFunc) OnUnit(unit *audio.SampleUnit) { f(unit) }

// sinkHolder boxes a Sink so it can live behind an atomic.Pointer.
type sinkHolder struct {
	sink Sink
}
