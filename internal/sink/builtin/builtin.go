// Package builtin registers the sinks shipped with pcapstream.
package builtin

import (
	"firestige.xyz/pcapstream/internal/sink"
	"firestige.xyz/pcapstream/internal/sink/console"
	"firestige.xyz/pcapstream/internal/sink/kafka"
)

func init() {
	sink.Register(console.Name, console.NewSink)
	sink.Register(kafka.Name, kafka.NewSink)
}
