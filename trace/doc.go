// Package trace records interpreter execution as a stream of events.
//
// A Recorder plugs into interp.Config.Tracer. Its encoding is canonical
// CBOR, so two runs over the same input produce byte-identical recordings
// and can be compared with bytes.Equal or Divergence.
//
//	rec := trace.NewRecorder(0)
//	cfg := interp.DefaultConfig()
//	cfg.Tracer = rec
//	...
//	data, err := rec.Encode(trace.Zstd)
package trace
