package trace

import (
	"bytes"
	"fmt"
	"io"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/interp"
)

// FormatVersion is written into every encoded trace.
const FormatVersion = 1

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("trace: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Compression selects the outer encoding of a trace.
type Compression uint8

const (
	None Compression = iota
	Zstd
)

// Event is the recorded form of interp.TraceEvent.
type Event struct {
	_      struct{} `cbor:",toarray"`
	Kind   uint8
	Func   uint32
	PC     uint32
	Opcode uint8
	Depth  uint32
	Height uint32
	Trap   uint8
}

func fromInterp(ev interp.TraceEvent) Event {
	return Event{
		Kind:   uint8(ev.Kind),
		Func:   ev.Func,
		PC:     uint32(ev.PC),
		Opcode: ev.Opcode,
		Depth:  uint32(ev.Depth),
		Height: uint32(ev.Height),
		Trap:   uint8(ev.Trap),
	}
}

func (e Event) String() string {
	s := fmt.Sprintf("%-6s f%d@%d op=%#02x depth=%d height=%d",
		interp.TraceKind(e.Kind), e.Func, e.PC, e.Opcode, e.Depth, e.Height)
	if e.Trap != 0 {
		s += " trap=" + interp.TrapReason(e.Trap).String()
	}
	return s
}

// File is the encoded trace document.
type File struct {
	Version int     `cbor:"1,keyasint"`
	Dropped uint64  `cbor:"2,keyasint,omitempty"`
	Events  []Event `cbor:"3,keyasint"`
}

// Recorder collects events. It is safe to share between threads of one
// interpreter, though interleaved threads make the order nondeterministic.
type Recorder struct {
	events  []Event
	limit   int
	dropped uint64
	mu      sync.Mutex
}

// NewRecorder creates a recorder that keeps at most limit events. Zero
// means unlimited; events past the limit are counted but not stored.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit}
}

// Trace implements interp.Tracer.
func (r *Recorder) Trace(ev interp.TraceEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.limit > 0 && len(r.events) >= r.limit {
		r.dropped++
		return
	}
	r.events = append(r.events, fromInterp(ev))
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Dropped returns the number of events discarded past the limit.
func (r *Recorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// Reset discards everything recorded so far.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = r.events[:0]
	r.dropped = 0
}

// Encode serializes the recording.
func (r *Recorder) Encode(c Compression) ([]byte, error) {
	r.mu.Lock()
	f := File{Version: FormatVersion, Dropped: r.dropped, Events: r.events}
	data, err := encMode.Marshal(&f)
	r.mu.Unlock()
	if err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindInvalidData, err, "encode trace")
	}
	if c == Zstd {
		return compress(data)
	}
	return data, nil
}

// WriteTo writes the encoded recording to w.
func (r *Recorder) WriteTo(w io.Writer, c Compression) (int64, error) {
	data, err := r.Encode(c)
	if err != nil {
		return 0, err
	}
	n, err := w.Write(data)
	return int64(n), err
}

// Decode parses an encoded trace, compressed or not.
func Decode(data []byte) (*File, error) {
	if bytes.HasPrefix(data, zstdMagic) {
		raw, err := decompress(data)
		if err != nil {
			return nil, errors.Wrap(errors.PhaseTrace, errors.KindInvalidData, err, "decompress trace")
		}
		data = raw
	}
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, errors.Wrap(errors.PhaseTrace, errors.KindInvalidData, err, "decode trace")
	}
	if f.Version != FormatVersion {
		return nil, errors.Unsupported(errors.PhaseTrace, fmt.Sprintf("trace format version %d", f.Version))
	}
	for i, ev := range f.Events {
		if ev.Kind > uint8(interp.TraceBreak) {
			return nil, errors.InvalidData(errors.PhaseTrace, []string{"events", fmt.Sprint(i)},
				fmt.Sprintf("unknown event kind %d", ev.Kind))
		}
	}
	return &f, nil
}

// Divergence returns the index of the first event that differs between a
// and b, or -1 if they are identical.
func Divergence(a, b []Event) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return i
		}
	}
	if len(a) != len(b) {
		return n
	}
	return -1
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	defer enc.Close()
	return enc.EncodeAll(data, nil), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}

var _ interp.Tracer = (*Recorder)(nil)
