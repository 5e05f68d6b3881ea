package trace

import (
	"bytes"
	"context"
	stderrors "errors"
	"testing"

	"github.com/fxamacker/cbor/v2"

	"github.com/wippyai/wasm-interp/errors"
	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/runtime"
	"github.com/wippyai/wasm-interp/wasm"
)

// sumModule exports sum(n) = n + (n-1) + ... + 1, computed with a loop and
// a call per iteration.
func sumModule() *wasm.Module {
	i32 := wasm.ValI32
	return &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{i32}, Results: []wasm.ValType{i32}},
			{Params: []wasm.ValType{i32, i32}, Results: []wasm.ValType{i32}},
		},
		Funcs: []uint32{0, 1},
		Code: []wasm.FuncBody{
			{
				Locals: []wasm.LocalEntry{{Count: 1, ValType: i32}},
				Code: wasm.NewCode().
					Block(wasm.BlockTypeVoid).
					Loop(wasm.BlockTypeVoid).
					LocalGet(0).Op(wasm.OpI32Eqz).BrIf(1).
					LocalGet(1).LocalGet(0).Call(1).LocalSet(1).
					LocalGet(0).I32Const(1).Op(wasm.OpI32Sub).LocalSet(0).
					Br(0).
					End().
					End().
					LocalGet(1).
					End().Bytes(),
			},
			{Code: wasm.NewCode().LocalGet(0).LocalGet(1).Op(wasm.OpI32Add).End().Bytes()},
		},
	}
}

func record(t *testing.T, rec *Recorder, th *interp.Thread, n int32) []byte {
	t.Helper()
	rec.Reset()
	th.Reset()
	res, err := th.Call(context.Background(), 0, interp.I32(n))
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if want := n * (n + 1) / 2; res[0].I32() != want {
		t.Fatalf("sum(%d) = %v, want %d", n, res[0], want)
	}
	data, err := rec.Encode(None)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	return data
}

func newThread(t *testing.T, rec *Recorder) *interp.Thread {
	t.Helper()
	inst, err := runtime.Instantiate(context.Background(), sumModule(), nil)
	if err != nil {
		t.Fatalf("Instantiate: %v", err)
	}
	cfg := interp.DefaultConfig()
	cfg.Tracer = rec
	return interp.New(inst, cfg).NewThread()
}

func TestRecorder_Deterministic(t *testing.T) {
	rec := NewRecorder(0)
	th := newThread(t, rec)

	first := record(t, rec, th, 10)
	second := record(t, rec, th, 10)
	if !bytes.Equal(first, second) {
		t.Fatal("recordings of identical runs differ")
	}

	// A fresh interpreter over a fresh instance records the same bytes.
	other := NewRecorder(0)
	if third := record(t, other, newThread(t, other), 10); !bytes.Equal(first, third) {
		t.Error("recording depends on interpreter identity")
	}

	different := record(t, rec, th, 9)
	if bytes.Equal(first, different) {
		t.Error("different inputs recorded identically")
	}
}

func TestRecorder_Events(t *testing.T) {
	rec := NewRecorder(0)
	th := newThread(t, rec)
	record(t, rec, th, 3)

	var calls, returns int
	maxDepth := uint32(0)
	for _, ev := range rec.Events() {
		switch interp.TraceKind(ev.Kind) {
		case interp.TraceCall:
			calls++
		case interp.TraceReturn:
			returns++
		}
		maxDepth = max(maxDepth, ev.Depth)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if returns != 4 {
		t.Errorf("returns = %d, want 4", returns)
	}
	if maxDepth != 2 {
		t.Errorf("max depth = %d, want 2", maxDepth)
	}
}

func TestRecorder_Limit(t *testing.T) {
	rec := NewRecorder(5)
	th := newThread(t, rec)
	record(t, rec, th, 4)
	if n := len(rec.Events()); n != 5 {
		t.Errorf("stored %d events, want 5", n)
	}
	if rec.Dropped() == 0 {
		t.Error("no events counted as dropped")
	}
	data, err := rec.Encode(None)
	if err != nil {
		t.Fatal(err)
	}
	f, err := Decode(data)
	if err != nil {
		t.Fatal(err)
	}
	if f.Dropped != rec.Dropped() || len(f.Events) != 5 {
		t.Errorf("decoded dropped=%d events=%d", f.Dropped, len(f.Events))
	}
}

func TestEncode_Compressed(t *testing.T) {
	rec := NewRecorder(0)
	th := newThread(t, rec)
	raw := record(t, rec, th, 20)

	packed, err := rec.Encode(Zstd)
	if err != nil {
		t.Fatalf("Encode(Zstd): %v", err)
	}
	if !bytes.HasPrefix(packed, zstdMagic) {
		t.Fatal("compressed trace lacks zstd frame magic")
	}
	if len(packed) >= len(raw) {
		t.Errorf("compressed %d bytes, raw %d", len(packed), len(raw))
	}

	var buf bytes.Buffer
	if _, err := rec.WriteTo(&buf, Zstd); err != nil {
		t.Fatal(err)
	}
	f, err := Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if d := Divergence(f.Events, rec.Events()); d != -1 {
		t.Errorf("decoded trace diverges at event %d", d)
	}
}

func TestDecode_Errors(t *testing.T) {
	future, err := cbor.Marshal(&File{Version: FormatVersion + 1})
	if err != nil {
		t.Fatal(err)
	}
	badKind, err := cbor.Marshal(&File{Version: FormatVersion, Events: []Event{{Kind: 0}, {Kind: 42}}})
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name string
		data []byte
		kind errors.Kind
	}{
		{"garbage", []byte{0xFF, 0x00, 0x01}, errors.KindInvalidData},
		{"truncated zstd", zstdMagic, errors.KindInvalidData},
		{"future version", future, errors.KindUnsupported},
		{"unknown event kind", badKind, errors.KindInvalidData},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.data)
			var e *errors.Error
			if !stderrors.As(err, &e) {
				t.Fatalf("Decode error = %v, want *errors.Error", err)
			}
			if e.Phase != errors.PhaseTrace || e.Kind != tt.kind {
				t.Errorf("error = %s/%s, want trace/%s", e.Phase, e.Kind, tt.kind)
			}
		})
	}
}

func TestDivergence(t *testing.T) {
	a := []Event{{Kind: 0, PC: 1}, {Kind: 0, PC: 2}}
	tests := []struct {
		name string
		b    []Event
		want int
	}{
		{"equal", []Event{{Kind: 0, PC: 1}, {Kind: 0, PC: 2}}, -1},
		{"differs", []Event{{Kind: 0, PC: 1}, {Kind: 0, PC: 3}}, 1},
		{"prefix", []Event{{Kind: 0, PC: 1}}, 1},
		{"empty", nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Divergence(a, tt.b); got != tt.want {
				t.Errorf("Divergence = %d, want %d", got, tt.want)
			}
		})
	}
}
