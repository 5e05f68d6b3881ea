package main

import (
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/wippyai/wasm-interp/interp"
	"github.com/wippyai/wasm-interp/wasm"
)

// parseArgs parses a comma-separated argument list against a signature.
// Integers accept any base strconv understands; floats also accept
// nan, inf and -inf; v128 takes 32 hex digits, lowest byte first.
func parseArgs(s string, params []wasm.ValType) ([]interp.Value, error) {
	var fields []string
	if s = strings.TrimSpace(s); s != "" {
		fields = strings.Split(s, ",")
	}
	if len(fields) != len(params) {
		return nil, fmt.Errorf("expected %d arguments, got %d", len(params), len(fields))
	}
	out := make([]interp.Value, len(params))
	for i, f := range fields {
		v, err := parseValue(strings.TrimSpace(f), params[i])
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseValue(s string, t wasm.ValType) (interp.Value, error) {
	switch t {
	case wasm.ValI32:
		if v, err := strconv.ParseInt(s, 0, 32); err == nil {
			return interp.I32(int32(v)), nil
		}
		v, err := strconv.ParseUint(s, 0, 32)
		if err != nil {
			return interp.Value{}, fmt.Errorf("invalid i32 %q", s)
		}
		return interp.U32(uint32(v)), nil
	case wasm.ValI64:
		if v, err := strconv.ParseInt(s, 0, 64); err == nil {
			return interp.I64(v), nil
		}
		v, err := strconv.ParseUint(s, 0, 64)
		if err != nil {
			return interp.Value{}, fmt.Errorf("invalid i64 %q", s)
		}
		return interp.U64(v), nil
	case wasm.ValF32:
		v, err := parseFloat(s, 32)
		if err != nil {
			return interp.Value{}, err
		}
		return interp.F32(float32(v)), nil
	case wasm.ValF64:
		v, err := parseFloat(s, 64)
		if err != nil {
			return interp.Value{}, err
		}
		return interp.F64(v), nil
	case wasm.ValV128:
		b, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
		if err != nil || len(b) != 16 {
			return interp.Value{}, fmt.Errorf("invalid v128 %q: need 32 hex digits", s)
		}
		return interp.V128Bytes([16]byte(b)), nil
	default:
		return interp.Value{}, fmt.Errorf("unsupported parameter type %s", t)
	}
}

func parseFloat(s string, bits int) (float64, error) {
	switch strings.ToLower(s) {
	case "nan":
		return math.NaN(), nil
	case "inf", "+inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	}
	v, err := strconv.ParseFloat(s, bits)
	if err != nil {
		return 0, fmt.Errorf("invalid f%d %q", bits, s)
	}
	return v, nil
}

func formatValues(vals []interp.Value) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = v.String()
	}
	return strings.Join(parts, ", ")
}
