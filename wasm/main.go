//go:build js && wasm

// Command wasm exposes the CPU path to JavaScript.
//
// Flip counts may be passed as numbers (exact up to 2^53) or as decimal
// strings. Results come back as JSON strings: {"flips":N,"heads":H} or
// {"error":"..."}.
package main

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"syscall/js"

	"github.com/openfluke/headcount"
)

func asJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf(`{"error": %q}`, err.Error())
	}
	return string(data)
}

func errJSON(err error) string {
	return asJSON(map[string]string{"error": err.Error()})
}

// countArg converts the first JavaScript argument into a flip count.
func countArg(args []js.Value) (uint64, error) {
	if len(args) == 0 || args[0].IsUndefined() || args[0].IsNull() {
		return 0, fmt.Errorf("missing flip count")
	}
	switch a := args[0]; a.Type() {
	case js.TypeString:
		return strconv.ParseUint(a.String(), 10, 64)
	case js.TypeNumber:
		f := a.Float()
		if f < 0 || f > 1<<53 || f != math.Trunc(f) {
			return 0, fmt.Errorf("flip count %v is not an exact non-negative integer", f)
		}
		return uint64(f), nil
	default:
		return 0, fmt.Errorf("flip count must be a number or string, got %s", a.Type())
	}
}

func flipWrapper(run func(uint64) (uint64, error)) js.Func {
	return js.FuncOf(func(this js.Value, args []js.Value) any {
		count, err := countArg(args)
		if err != nil {
			return errJSON(err)
		}
		heads, err := run(count)
		if err != nil {
			return errJSON(err)
		}
		return asJSON(map[string]uint64{"flips": count, "heads": heads})
	})
}

func main() {
	js.Global().Set("HeadcountThreaded", flipWrapper(headcount.ThreadedWrapper))
	js.Global().Set("HeadcountGPU", flipWrapper(headcount.GPUExecutor))

	// Keep the Go program running
	select {}
}
