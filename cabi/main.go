// Command cabi builds the engine as a C shared library:
//
//	go build -buildmode=c-shared -o libheadcount.so ./cabi
//
// Every export returns a JSON document allocated with malloc; release it
// with HeadcountFree.
package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"context"
	"encoding/json"
	"unsafe"

	"github.com/openfluke/headcount"
	"github.com/openfluke/headcount/config"
	"github.com/openfluke/headcount/device"
)

func errJSON(err error) *C.char {
	return asJSON(map[string]string{"error": err.Error()})
}

func asJSON(v any) *C.char {
	data, err := json.Marshal(v)
	if err != nil {
		return C.CString(`{"error": "encode response"}`)
	}
	return C.CString(string(data))
}

type flipResponse struct {
	Flips uint64 `json:"flips"`
	Heads uint64 `json:"heads"`
}

//export HeadcountThreaded
func HeadcountThreaded(count C.ulonglong) *C.char {
	heads, err := headcount.ThreadedWrapper(uint64(count))
	if err != nil {
		return errJSON(err)
	}
	return asJSON(flipResponse{Flips: uint64(count), Heads: heads})
}

//export HeadcountGPU
func HeadcountGPU(count C.ulonglong) *C.char {
	heads, err := headcount.GPUExecutor(uint64(count))
	if err != nil {
		return errJSON(err)
	}
	return asJSON(flipResponse{Flips: uint64(count), Heads: heads})
}

//export HeadcountDetect
func HeadcountDetect() *C.char {
	cfg, err := config.Load("")
	if err != nil {
		return errJSON(err)
	}
	info, err := device.Detect(context.Background(), cfg.Device)
	if err != nil {
		return errJSON(err)
	}
	return asJSON(info)
}

//export HeadcountFree
func HeadcountFree(p *C.char) {
	C.free(unsafe.Pointer(p))
}

func main() {}
