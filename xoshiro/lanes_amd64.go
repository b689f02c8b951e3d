//go:build amd64

package xoshiro

import "golang.org/x/sys/cpu"

func detectLanes() (int, Target) {
	x86 := &cpu.X86
	switch {
	case x86.HasAVX512F:
		return 8, TargetAVX512
	case x86.HasAVX2:
		return 4, TargetAVX2
	}
	return 4, TargetGeneric
}
