//go:build arm64

package xoshiro

import "golang.org/x/sys/cpu"

func detectLanes() (int, Target) {
	if cpu.ARM64.HasASIMD {
		return 4, TargetNEON
	}
	return 4, TargetGeneric
}
