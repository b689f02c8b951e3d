//go:build !amd64 && !arm64

package xoshiro

func detectLanes() (int, Target) {
	return 4, TargetGeneric
}
