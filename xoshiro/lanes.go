package xoshiro

// Target names the instruction set the lane width was chosen for.
type Target string

const (
	TargetGeneric Target = "generic"
	TargetAVX2    Target = "avx2"
	TargetAVX512  Target = "avx512"
	TargetNEON    Target = "neon"
)

// DetectLanes returns the lane count that matches the widest vector unit on
// this CPU, along with the target it was derived from.
func DetectLanes() (int, Target) {
	return detectLanes()
}

// ResolveLanes returns configured when it is non-zero, otherwise the detected
// lane count.
func ResolveLanes(configured int) (int, error) {
	if configured == 0 {
		n, _ := DetectLanes()
		return n, nil
	}
	if err := checkLanes(configured); err != nil {
		return 0, err
	}
	return configured, nil
}
