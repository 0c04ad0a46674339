package camera

import "github.com/smazurov/boothcam/internal/driver"

// DefaultMaxOutputSize bounds preview and still outputs when no bound is configured.
var DefaultMaxOutputSize = driver.Size{Width: 1920, Height: 1080}

// SelectOptimalSize picks the largest advertised size that fits inside bound.
// When nothing fits, the bound itself is returned and the hardware is left to
// downscale; the result never exceeds bound in either dimension.
func SelectOptimalSize(sizes []driver.Size, bound driver.Size) driver.Size {
	if bound.Width <= 0 || bound.Height <= 0 {
		bound = DefaultMaxOutputSize
	}

	var best driver.Size
	found := false
	for _, s := range sizes {
		if s.Width <= 0 || s.Height <= 0 || !s.Fits(bound) {
			continue
		}
		if !found || s.Area() > best.Area() || (s.Area() == best.Area() && s.Width > best.Width) {
			best = s
			found = true
		}
	}
	if !found {
		return bound
	}
	return best
}
