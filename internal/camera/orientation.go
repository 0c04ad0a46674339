package camera

// CaptureOrientation returns the clockwise rotation in degrees that makes a
// captured frame upright, given the sensor orientation and the display
// rotation. Front cameras are mirrored, so their display rotation counts the
// other way.
func CaptureOrientation(sensorOrientation int, facing Facing, displayRotation int) int {
	rotation := normalizeDegrees(displayRotation)
	sensor := normalizeDegrees(sensorOrientation)
	if facing == FacingFront {
		return normalizeDegrees(sensor + rotation)
	}
	return normalizeDegrees(sensor - rotation)
}

// normalizeDegrees snaps to the nearest lower multiple of 90 in [0, 360).
func normalizeDegrees(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg - deg%90
}
