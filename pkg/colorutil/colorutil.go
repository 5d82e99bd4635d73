// Package colorutil provides shared color helpers for frame inspection.
package colorutil

import (
	"image/color"
)

// RGB8 returns the 8-bit red, green and blue channels of c. Alpha is ignored.
func RGB8(c color.Color) (r, g, b uint8) {
	r32, g32, b32, _ := c.RGBA()
	return uint8(r32 >> 8), uint8(g32 >> 8), uint8(b32 >> 8)
}

// BlueEqualsGreen reports whether the blue and green channels of c are
// equal at 8-bit precision. Frames from IR night mode or a dead feed
// satisfy this everywhere.
func BlueEqualsGreen(c color.Color) bool {
	_, g, b := RGB8(c)
	return b == g
}
