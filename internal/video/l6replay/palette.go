package l6replay

import "image/color"

// overlayPalette is the fixed set of distinguishable overlay colours.
// Twelve entries keeps adjacent identities visually distinct in doubles
// footage while staying readable on green and blue courts.
var overlayPalette = []string{
	"#e6194b", "#3cb44b", "#ffe119", "#4363d8",
	"#f58231", "#911eb4", "#42d4f4", "#f032e6",
	"#bfef45", "#fabed4", "#469990", "#9a6324",
}

// ColorFor returns the stable overlay colour for a track identity as a
// hex string. The same identity always maps to the same colour within
// and across runs.
func ColorFor(trackID int64) string {
	if trackID < 0 {
		trackID = -trackID
	}
	return overlayPalette[trackID%int64(len(overlayPalette))]
}

// RGBAFor returns the overlay colour as a color.RGBA for raster overlays.
func RGBAFor(trackID int64) color.RGBA {
	hex := ColorFor(trackID)
	return color.RGBA{
		R: hexByte(hex[1], hex[2]),
		G: hexByte(hex[3], hex[4]),
		B: hexByte(hex[5], hex[6]),
		A: 0xff,
	}
}

func hexByte(hi, lo byte) uint8 {
	return hexNibble(hi)<<4 | hexNibble(lo)
}

func hexNibble(c byte) uint8 {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}
