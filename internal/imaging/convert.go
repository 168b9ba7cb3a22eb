package imaging

// ConvertMode returns a copy of b in the requested channel mode using
// the plain device conversion, no ICC transform. Layout decorations
// authored in RGBA are folded into CMYK runs this way; the canvas
// profile is attached downstream and governs the final rendering.
func ConvertMode(b *Buffer, mode Mode) *Buffer {
	if b.Mode == mode {
		return b.Clone()
	}

	out := New(b.Width, b.Height, mode)
	srcN, dstN := b.Channels(), out.Channels()
	for i, j := 0, 0; i < len(b.Pix); i, j = i+srcN, j+dstN {
		src := b.Pix[i : i+srcN]
		dst := out.Pix[j : j+dstN]
		if mode == ModeCMYKA {
			r, g, bl := src[0], src[1], src[2]
			dst[0] = 255 - r
			dst[1] = 255 - g
			dst[2] = 255 - bl
			dst[3] = 0
			dst[4] = src[3]
		} else {
			c, m, y, k := int(src[0]), int(src[1]), int(src[2]), int(src[3])
			dst[0] = uint8((255 - c) * (255 - k) / 255)
			dst[1] = uint8((255 - m) * (255 - k) / 255)
			dst[2] = uint8((255 - y) * (255 - k) / 255)
			dst[3] = src[4]
		}
	}
	return out
}
