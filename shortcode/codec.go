// Package shortcode turns the SAS engine's derived bytes into the
// human-comparable representations two devices read aloud to each
// other: three decimal groups or seven emoji.
package shortcode

// Decimal renders the first 5 derived bytes as three numbers in
// [1000, 9191]. It returns ok=false, not an error, when fewer than 5
// bytes are available — the caller simply has no representation yet.
func Decimal(b []byte) (d [3]int, ok bool) {
	if len(b) < 5 {
		return d, false
	}
	d[0] = (int(b[0])<<5 | int(b[1])>>3) + 1000
	d[1] = ((int(b[1])&0x07)<<10 | int(b[2])<<2 | int(b[3])>>6) + 1000
	d[2] = ((int(b[3])&0x3F)<<7 | int(b[4])>>1) + 1000
	return d, true
}

// Emoji renders the first 6 derived bytes as seven 6-bit indices into
// the SAS emoji table. It returns ok=false when fewer than 6
// bytes are available.
func Emoji(b []byte) (e [7]int, ok bool) {
	if len(b) < 6 {
		return e, false
	}
	e[0] = int(b[0]&0xFC) >> 2
	e[1] = int(b[0]&0x03)<<4 | int(b[1]&0xF0)>>4
	e[2] = int(b[1]&0x0F)<<2 | int(b[2]&0xC0)>>6
	e[3] = int(b[2] & 0x3F)
	e[4] = int(b[3]&0xFC) >> 2
	e[5] = int(b[3]&0x03)<<4 | int(b[4]&0xF0)>>4
	e[6] = int(b[4]&0x0F)<<2 | int(b[5]&0xC0)>>6
	return e, true
}

// EmojiNames renders the seven indices from Emoji as their (name,
// glyph) pairs from the table. Indices outside [0,63] are
// a caller bug and panic, mirroring slice-index semantics.
func EmojiNames(indices [7]int) [7]Entry {
	var out [7]Entry
	for i, idx := range indices {
		out[i] = Table[idx]
	}
	return out
}
