package tensor

// LengthToMask builds a [batch, 1, width] validity mask. Row b holds
// min(lengths[b], width) leading ones followed by zeros.
func LengthToMask(lengths []int, width int) Tensor[float32] {
	if width < 0 {
		width = 0
	}
	mask := New[float32](len(lengths), 1, width)
	for b, l := range lengths {
		n := min(max(l, 0), width)
		row := mask.Data[b*width : b*width+width]
		for j := 0; j < n; j++ {
			row[j] = 1
		}
	}
	return mask
}

// MaxLength returns the largest entry of lengths, or 0 for an empty slice.
func MaxLength(lengths []int) int {
	m := 0
	for _, l := range lengths {
		if l > m {
			m = l
		}
	}
	return m
}

// ValidLength counts the leading ones of mask row b.
func ValidLength(mask Tensor[float32], b int) int {
	width := mask.Dim(2)
	row := mask.Data[b*width : b*width+width]
	n := 0
	for n < width && row[n] != 0 {
		n++
	}
	return n
}
