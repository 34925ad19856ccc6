// Package img contains routines for loading and normalising sets of images.
package img

// Image stores the pixel data as float32 values in range 0-1, one row major plane per colour channel.
type Image struct {
	Pix      []float32
	Height   int
	Width    int
	Channels int
}

// NewGray returns a blank single channel image.
func NewGray(width, height int) *Image {
	return &Image{Pix: make([]float32, height*width), Height: height, Width: width, Channels: 1}
}

// FromBytes creates a single channel image from 8 bit grey levels, scaling the intensities to [0,1].
func FromBytes(width, height int, pix []uint8) *Image {
	m := NewGray(width, height)
	for i, v := range pix[:width*height] {
		m.Pix[i] = float32(v) / 255
	}
	return m
}

// Pixels returns the data for the given colour channel, or all channels if ch is out of range.
func (m *Image) Pixels(ch int) []float32 {
	n := m.Width * m.Height
	if ch >= 0 && ch < m.Channels {
		return m.Pix[ch*n : (ch+1)*n]
	}
	return m.Pix
}

// At returns the intensity of channel ch at column x and row y, or 0 if out of bounds.
func (m *Image) At(x, y, ch int) float32 {
	if x < 0 || x >= m.Width || y < 0 || y >= m.Height {
		return 0
	}
	return m.Pixels(ch)[y*m.Width+x]
}

// String renders a single channel image as ascii art.
func (m *Image) String() string {
	const chars = "  ...+++**"
	s := ""
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			val := int(m.At(x, y, 0) * 10)
			if val < 0 {
				val = 0
			}
			if val > 9 {
				val = 9
			}
			s += string(chars[val]) + " "
		}
		s += "\n"
	}
	return s
}
