package num

import "fmt"

// ConvShape holds the geometry of a 2d convolution or pooling window over a [channels, height, width] input.
type ConvShape struct {
	C, H, W      int
	Size, Stride int
	Pad          int
}

// Out returns the output height and width.
func (s ConvShape) Out() (h, w int) {
	stride := s.Stride
	if stride == 0 {
		stride = 1
	}
	h = (s.H+2*s.Pad-s.Size)/stride + 1
	w = (s.W+2*s.Pad-s.Size)/stride + 1
	if h <= 0 || w <= 0 {
		panic(fmt.Sprintf("ConvShape: window %d larger than input %dx%d", s.Size, s.H, s.W))
	}
	return h, w
}

// Check returns an error if the window does not fit the input.
func (s ConvShape) Check() error {
	if s.Size <= 0 || s.Stride < 0 || s.Pad < 0 {
		return fmt.Errorf("invalid window size %d stride %d pad %d", s.Size, s.Stride, s.Pad)
	}
	if s.H+2*s.Pad < s.Size || s.W+2*s.Pad < s.Size {
		return fmt.Errorf("window %d larger than input %dx%d", s.Size, s.H, s.W)
	}
	return nil
}

func (s ConvShape) stride() int {
	if s.Stride == 0 {
		return 1
	}
	return s.Stride
}

// Im2col unrolls the image src of shape [C, H, W] into the cols matrix of shape [C*Size*Size, outH*outW]
// so that the convolution becomes a single matrix product.
func Im2col(s ConvShape, src, cols []float32) {
	oh, ow := s.Out()
	stride := s.stride()
	n := oh * ow
	if len(cols) != s.C*s.Size*s.Size*n {
		panic("Im2col: invalid cols buffer size")
	}
	for c := 0; c < s.C; c++ {
		plane := src[c*s.H*s.W : (c+1)*s.H*s.W]
		for ky := 0; ky < s.Size; ky++ {
			for kx := 0; kx < s.Size; kx++ {
				row := cols[((c*s.Size+ky)*s.Size+kx)*n:]
				for y := 0; y < oh; y++ {
					iy := y*stride + ky - s.Pad
					for x := 0; x < ow; x++ {
						ix := x*stride + kx - s.Pad
						if iy < 0 || iy >= s.H || ix < 0 || ix >= s.W {
							row[y*ow+x] = 0
						} else {
							row[y*ow+x] = plane[iy*s.W+ix]
						}
					}
				}
			}
		}
	}
}

// Col2im is the inverse of Im2col: it accumulates the cols gradient back into dst of shape [C, H, W].
func Col2im(s ConvShape, cols, dst []float32) {
	oh, ow := s.Out()
	stride := s.stride()
	n := oh * ow
	for i := range dst {
		dst[i] = 0
	}
	for c := 0; c < s.C; c++ {
		plane := dst[c*s.H*s.W : (c+1)*s.H*s.W]
		for ky := 0; ky < s.Size; ky++ {
			for kx := 0; kx < s.Size; kx++ {
				row := cols[((c*s.Size+ky)*s.Size+kx)*n:]
				for y := 0; y < oh; y++ {
					iy := y*stride + ky - s.Pad
					if iy < 0 || iy >= s.H {
						continue
					}
					for x := 0; x < ow; x++ {
						ix := x*stride + kx - s.Pad
						if ix >= 0 && ix < s.W {
							plane[iy*s.W+ix] += row[y*ow+x]
						}
					}
				}
			}
		}
	}
}

// MaxPool takes the max over each window of src [C, H, W] and records the source offset of each max in index.
func MaxPool(s ConvShape, src, dst []float32, index []int32) {
	oh, ow := s.Out()
	stride := s.stride()
	for c := 0; c < s.C; c++ {
		base := c * s.H * s.W
		for y := 0; y < oh; y++ {
			for x := 0; x < ow; x++ {
				best := -1
				for ky := 0; ky < s.Size; ky++ {
					iy := y*stride + ky - s.Pad
					if iy < 0 || iy >= s.H {
						continue
					}
					for kx := 0; kx < s.Size; kx++ {
						ix := x*stride + kx - s.Pad
						if ix < 0 || ix >= s.W {
							continue
						}
						off := base + iy*s.W + ix
						if best < 0 || src[off] > src[best] {
							best = off
						}
					}
				}
				o := (c*oh+y)*ow + x
				dst[o] = src[best]
				index[o] = int32(best)
			}
		}
	}
}

// MaxPoolD routes the output gradient back to the positions selected by MaxPool.
func MaxPoolD(grad []float32, index []int32, dsrc []float32) {
	for i := range dsrc {
		dsrc[i] = 0
	}
	for o, off := range index {
		dsrc[off] += grad[o]
	}
}
