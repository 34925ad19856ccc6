package img

import (
	"strconv"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/num"
	"github.com/jnb666/mnistrun/stats"
)

// Image data set which implements the nnet.Data interface
type Data struct {
	Class  []string
	Dims   []int
	Labels []int32
	Images []*Image
}

// Create a new image set. Dims are set to channels, height, width from the first image.
func NewData(classes []string, labels []int32, images []*Image) *Data {
	d := &Data{Class: classes, Labels: labels, Images: images}
	if len(images) > 0 {
		src := images[0]
		d.Dims = []int{src.Channels, src.Height, src.Width}
	}
	return d
}

// Digits returns the class names "0" to "n-1".
func Digits(n int) []string {
	classes := make([]string, n)
	for i := range classes {
		classes[i] = strconv.Itoa(i)
	}
	return classes
}

// Len function returns number of images
func (d *Data) Len() int { return len(d.Labels) }

// Classes functions number of differerent label values
func (d *Data) Classes() []string { return d.Class }

// Shape returns channels, height, width
func (d *Data) Shape() []int { return d.Dims }

// Label returns classification for given images
func (d *Data) Label(index []int, label []int32) {
	for i, ix := range index {
		label[i] = d.Labels[ix]
	}
}

// Input returns scaled input data in buf array
func (d *Data) Input(index []int, buf []float32) {
	nfeat := num.Prod(d.Dims)
	for i, ix := range index {
		copy(buf[i*nfeat:(i+1)*nfeat], d.Images[ix].Pix)
	}
}

// Image returns given image number
func (d *Data) Image(ix int) *Image {
	return d.Images[ix]
}

// Slice returns images from start to end
func (d *Data) Slice(start, end int) *Data {
	data := *d
	data.Labels = append([]int32{}, d.Labels[start:end]...)
	data.Images = append([]*Image{}, d.Images[start:end]...)
	return &data
}

// Calculate mean and stddev per channel from set of images
func GetStats(imgList ...[]*Image) (mean, std []float32) {
	if len(imgList) == 0 || len(imgList[0]) == 0 {
		return nil, nil
	}
	channels := imgList[0][0].Channels
	stat := make([]stats.Average, channels)
	for _, images := range imgList {
		for _, img := range images {
			for ch := range stat {
				for _, val := range img.Pixels(ch) {
					stat[ch].Add(float64(val))
				}
			}
		}
	}
	mean = make([]float32, channels)
	std = make([]float32, channels)
	for i, s := range stat {
		mean[i] = float32(s.Mean)
		std[i] = float32(s.StdDev)
	}
	log.Debugf("image stats: mean = %.3f stddev = %.3f", mean, std)
	return mean, std
}
