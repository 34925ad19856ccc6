package img

import (
	"bufio"
	"compress/gzip"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/jnb666/mnistrun/log"
	"github.com/jnb666/mnistrun/nnet"
)

const (
	imageMagic = 2051
	labelMagic = 2049
)

// Standard file names of the MNIST distribution, optionally with a .gz suffix.
const (
	TrainImages = "train-images-idx3-ubyte"
	TrainLabels = "train-labels-idx1-ubyte"
	TestImages  = "t10k-images-idx3-ubyte"
	TestLabels  = "t10k-labels-idx1-ubyte"
)

type labelHeader struct{ Magic, Num uint32 }

type imageHeader struct{ Magic, Num, Height, Width uint32 }

// MNIST loads the training and test sets from idx files in Dir. The test set is used as the
// validation data unless ValidSplit is set, in which case the last ValidSplit training images
// are held out instead. MaxSamples limits the number of training images if non-zero.
type MNIST struct {
	Dir        string
	MaxSamples int
	ValidSplit int
}

// Load reads the data set from disk.
func (m MNIST) Load() (train, valid nnet.Data, err error) {
	trainSet, err := LoadIdx(filepath.Join(m.Dir, TrainImages), filepath.Join(m.Dir, TrainLabels), 10)
	if err != nil {
		return nil, nil, err
	}
	var validSet *Data
	if m.ValidSplit > 0 {
		if m.ValidSplit >= trainSet.Len() {
			return nil, nil, errors.Errorf("validation split %d must be less than %d training images", m.ValidSplit, trainSet.Len())
		}
		n := trainSet.Len() - m.ValidSplit
		validSet = trainSet.Slice(n, trainSet.Len())
		trainSet = trainSet.Slice(0, n)
	} else if exists(filepath.Join(m.Dir, TestImages)) {
		if validSet, err = LoadIdx(filepath.Join(m.Dir, TestImages), filepath.Join(m.Dir, TestLabels), 10); err != nil {
			return nil, nil, err
		}
	}
	if m.MaxSamples > 0 && trainSet.Len() > m.MaxSamples {
		trainSet = trainSet.Slice(0, m.MaxSamples)
	}
	if log.IsDebug() {
		GetStats(trainSet.Images)
	}
	if validSet == nil {
		return trainSet, nil, nil
	}
	return trainSet, validSet, nil
}

// LoadIdx reads an image file and its matching label file in idx format.
func LoadIdx(imageFile, labelFile string, classes int) (*Data, error) {
	labels, err := ReadLabels(labelFile)
	if err != nil {
		return nil, err
	}
	images, err := ReadImages(imageFile)
	if err != nil {
		return nil, err
	}
	if len(images) != len(labels) {
		return nil, errors.Errorf("%s has %d images but %s has %d labels", imageFile, len(images), labelFile, len(labels))
	}
	for i, l := range labels {
		if l < 0 || int(l) >= classes {
			return nil, errors.Errorf("%s: label %d at index %d out of range", labelFile, l, i)
		}
	}
	return NewData(Digits(classes), labels, images), nil
}

// ReadImages reads a set of 8 bit greyscale images, scaling the pixels to [0,1].
func ReadImages(name string) ([]*Image, error) {
	r, closer, err := openIdx(name)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var head imageHeader
	if err = binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, errors.Wrapf(err, "reading header from %s", name)
	}
	if head.Magic != imageMagic {
		return nil, errors.Errorf("%s: bad magic number %d for image file", name, head.Magic)
	}
	n, h, w := int(head.Num), int(head.Height), int(head.Width)
	log.Debugf("read %d %dx%d images from %s", n, h, w, name)
	images := make([]*Image, n)
	pixels := make([]uint8, w*h)
	for i := range images {
		if _, err = io.ReadFull(r, pixels); err != nil {
			return nil, errors.Wrapf(err, "reading image %d from %s", i, name)
		}
		images[i] = FromBytes(w, h, pixels)
	}
	return images, nil
}

// ReadLabels reads a set of labels.
func ReadLabels(name string) ([]int32, error) {
	r, closer, err := openIdx(name)
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	var head labelHeader
	if err = binary.Read(r, binary.BigEndian, &head); err != nil {
		return nil, errors.Wrapf(err, "reading header from %s", name)
	}
	if head.Magic != labelMagic {
		return nil, errors.Errorf("%s: bad magic number %d for label file", name, head.Magic)
	}
	log.Debugf("read %d labels from %s", head.Num, name)
	buf := make([]uint8, head.Num)
	if _, err = io.ReadFull(r, buf); err != nil {
		return nil, errors.Wrapf(err, "reading labels from %s", name)
	}
	labels := make([]int32, len(buf))
	for i, v := range buf {
		labels[i] = int32(v)
	}
	return labels, nil
}

// open the file, or the gzipped version if the plain file is not present
func openIdx(name string) (io.Reader, io.Closer, error) {
	gz := false
	if !fileExists(name) && fileExists(name+".gz") {
		name += ".gz"
	}
	if filepath.Ext(name) == ".gz" {
		gz = true
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening data file")
	}
	if !gz {
		return bufio.NewReader(f), f, nil
	}
	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, nil, errors.Wrapf(err, "reading gzip header from %s", name)
	}
	return zr, f, nil
}

func fileExists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

func exists(name string) bool {
	return fileExists(name) || fileExists(name+".gz")
}
