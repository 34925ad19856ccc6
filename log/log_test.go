package log

import (
	"bytes"
	"io"
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevels(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)
	SetDebug(false)

	Debugf("hidden %d", 1)
	Printf("epoch %3d: done", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "[INFO]  mnistrun: epoch   2: done")

	SetDebug(true)
	defer SetDebug(false)
	assert.True(t, IsDebug())
	Debugln("shown", 3)
	assert.Contains(t, buf.String(), "[DEBUG] mnistrun: shown 3")

	Warnf("careful")
	assert.Contains(t, buf.String(), "[WARN]  mnistrun: careful")
}

func TestSetOutputConcurrent(t *testing.T) {
	defer SetOutput(os.Stderr)
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				Printf("worker %d line %d", i, j)
			}
		}(i)
	}
	for j := 0; j < 20; j++ {
		SetOutput(io.Discard)
	}
	wg.Wait()

	var buf bytes.Buffer
	SetOutput(&buf)
	Logger().Warn("short run", "epochs", 2, "expected", 3)
	assert.Contains(t, buf.String(), "short run: epochs=2 expected=3")
}
