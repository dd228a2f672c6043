package embedding

import (
	"image"
	"sync"

	"gocv.io/x/gocv"
)

// Pixel grid used by the fallback embedder; GridWidth*GridHeight == Width.
const (
	GridWidth  = 40
	GridHeight = 25
)

// Pixels embeds a frame as a coarse grayscale thumbnail. It needs no model
// file, which makes it the fallback when no network is configured.
type Pixels struct {
	mu sync.Mutex
}

// NewPixels creates a thumbnail embedder.
func NewPixels() *Pixels {
	return &Pixels{}
}

// Embed downsamples frame to a GridWidth x GridHeight grayscale grid and
// returns its intensities scaled to (0, 1]. Every cell is offset by one
// level so a black frame still embeds to a nonzero vector.
func (p *Pixels) Embed(frame *gocv.Mat) ([]float64, error) {
	if frame == nil || frame.Empty() {
		return nil, ErrEmptyFrame
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	gray := gocv.NewMat()
	defer gray.Close()

	if frame.Channels() > 1 {
		gocv.CvtColor(*frame, &gray, gocv.ColorBGRToGray)
	} else {
		frame.CopyTo(&gray)
	}

	small := gocv.NewMat()
	defer small.Close()
	gocv.Resize(gray, &small, image.Point{X: GridWidth, Y: GridHeight}, 0, 0, gocv.InterpolationArea)

	vec := make([]float64, 0, GridWidth*GridHeight)
	for y := 0; y < GridHeight; y++ {
		for x := 0; x < GridWidth; x++ {
			vec = append(vec, (float64(small.GetUCharAt(y, x))+1)/256.0)
		}
	}
	return vec, nil
}

// Width returns GridWidth*GridHeight.
func (p *Pixels) Width() int {
	return GridWidth * GridHeight
}

// Close is a no-op.
func (p *Pixels) Close() error {
	return nil
}
