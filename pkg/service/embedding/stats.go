package embedding

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strings"

	"github.com/m-mizutani/goerr/v2"
)

var (
	edgeKernel      = [9]float64{-1, 0, 1, -2, 0, 2, -1, 0, 1}
	sharpnessKernel = [9]float64{0, 1, 0, 1, -4, 1, 0, 1, 0}
)

// ImageStats holds the pixel statistics of an image on a 0-255 scale
type ImageStats struct {
	Format     string
	Width      int
	Height     int
	Mean       [3]float64
	StdDev     [3]float64
	Edges      float64
	Sharpness  float64
	Contrast   float64
	Brightness float64
}

// StatsDescriber describes an image by its color, edge and sharpness statistics. It needs
// no external service, so it serves offline setups and tests.
type StatsDescriber struct{}

var _ Describer = &StatsDescriber{}

func NewStatsDescriber() *StatsDescriber {
	return &StatsDescriber{}
}

func (d *StatsDescriber) Describe(ctx context.Context, data []byte) (string, error) {
	stats, err := ComputeStats(data)
	if err != nil {
		return "", err
	}
	return stats.String(), nil
}

// ComputeStats decodes the image and measures it
func ComputeStats(data []byte) (*ImageStats, error) {
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, goerr.Wrap(err, "failed to decode image")
	}

	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return nil, goerr.New("image has no pixels", goerr.V("format", format))
	}

	var sum, sumSq [3]float64
	grey := make([]float64, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			ch := [3]float64{float64(r >> 8), float64(g >> 8), float64(b >> 8)}
			for i, v := range ch {
				sum[i] += v
				sumSq[i] += v * v
			}
			grey[y*w+x] = 0.2126*ch[0] + 0.7152*ch[1] + 0.0722*ch[2]
		}
	}

	n := float64(w * h)
	stats := &ImageStats{Format: format, Width: w, Height: h}
	for i := range 3 {
		stats.Mean[i] = sum[i] / n
		stats.StdDev[i] = math.Sqrt(math.Max(sumSq[i]/n-stats.Mean[i]*stats.Mean[i], 0))
		stats.Contrast = math.Max(stats.Contrast, stats.StdDev[i])
		stats.Brightness = math.Max(stats.Brightness, stats.Mean[i])
	}
	stats.Edges = convolveMean(grey, w, h, edgeKernel)
	stats.Sharpness = math.Abs(convolveMean(grey, w, h, sharpnessKernel))

	return stats, nil
}

// convolveMean applies a 3x3 kernel with clamped borders and returns the mean response
// clamped to 0-255 per pixel
func convolveMean(grey []float64, w, h int, kernel [9]float64) float64 {
	at := func(x, y int) float64 {
		x = min(max(x, 0), w-1)
		y = min(max(y, 0), h-1)
		return grey[y*w+x]
	}

	var total float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var v float64
			for ky := -1; ky <= 1; ky++ {
				for kx := -1; kx <= 1; kx++ {
					v += kernel[(ky+1)*3+(kx+1)] * at(x+kx, y+ky)
				}
			}
			total += min(max(v, 0), 255)
		}
	}
	return total / float64(w*h)
}

func (s *ImageStats) String() string {
	var sb strings.Builder
	sb.WriteString("Image Analysis:\n")
	fmt.Fprintf(&sb, "- Format: %s, Size: %dx%d\n", s.Format, s.Width, s.Height)
	sb.WriteString("- Color Statistics:\n")
	for i, name := range []string{"Red", "Green", "Blue"} {
		fmt.Fprintf(&sb, "  * %s Channel: mean=%.2f, std=%.2f\n", name, s.Mean[i], s.StdDev[i])
	}
	fmt.Fprintf(&sb, "- Edge Detection: %.2f\n", s.Edges)
	fmt.Fprintf(&sb, "- Sharpness Level: %.2f\n", s.Sharpness)
	fmt.Fprintf(&sb, "- Overall Contrast: %.2f\n", s.Contrast)
	fmt.Fprintf(&sb, "- Overall Brightness: %.2f", s.Brightness)
	return sb.String()
}
