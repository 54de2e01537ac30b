package display

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/veandco/go-sdl2/sdl"

	"livewall/pkg/video"
)

// Sink uploads RGB24 frames to a streaming texture and draws them into a
// letterboxed viewport.
type Sink struct {
	renderer *sdl.Renderer
	texture  *sdl.Texture
	width    int
	height   int

	uploads int
	log     *logrus.Entry
}

// NewSink creates a sink for frames of width x height.
func NewSink(renderer *sdl.Renderer, width, height int) (*Sink, error) {
	texture, err := renderer.CreateTexture(uint32(sdl.PIXELFORMAT_RGB24), sdl.TEXTUREACCESS_STREAMING, int32(width), int32(height))
	if err != nil {
		return nil, fmt.Errorf("failed to create texture: %w", err)
	}

	return &Sink{
		renderer: renderer,
		texture:  texture,
		width:    width,
		height:   height,
		log: logrus.WithFields(logrus.Fields{
			"component": "display",
			"size":      fmt.Sprintf("%dx%d", width, height),
		}),
	}, nil
}

// Size returns the texture dimensions.
func (s *Sink) Size() (int, int) {
	return s.width, s.height
}

// Present uploads a fresh frame and draws the current texture. A repeated
// frame is drawn without re-uploading.
func (s *Sink) Present(p video.Presentation) error {
	if p.Width != s.width || p.Height != s.height {
		return fmt.Errorf("frame %dx%d on %dx%d texture: %w", p.Width, p.Height, s.width, s.height, video.ErrShapeMismatch)
	}

	if p.Fresh || s.uploads == 0 {
		if err := s.upload(p.Pix); err != nil {
			return err
		}
	}

	dst := sdl.Rect{X: p.Viewport.X, Y: p.Viewport.Y, W: p.Viewport.W, H: p.Viewport.H}
	return s.renderer.Copy(s.texture, nil, &dst)
}

// upload copies pix row by row, honouring the texture pitch.
func (s *Sink) upload(pix []byte) error {
	pixels, pitch, err := s.texture.Lock(nil)
	if err != nil {
		return fmt.Errorf("failed to lock texture: %w", err)
	}
	defer s.texture.Unlock()

	rowBytes := s.width * 3
	if pitch == rowBytes {
		copy(pixels, pix)
	} else {
		for y := 0; y < s.height; y++ {
			copy(pixels[y*pitch:y*pitch+rowBytes], pix[y*rowBytes:(y+1)*rowBytes])
		}
	}

	s.uploads++
	return nil
}

// Uploads returns how many frames were copied to the texture.
func (s *Sink) Uploads() int {
	return s.uploads
}

// Close destroys the texture.
func (s *Sink) Close() error {
	if s.texture == nil {
		return nil
	}
	err := s.texture.Destroy()
	s.texture = nil
	s.log.WithField("uploads", s.uploads).Debug("Texture destroyed")
	return err
}
