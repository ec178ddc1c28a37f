package preview

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/bryanchriswhite/sdock/internal/logger"
	"github.com/bryanchriswhite/sdock/internal/render"
)

// Stream keeps the latest committed dock frame and re-encodes it as Motion
// JPEG for connected clients at a fixed rate. It implements the session's
// frame sink.
type Stream struct {
	fps   int
	scale float64

	// Latest frame
	frameMu sync.RWMutex
	latest  *image.NRGBA
	seq     uint64

	// Connected clients
	clientsMu sync.RWMutex
	clients   map[chan []byte]struct{}

	encoded uint64
}

// NewStream creates a stream encoding at fps frames per second, with
// frames resized by scale
func NewStream(fps int, scale float64) *Stream {
	if fps <= 0 {
		fps = 5
	}
	if scale <= 0 {
		scale = 1
	}
	return &Stream{
		fps:     fps,
		scale:   scale,
		clients: make(map[chan []byte]struct{}),
	}
}

// WriteFrame stores a copy of a BGRA frame
func (s *Stream) WriteFrame(width, height int, pix []byte) {
	img := render.ToImage(width, height, pix)

	s.frameMu.Lock()
	s.latest = img
	s.seq++
	s.frameMu.Unlock()
}

// Latest returns the most recent frame, resized by the stream's scale, and
// its sequence number. The image is nil until the first frame arrives.
func (s *Stream) Latest() (image.Image, uint64) {
	s.frameMu.RLock()
	img, seq := s.latest, s.seq
	s.frameMu.RUnlock()

	if img == nil {
		return nil, seq
	}
	return scaleImage(img, s.scale), seq
}

func scaleImage(src *image.NRGBA, scale float64) image.Image {
	if scale == 1 {
		return src
	}
	b := src.Bounds()
	w := max(1, int(float64(b.Dx())*scale))
	h := max(1, int(float64(b.Dy())*scale))

	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}

// Run encodes new frames until ctx is done, then disconnects all clients
func (s *Stream) Run(ctx context.Context) {
	log := logger.WithComponent("preview")

	ticker := time.NewTicker(time.Second / time.Duration(s.fps))
	defer ticker.Stop()

	log.Info().Int("fps", s.fps).Float64("scale", s.scale).Msg("MJPEG stream started")

	var last uint64
	for {
		select {
		case <-ctx.Done():
			s.closeClients()
			log.Info().Uint64("frames", s.encoded).Msg("MJPEG stream stopped")
			return
		case <-ticker.C:
			next, err := s.tick(last)
			if err != nil {
				log.Warn().Err(err).Msg("Failed to encode preview frame")
			}
			last = next
		}
	}
}

// tick encodes and broadcasts the latest frame when it is newer than last
func (s *Stream) tick(last uint64) (uint64, error) {
	img, seq := s.Latest()
	if img == nil || seq == last {
		return last, nil
	}

	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return seq, fmt.Errorf("failed to encode JPEG: %w", err)
	}
	s.encoded++
	s.broadcast(buf.Bytes())
	return seq, nil
}

func (s *Stream) broadcast(data []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()

	for ch := range s.clients {
		select {
		case ch <- data:
		default:
			// Slow client, drop the frame
		}
	}
}

func (s *Stream) closeClients() {
	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for ch := range s.clients {
		close(ch)
	}
	s.clients = make(map[chan []byte]struct{})
}

// Clients returns the number of connected MJPEG clients
func (s *Stream) Clients() int {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	return len(s.clients)
}

func (s *Stream) subscribe() chan []byte {
	ch := make(chan []byte, 2)
	s.clientsMu.Lock()
	s.clients[ch] = struct{}{}
	s.clientsMu.Unlock()
	return ch
}

func (s *Stream) unsubscribe(ch chan []byte) {
	s.clientsMu.Lock()
	delete(s.clients, ch)
	s.clientsMu.Unlock()
}

// ServeHTTP streams multipart JPEG frames until the client goes away
func (s *Stream) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := logger.WithComponent("preview")

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary=frame")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Expires", "0")

	frames := s.subscribe()
	log.Info().Int("clients", s.Clients()).Msg("MJPEG client connected")
	defer func() {
		s.unsubscribe(frames)
		log.Info().Int("clients", s.Clients()).Msg("MJPEG client disconnected")
	}()

	for {
		select {
		case <-r.Context().Done():
			return
		case data, ok := <-frames:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "--frame\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", len(data)); err != nil {
				return
			}
			if _, err := w.Write(data); err != nil {
				return
			}
			if _, err := fmt.Fprint(w, "\r\n"); err != nil {
				return
			}
			if f, ok := w.(http.Flusher); ok {
				f.Flush()
			}
		}
	}
}
