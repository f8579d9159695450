package media

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"strings"
)

// ErrNoFrames is returned when a video yields no decodable frames.
var ErrNoFrames = errors.New("no frames extracted")

const (
	// DefaultFFmpegBinary is looked up on PATH.
	DefaultFFmpegBinary = "ffmpeg"

	maxFrameBytes = 64 << 20
)

var (
	jpegSOI = []byte{0xFF, 0xD8}
	jpegEOI = []byte{0xFF, 0xD9}
)

// Frame is one sampled video frame. Time is its offset in whole seconds.
type Frame struct {
	Time  int
	Image image.Image
}

// FrameExtractor samples one frame every interval seconds and passes each to
// fn in time order. Returning an error from fn stops extraction.
type FrameExtractor interface {
	ExtractFrames(ctx context.Context, path string, interval int, fn func(Frame) error) error
}

// FFmpeg extracts frames by piping MJPEG output from an ffmpeg process.
type FFmpeg struct {
	binary string
}

// FFmpegOption configures an FFmpeg extractor.
type FFmpegOption func(*FFmpeg)

// WithBinary sets the ffmpeg executable.
func WithBinary(binary string) FFmpegOption {
	return func(f *FFmpeg) {
		f.binary = binary
	}
}

// NewFFmpeg creates an ffmpeg-backed frame extractor.
func NewFFmpeg(opts ...FFmpegOption) *FFmpeg {
	f := &FFmpeg{binary: DefaultFFmpegBinary}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Available reports whether the ffmpeg binary can be found.
func (f *FFmpeg) Available() error {
	if _, err := exec.LookPath(f.binary); err != nil {
		return fmt.Errorf("ffmpeg not found: %w", err)
	}
	return nil
}

// ExtractFrames runs ffmpeg on path and streams the sampled frames to fn.
func (f *FFmpeg) ExtractFrames(ctx context.Context, path string, interval int, fn func(Frame) error) error {
	if interval <= 0 {
		return fmt.Errorf("invalid frame interval %d", interval)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, f.binary,
		"-nostdin",
		"-v", "error",
		"-i", path,
		"-vf", fmt.Sprintf("fps=1/%d", interval),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"-",
	)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating ffmpeg pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting ffmpeg: %w", err)
	}

	n, readErr := ReadFrames(stdout, interval, fn)
	if readErr != nil {
		cancel()
		io.Copy(io.Discard, stdout)
		cmd.Wait()
		return readErr
	}

	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("ffmpeg failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNoFrames, path)
	}
	return nil
}

// ReadFrames decodes a stream of concatenated JPEG images, assigning frame
// times at multiples of interval. It returns the number of frames read.
func ReadFrames(r io.Reader, interval int, fn func(Frame) error) (int, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxFrameBytes)
	sc.Split(splitJPEG)

	n := 0
	for sc.Scan() {
		img, err := jpeg.Decode(bytes.NewReader(sc.Bytes()))
		if err != nil {
			return n, fmt.Errorf("decoding frame %d: %w", n, err)
		}
		if err := fn(Frame{Time: n * interval, Image: img}); err != nil {
			return n, err
		}
		n++
	}
	if err := sc.Err(); err != nil {
		return n, fmt.Errorf("reading frames: %w", err)
	}
	return n, nil
}

// splitJPEG is a bufio.SplitFunc yielding one complete JPEG (SOI through EOI)
// per token. Bytes outside an image are discarded, as is a truncated image at EOF.
func splitJPEG(data []byte, atEOF bool) (int, []byte, error) {
	start := bytes.Index(data, jpegSOI)
	if start < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		if len(data) > 1 {
			// The last byte may be the first half of a marker.
			return len(data) - 1, nil, nil
		}
		return 0, nil, nil
	}

	end := bytes.Index(data[start+len(jpegSOI):], jpegEOI)
	if end < 0 {
		if atEOF {
			return len(data), nil, nil
		}
		return start, nil, nil
	}

	stop := start + len(jpegSOI) + end + len(jpegEOI)
	return stop, data[start:stop], nil
}
