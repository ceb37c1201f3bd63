// Package validate confirms a downloaded asset is usable before it is cached.
// Validation never fails: a bad image or an unplayable video is accepted anyway
// and only logged, so one broken asset cannot hold the page back.
package validate

import (
	"bytes"
	"context"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"log"
	"os"
	"time"

	"github.com/nfnt/resize"
	_ "golang.org/x/image/webp"

	"github.com/snapetech/tribute/internal/catalog"
)

const (
	// DefaultVideoTimeout bounds the playback probe. Playthrough signals are not
	// guaranteed to arrive promptly, so after this the video is accepted as-is.
	DefaultVideoTimeout = 10 * time.Second

	// Placeholder size matches the page's gallery/cover thumbnail tier.
	DefaultPlaceholderWidth  = 50
	DefaultPlaceholderHeight = 67
	placeholderQuality       = 70
)

// Result is the validation verdict. Every value means "accepted".
type Result string

const (
	ResultDecoded           Result = "decoded"
	ResultPlayable          Result = "playable"
	ResultAcceptedOnError   Result = "accepted_on_error"
	ResultAcceptedOnTimeout Result = "accepted_on_timeout"
)

// Asset is a freshly downloaded blob to validate.
type Asset struct {
	Key  string
	Kind catalog.Kind
	Data []byte
	Path string // on-disk copy if the fetcher spilled one
}

// Report is what Validate returns. Placeholder is a small JPEG for images that decoded.
type Report struct {
	Result      Result
	Placeholder []byte
}

// Validator probes assets. The zero value uses ffprobe and the default ceiling.
type Validator struct {
	Prober       Prober
	VideoTimeout time.Duration
	// TempDir holds probe files for videos that were not spilled. "" = os.TempDir().
	TempDir string

	PlaceholderWidth  uint
	PlaceholderHeight uint
}

// Validate runs the decode probe for images and the playback probe for videos.
func (v *Validator) Validate(ctx context.Context, a Asset) Report {
	if a.Kind == catalog.KindImage {
		return v.validateImage(a)
	}
	return v.validateVideo(ctx, a)
}

func (v *Validator) validateImage(a Asset) Report {
	img, format, err := image.Decode(bytes.NewReader(a.Data))
	if err != nil {
		log.Printf("validate: image decode failed key=%s err=%v (using blob anyway)", a.Key, err)
		return Report{Result: ResultAcceptedOnError}
	}
	b := img.Bounds()
	log.Printf("validate: image ok key=%s format=%s size=%dx%d", a.Key, format, b.Dx(), b.Dy())
	ph, err := v.placeholder(img)
	if err != nil {
		log.Printf("validate: placeholder failed key=%s err=%v", a.Key, err)
	}
	return Report{Result: ResultDecoded, Placeholder: ph}
}

func (v *Validator) placeholder(img image.Image) ([]byte, error) {
	w, h := v.PlaceholderWidth, v.PlaceholderHeight
	if w == 0 {
		w = DefaultPlaceholderWidth
	}
	if h == 0 {
		h = DefaultPlaceholderHeight
	}
	thumb := resize.Thumbnail(w, h, img, resize.Lanczos3)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: placeholderQuality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (v *Validator) validateVideo(ctx context.Context, a Asset) Report {
	prober := v.Prober
	if prober == nil {
		prober = FFprobe{}
	}
	timeout := v.VideoTimeout
	if timeout <= 0 {
		timeout = DefaultVideoTimeout
	}

	path, cleanup, err := v.probeFile(a)
	if err != nil {
		log.Printf("validate: video probe file failed key=%s err=%v (using blob anyway)", a.Key, err)
		return Report{Result: ResultAcceptedOnError}
	}

	pctx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() {
		done <- prober.Probe(pctx, path)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-done:
		cancel()
		cleanup()
		if err != nil {
			log.Printf("validate: video probe failed key=%s err=%v (using blob anyway)", a.Key, err)
			return Report{Result: ResultAcceptedOnError}
		}
		log.Printf("validate: video playable key=%s", a.Key)
		return Report{Result: ResultPlayable}
	case <-timer.C:
		log.Printf("validate: video %s playthrough timeout after %v, proceeding", a.Key, timeout)
	case <-ctx.Done():
		log.Printf("validate: video %s probe abandoned: %v, proceeding", a.Key, ctx.Err())
	}
	// The probe may still be running; the late result is dropped.
	cancel()
	go func() {
		<-done
		cleanup()
	}()
	return Report{Result: ResultAcceptedOnTimeout}
}

// probeFile returns a path the prober can read. Spilled assets are used in
// place; otherwise the bytes go to a temp file removed by cleanup.
func (v *Validator) probeFile(a Asset) (string, func(), error) {
	if a.Path != "" {
		return a.Path, func() {}, nil
	}
	f, err := os.CreateTemp(v.TempDir, "tribute-probe-*")
	if err != nil {
		return "", nil, err
	}
	name := f.Name()
	_, werr := f.Write(a.Data)
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(name)
		if werr != nil {
			return "", nil, werr
		}
		return "", nil, cerr
	}
	return name, func() { os.Remove(name) }, nil
}
