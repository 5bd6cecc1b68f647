package assets

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"

	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/logging"
)

// TransferConfig bounds the upload pipeline.
type TransferConfig struct {
	MaxWidth   int // drawing is downscaled to fit within MaxWidth x MaxHeight
	MaxHeight  int
	Quality    int // JPEG quality, 1-100
	MaxRetries int
}

// DefaultTransferConfig returns the bounds used when a caller passes none.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		MaxWidth:   800,
		MaxHeight:  600,
		Quality:    80,
		MaxRetries: 3,
	}
}

// Transfer uploads drawings and resolves their public URLs.
type Transfer struct {
	store      ObjectStore
	cache      *URLCache
	config     TransferConfig
	httpClient *http.Client

	// sleep is replaced in tests to observe backoff without waiting.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewTransfer creates a Transfer over the given object store and cache.
func NewTransfer(store ObjectStore, cache *URLCache, config TransferConfig) *Transfer {
	if config.MaxWidth <= 0 || config.MaxHeight <= 0 {
		d := DefaultTransferConfig()
		config.MaxWidth, config.MaxHeight = d.MaxWidth, d.MaxHeight
	}
	if config.Quality <= 0 || config.Quality > 100 {
		config.Quality = DefaultTransferConfig().Quality
	}
	if config.MaxRetries <= 0 {
		config.MaxRetries = DefaultTransferConfig().MaxRetries
	}
	return &Transfer{
		store:      store,
		cache:      cache,
		config:     config,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		sleep:      sleepCtx,
	}
}

// DecodeDrawing decodes a canvas export in PNG, JPEG, GIF, or WebP form.
func DecodeDrawing(r io.Reader) (image.Image, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, errors.Wrap(errors.ErrImageDecode, "failed to decode drawing", err)
	}
	return img, nil
}

// UploadDrawing downscales the drawing to the configured bounds,
// encodes it as JPEG, and uploads it under a per-user, per-session
// path. The whole upload is retried with exponential backoff
// (2^attempt seconds); after exhausting retries a combined error is
// returned. On success the public URL is cached and returned.
func (t *Transfer) UploadDrawing(ctx context.Context, userID, sessionID string, img image.Image) (string, error) {
	if userID == "" || sessionID == "" {
		return "", errors.New(errors.ErrInvalid, "user and session ids are required")
	}

	bounds := img.Bounds()
	if bounds.Dx() > t.config.MaxWidth || bounds.Dy() > t.config.MaxHeight {
		img = imaging.Fit(img, t.config.MaxWidth, t.config.MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: t.config.Quality}); err != nil {
		return "", errors.Wrap(errors.ErrImageDecode, "failed to encode drawing", err)
	}
	data := buf.Bytes()
	contentType := mimetype.Detect(data).String()

	path := fmt.Sprintf("%s/%s.jpg", userID, sessionID)

	var lastErr error
	for attempt := 1; attempt <= t.config.MaxRetries; attempt++ {
		err := t.store.Upload(ctx, path, data, contentType)
		if err == nil {
			url := t.store.PublicURL(path)
			t.cache.Put(cacheKey(userID, sessionID), url)
			logging.Info("Drawing uploaded", map[string]interface{}{
				"path":    path,
				"bytes":   len(data),
				"attempt": attempt,
			})
			return url, nil
		}
		lastErr = err

		if attempt == t.config.MaxRetries {
			break
		}
		backoff := time.Duration(1<<uint(attempt)) * time.Second
		logging.Warn("Upload attempt failed, backing off", map[string]interface{}{
			"path":    path,
			"attempt": attempt,
			"backoff": backoff.String(),
			"error":   err.Error(),
		})
		if err := t.sleep(ctx, backoff); err != nil {
			return "", errors.Wrap(errors.ErrUploadFailed, "upload cancelled", err)
		}
	}

	return "", errors.Wrap(errors.ErrUploadFailed,
		fmt.Sprintf("upload failed after %d attempts", t.config.MaxRetries), lastErr)
}

// UploadDrawingData decodes a raw canvas export and uploads it.
func (t *Transfer) UploadDrawingData(ctx context.Context, userID, sessionID string, data []byte) (string, error) {
	img, err := DecodeDrawing(bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	return t.UploadDrawing(ctx, userID, sessionID, img)
}

// ResolveDrawingURL returns a verified URL for a session's drawing.
// Cache hits are returned as-is; on a miss the object store is searched
// by prefix and the resulting URL verified. When the primary URL is
// unreachable the caller-supplied fallback is used instead.
func (t *Transfer) ResolveDrawingURL(ctx context.Context, userID, sessionID, fallback string) (string, error) {
	key := cacheKey(userID, sessionID)
	if url, ok := t.cache.Get(key); ok {
		return url, nil
	}

	names, err := t.store.List(ctx, userID)
	if err != nil {
		if fallback != "" {
			return fallback, nil
		}
		return "", err
	}

	var match string
	for _, name := range names {
		if strings.HasPrefix(name, sessionID+".") || name == sessionID {
			match = name
			break
		}
	}
	if match == "" {
		if fallback != "" {
			return fallback, nil
		}
		return "", errors.Newf(errors.ErrAssetNotFound, "no drawing stored for session %s", sessionID)
	}

	url := t.store.PublicURL(userID + "/" + match)
	if !t.verify(ctx, url) {
		if fallback != "" {
			return fallback, nil
		}
		return "", errors.Newf(errors.ErrAssetNotFound, "drawing URL unreachable for session %s", sessionID)
	}

	t.cache.Put(key, url)
	return url, nil
}

// verify checks that a URL is usable: inline-encoded images pass a
// format check, everything else gets an HTTP HEAD.
func (t *Transfer) verify(ctx context.Context, url string) bool {
	if strings.HasPrefix(url, "data:image/") {
		return true
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := t.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func cacheKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
