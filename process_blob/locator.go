package process_blob

import (
	"context"
	"fmt"
	"sync"

	"nesram/process"
)

// ImageLocator serves a ProcessImage through the process.Locator interface.
// Replace swaps in a new image, which looks like the target being restarted.
type ImageLocator struct {
	mu    sync.Mutex
	image *ProcessImage
}

var _ process.Locator = (*ImageLocator)(nil)

func NewImageLocator(image *ProcessImage) *ImageLocator {
	return &ImageLocator{image: image}
}

// Replace makes image the running target. A nil image means nothing runs.
func (l *ImageLocator) Replace(image *ProcessImage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.image = image
}

func (l *ImageLocator) current() *ProcessImage {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.image
}

func (l *ImageLocator) Locate(ctx context.Context) (process.Handle, error) {
	if err := ctx.Err(); err != nil {
		return process.Handle{}, err
	}

	image := l.current()
	if image == nil || image.Killed() {
		return process.Handle{}, fmt.Errorf("%w: no image running", process.ErrProcessUnavailable)
	}
	return image.Handle(), nil
}

func (l *ImageLocator) Alive(ctx context.Context, h process.Handle) bool {
	image := l.current()
	if image == nil || image.Killed() {
		return false
	}
	return image.Handle().Same(h)
}

func (l *ImageLocator) Attach(h process.Handle) (process.Process, error) {
	image := l.current()
	if image == nil || image.Killed() || !image.Handle().Same(h) {
		return nil, fmt.Errorf("%w: %s is not running", process.ErrProcessUnavailable, h)
	}
	return image, nil
}
