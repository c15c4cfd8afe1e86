package bake

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp" // registers the .webp decoder used by imaging.Open
)

// imageCache decodes shared icons and frames once per run. Failed loads are
// cached too, so a missing icon is reported once rather than per badge.
type imageCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	img image.Image
	err error
}

func newImageCache() *imageCache {
	return &imageCache{entries: map[string]cacheEntry{}}
}

// open returns the decoded image at path, decoding it on first use.
func (c *imageCache) open(path string) (image.Image, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[path]; ok {
		return e.img, e.err
	}
	img, err := imaging.Open(path)
	c.entries[path] = cacheEntry{img: img, err: err}
	return img, err
}

// len reports the number of cached paths.
func (c *imageCache) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
