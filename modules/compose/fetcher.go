package compose

import (
	"context"
	"fmt"
	"image"
	"log"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"

	"comicgen-server/modules/common/utils"
)

// Fetcher resolves panel image URLs to decoded images, caching results so a
// multi-page composition downloads each panel at most once.
type Fetcher struct {
	client *resty.Client
	cache  *gocache.Cache
}

func NewFetcher() *Fetcher {
	return &Fetcher{
		client: resty.New().SetTimeout(30 * time.Second),
		cache:  gocache.New(10*time.Minute, 15*time.Minute),
	}
}

// Fetch returns the decoded image behind a URL. data: URIs are decoded
// inline, everything else is an HTTP GET.
func (f *Fetcher) Fetch(ctx context.Context, url string) (image.Image, error) {
	if cached, ok := f.cache.Get(url); ok {
		return cached.(image.Image), nil
	}

	var data []byte
	if strings.HasPrefix(url, "data:") {
		decoded, err := utils.DecodeDataURI(url)
		if err != nil {
			return nil, err
		}
		data = decoded
	} else {
		resp, err := f.client.R().SetContext(ctx).Get(url)
		if err != nil {
			return nil, fmt.Errorf("image fetch failed: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("image fetch returned %d for %s", resp.StatusCode(), url)
		}
		data = resp.Body()
	}

	img, err := utils.DecodeImage(data)
	if err != nil {
		return nil, err
	}
	f.cache.Set(url, img, gocache.DefaultExpiration)
	return img, nil
}

// Prefetch warms the cache concurrently. Failures are logged, not returned;
// the composer deals with missing images per slot.
func (f *Fetcher) Prefetch(ctx context.Context, urls []string) {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for _, url := range urls {
		if url == "" {
			continue
		}
		url := url
		g.Go(func() error {
			if _, err := f.Fetch(ctx, url); err != nil {
				log.Printf("⚠️ Prefetch failed for %s: %v", url, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}
