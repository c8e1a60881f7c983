package voice

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"

	"github.com/Superstone-han/supertonic-v2/internal/inference"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"
)

var validID = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

// Cache loads each voice style once and serves it to every later request.
// Concurrent first requests for the same voice share a single load. Failed
// loads are not remembered.
type Cache struct {
	provider Provider
	log      *slog.Logger
	group    singleflight.Group
	mu       sync.RWMutex
	styles   map[string]Style
	loads    metric.Int64Counter
}

func NewCache(provider Provider, log *slog.Logger) *Cache {
	c := &Cache{
		provider: provider,
		log:      log.With(slog.String("component", "voice-cache")),
		styles:   make(map[string]Style),
	}
	if err := c.initMetrics(); err != nil {
		c.log.Warn("failed to initialize metrics", slog.String("error", err.Error()))
	}
	return c
}

func (c *Cache) initMetrics() error {
	meter := otel.Meter("github.com/Superstone-han/supertonic-v2/voice")
	gauge, err := meter.Int64ObservableGauge("supertonic.voice.cached", metric.WithDescription("Voice styles held in memory"))
	if err != nil {
		return err
	}
	loads, err := meter.Int64Counter("supertonic.voice.loads", metric.WithDescription("Voice style loads from the provider"))
	if err != nil {
		return err
	}
	c.loads = loads
	_, err = meter.RegisterCallback(func(ctx context.Context, obs metric.Observer) error {
		obs.ObserveInt64(gauge, int64(c.Len()))
		return nil
	}, gauge)
	return err
}

// Get returns the style for id, loading it on first use.
func (c *Cache) Get(ctx context.Context, id string) (Style, error) {
	if !validID.MatchString(id) {
		return Style{}, fmt.Errorf("%w: voice id %q", inference.ErrInvalidInput, id)
	}
	c.mu.RLock()
	style, ok := c.styles[id]
	c.mu.RUnlock()
	if ok {
		return style, nil
	}

	ch := c.group.DoChan(id, func() (any, error) {
		return c.load(context.WithoutCancel(ctx), id)
	})
	select {
	case <-ctx.Done():
		return Style{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Style{}, res.Err
		}
		return res.Val.(Style), nil
	}
}

func (c *Cache) load(ctx context.Context, id string) (Style, error) {
	c.mu.RLock()
	style, ok := c.styles[id]
	c.mu.RUnlock()
	if ok {
		return style, nil
	}
	if c.loads != nil {
		c.loads.Add(ctx, 1)
	}
	data, err := c.provider.Fetch(ctx, id)
	if err != nil {
		return Style{}, styleError(id, err)
	}
	style, err = ParseStyle(id, data)
	if err != nil {
		return Style{}, err
	}
	c.mu.Lock()
	c.styles[id] = style
	c.mu.Unlock()
	c.log.Info("voice style loaded", slog.String("voice", id), slog.Any("encoding_shape", style.Encoding.Shape))
	return style, nil
}

// Len reports how many styles are cached.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.styles)
}
