package renderer

import (
	"context"
	"fmt"
	"sync"

	"github.com/vishen/go-chromecast/application"
	"github.com/vishen/go-chromecast/dns"
)

// castControl keeps one persistent CASTV2 application connection, the
// moral equivalent of pychromecast's socket client: every volume read
// refreshes the receiver status over that connection.
type castControl struct {
	mu  sync.Mutex
	app *application.Application
}

// discoverCast is not bounded by CommandTimeout, only by ctx: mDNS answers
// arrive on the multicast group's schedule, not ours.
func discoverCast(ctx context.Context, name string) (*castControl, error) {
	entries, err := dns.DiscoverCastDNSEntries(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("mdns discovery: %w", err)
	}

	for entry := range entries {
		if entry.DeviceName != name {
			continue
		}
		app := application.NewApplication()
		if err := app.Start(entry.AddrV4.String(), entry.Port); err != nil {
			return nil, fmt.Errorf("connect %s:%d: %w", entry.AddrV4, entry.Port, err)
		}
		return &castControl{app: app}, nil
	}
	return nil, fmt.Errorf("no mdns entry for %q", name)
}

func (c *castControl) GetVolume(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var level float32
	err := callWithTimeout(ctx, func() error {
		if err := c.app.Update(); err != nil {
			return err
		}
		_, _, volume := c.app.Status()
		if volume == nil {
			return fmt.Errorf("no volume in receiver status")
		}
		level = volume.Level
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(level*100 + 0.5), nil
}

func (c *castControl) SetVolume(ctx context.Context, volume int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return callWithTimeout(ctx, func() error {
		return c.app.SetVolume(float32(volume) / 100)
	})
}

func (c *castControl) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app.Close(false)
}
