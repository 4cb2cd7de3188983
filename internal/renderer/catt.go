package renderer

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// cattControl shells out to the catt CLI per command. Slower than the
// persistent connection but survives environments where the CASTV2 port is
// filtered; selected only when the cast backend cannot connect.
type cattControl struct {
	device string
}

func discoverCatt(ctx context.Context, name string) (*cattControl, error) {
	c := &cattControl{device: name}
	// catt has no explicit connect; a status probe proves reachability.
	if _, err := c.status(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *cattControl) status(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	out, err := exec.CommandContext(ctx, "catt", "-d", c.device, "status").Output()
	if err != nil {
		return "", fmt.Errorf("%w: catt status: %v", ErrUnreachable, err)
	}
	return string(out), nil
}

func (c *cattControl) GetVolume(ctx context.Context) (int, error) {
	out, err := c.status(ctx)
	if err != nil {
		return 0, err
	}
	for _, line := range strings.Split(out, "\n") {
		if rest, ok := strings.CutPrefix(line, "Volume:"); ok {
			v, err := strconv.Atoi(strings.TrimSpace(rest))
			if err != nil {
				return 0, fmt.Errorf("%w: parse volume %q: %v", ErrUnreachable, rest, err)
			}
			return v, nil
		}
	}
	return 0, fmt.Errorf("%w: no volume in catt status", ErrUnreachable)
}

func (c *cattControl) SetVolume(ctx context.Context, volume int) error {
	ctx, cancel := context.WithTimeout(ctx, CommandTimeout)
	defer cancel()

	if err := exec.CommandContext(ctx, "catt", "-d", c.device, "volume", strconv.Itoa(volume)).Run(); err != nil {
		return fmt.Errorf("%w: catt volume: %v", ErrUnreachable, err)
	}
	return nil
}

func (c *cattControl) Close() error { return nil }
