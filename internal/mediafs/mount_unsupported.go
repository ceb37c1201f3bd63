//go:build !linux

package mediafs

import (
	"context"
	"fmt"

	"github.com/snapetech/tribute/internal/mediacache"
)

// Serve is unavailable on non-Linux builds because mediafs depends on go-fuse.
func Serve(ctx context.Context, dir string, c *mediacache.Cache, allowOther bool) error {
	return fmt.Errorf("mediafs mount is only supported on linux builds")
}
