package common

import (
	"fmt"
	"time"

	kflag "github.com/opst/savethat/pkg/commandline/flag"
	"github.com/youta-t/flarc"
)

// Window resolves --before, --after and --last into inclusive time bounds.
//
// --last N means "after now - N", so it cannot be used with --after.
func Window(before, after *kflag.OptionalLooseRFC3339, last *kflag.Last, now time.Time) (*time.Time, *time.Time, error) {
	b := before.Time()
	a := after.Time()
	if since := last.Since(now); since != nil {
		if a != nil {
			return nil, nil, fmt.Errorf("%w: --last and --after cannot be used together", flarc.ErrUsage)
		}
		a = since
	}
	if a != nil && b != nil && b.Before(*a) {
		return nil, nil, fmt.Errorf("%w: --before (%s) is earlier than --after (%s)", flarc.ErrUsage, b, a)
	}
	return b, a, nil
}
