package gateway

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// scheduleParser accepts five-field expressions, an optional leading seconds field, and
// descriptors such as "@every 10m" or "@hourly".
var scheduleParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// newAnimationCron builds a cron that calls trigger on every tick of expr. It returns nil
// when expr is empty.
func newAnimationCron(expr string, timezone string, trigger func(), log *slog.Logger) (*cron.Cron, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return nil, nil
	}

	loc := time.Local
	if tz := strings.TrimSpace(timezone); tz != "" {
		loaded, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load schedule timezone %q: %w", tz, err)
		}
		loc = loaded
	}

	c := cron.New(cron.WithParser(scheduleParser), cron.WithLocation(loc))
	if _, err := c.AddFunc(expr, trigger); err != nil {
		return nil, fmt.Errorf("parse schedule.animation %q: %w", expr, err)
	}

	log.Info("Animation schedule configured", "expr", expr, "tz", loc.String())
	return c, nil
}
