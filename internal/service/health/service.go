// Package health reports whether the backend can reach what it depends on.
package health

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Check is one named dependency probe.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Condition is the outcome of one probe.
type Condition struct {
	OK        bool      `json:"ok"`
	Timestamp time.Time `json:"timestamp"`
	Message   *string   `json:"message"`
}

// Report is serialised with one check_<name> key per probe.
type Report struct {
	Version    string
	Conditions map[string]Condition
}

// Healthy reports whether every probe passed.
func (r Report) Healthy() bool {
	for _, c := range r.Conditions {
		if !c.OK {
			return false
		}
	}
	return true
}

func (r Report) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Conditions)+1)
	out["version"] = r.Version
	for name, c := range r.Conditions {
		out["check_"+name] = c
	}
	return json.Marshal(out)
}

type Service interface {
	Check(ctx context.Context) Report
}

type service struct {
	version string
	checks  []Check
	timeout time.Duration
	logger  *zap.Logger
	now     func() time.Time
}

// NewService runs checks concurrently, each bounded by timeout.
func NewService(version string, timeout time.Duration, logger *zap.Logger, checks ...Check) Service {
	sorted := append([]Check(nil), checks...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })
	return &service{
		version: version,
		checks:  sorted,
		timeout: timeout,
		logger:  logger.Named("health"),
		now:     time.Now,
	}
}

func (s *service) Check(ctx context.Context) Report {
	results := make([]Condition, len(s.checks))

	var g errgroup.Group
	for i, c := range s.checks {
		g.Go(func() error {
			results[i] = s.run(ctx, c)
			return nil
		})
	}
	_ = g.Wait()

	report := Report{Version: s.version, Conditions: make(map[string]Condition, len(s.checks))}
	for i, c := range s.checks {
		report.Conditions[c.Name] = results[i]
	}
	return report
}

func (s *service) run(ctx context.Context, c Check) (cond Condition) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			msg := "check panicked"
			s.logger.Error("Health check panicked", zap.String("check", c.Name), zap.Any("panic", r))
			cond = Condition{OK: false, Timestamp: s.now().UTC(), Message: &msg}
		}
	}()

	err := c.Probe(ctx)
	cond = Condition{OK: err == nil, Timestamp: s.now().UTC()}
	if err != nil {
		msg := err.Error()
		cond.Message = &msg
		s.logger.Warn("Health check failed", zap.String("check", c.Name), zap.Error(err))
	}
	return cond
}
