package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"orgchart/api/internal/directory"
	"orgchart/api/internal/export"
	"orgchart/api/internal/metrics"
	"orgchart/api/internal/orgchart"
	"orgchart/api/internal/session"
	"orgchart/api/internal/util"
)

var ErrChartNotFound = errors.New("chart not found")

// ChartStore persists chart state between requests and restarts.
type ChartStore interface {
	Save(ctx context.Context, chartID string, state orgchart.State) error
	Load(ctx context.Context, chartID string) (orgchart.State, error)
	Delete(ctx context.Context, chartID string) error
}

// Pinger is a dependency checked by the readiness endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ChartView is the payload returned for every chart operation.
type ChartView struct {
	ChartID string `json:"chartId"`
	orgchart.View
}

type Options struct {
	Policy orgchart.BatchPolicy
	// Charts is optional; without it charts live in memory only.
	Charts      ChartStore
	Exports     *export.Service
	IdleTimeout time.Duration
	Checks      map[string]Pinger
	Log         logrus.FieldLogger
}

type chartSession struct {
	ctrl     *orgchart.Controller
	lastUsed time.Time
}

// Service owns the chart sessions of all viewers.
type Service struct {
	dir         orgchart.Directory
	policy      orgchart.BatchPolicy
	charts      ChartStore
	exports     *export.Service
	idleTimeout time.Duration
	checks      map[string]Pinger
	log         logrus.FieldLogger
	now         func() time.Time

	mu       sync.Mutex
	sessions map[string]*chartSession
}

func New(dir orgchart.Directory, opts Options) *Service {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Policy == (orgchart.BatchPolicy{}) {
		opts.Policy = orgchart.DefaultBatchPolicy()
	}
	if opts.Exports == nil {
		opts.Exports = export.NewService(nil, nil)
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 30 * time.Minute
	}
	return &Service{
		dir:         dir,
		policy:      opts.Policy,
		charts:      opts.Charts,
		exports:     opts.Exports,
		idleTimeout: opts.IdleTimeout,
		checks:      opts.Checks,
		log:         opts.Log,
		now:         time.Now,
		sessions:    make(map[string]*chartSession),
	}
}

// CreateChart starts a chart rooted at the caller. The chart is kept even
// when loading fails so the client can retry with a reset.
func (s *Service) CreateChart(ctx context.Context) (ChartView, error) {
	chartID := util.NewID("chart")
	ctrl := orgchart.NewController(s.dir, s.policy, s.log.WithField("chart_id", chartID))
	s.register(chartID, ctrl)

	err := ctrl.Initialize(ctx)
	s.persist(ctx, chartID, ctrl)
	return ChartView{ChartID: chartID, View: ctrl.View()}, err
}

func (s *Service) View(ctx context.Context, chartID string) (ChartView, error) {
	ctrl, err := s.chart(ctx, chartID)
	if err != nil {
		return ChartView{}, err
	}
	return ChartView{ChartID: chartID, View: ctrl.View()}, nil
}

func (s *Service) DeleteChart(ctx context.Context, chartID string) error {
	if _, err := s.chart(ctx, chartID); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.sessions, chartID)
	metrics.ActiveCharts.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if s.charts != nil {
		if err := s.charts.Delete(ctx, chartID); err != nil {
			s.log.WithError(err).WithField("chart_id", chartID).Warn("app: delete persisted chart")
		}
	}
	return nil
}

// ResetChart re-roots the chart at the caller with a fresh store.
func (s *Service) ResetChart(ctx context.Context, chartID string) (ChartView, error) {
	return s.mutate(ctx, chartID, func(ctrl *orgchart.Controller) error {
		return ctrl.Initialize(ctx)
	})
}

func (s *Service) ClickNode(ctx context.Context, chartID, nodeID string) (ChartView, error) {
	return s.mutate(ctx, chartID, func(ctrl *orgchart.Controller) error {
		return ctrl.NodeClick(ctx, nodeID)
	})
}

func (s *Service) OpenNode(ctx context.Context, chartID, nodeID string) (ChartView, error) {
	return s.mutate(ctx, chartID, func(ctrl *orgchart.Controller) error {
		return ctrl.Open(ctx, nodeID)
	})
}

func (s *Service) ShowMore(ctx context.Context, chartID, nodeID string) (ChartView, error) {
	return s.mutate(ctx, chartID, func(ctrl *orgchart.Controller) error {
		return ctrl.ShowMore(nodeID)
	})
}

func (s *Service) ResetZoom(ctx context.Context, chartID string) (ChartView, error) {
	return s.mutate(ctx, chartID, func(ctrl *orgchart.Controller) error {
		ctrl.ResetZoom()
		return nil
	})
}

func (s *Service) Search(ctx context.Context, chartID, query string) ([]directory.Person, error) {
	ctrl, err := s.chart(ctx, chartID)
	if err != nil {
		return nil, err
	}
	return ctrl.Search(ctx, query)
}

func (s *Service) Export(ctx context.Context, chartID string, format export.Format) (*export.Result, error) {
	ctrl, err := s.chart(ctx, chartID)
	if err != nil {
		return nil, err
	}
	return s.exports.Export(ctx, ctrl.View().Tree, format)
}

// ExportAndUpload renders the chart and returns the object storage location.
func (s *Service) ExportAndUpload(ctx context.Context, chartID string, format export.Format) (*export.Result, string, error) {
	ctrl, err := s.chart(ctx, chartID)
	if err != nil {
		return nil, "", err
	}
	return s.exports.ExportAndUpload(ctx, chartID, ctrl.View().Tree, format)
}

// Ready pings every configured dependency and returns the failures by name.
func (s *Service) Ready(ctx context.Context) map[string]error {
	failures := map[string]error{}
	for name, check := range s.checks {
		if err := check.Ping(ctx); err != nil {
			failures[name] = err
		}
	}
	return failures
}

func (s *Service) CheckNames() []string {
	names := make([]string, 0, len(s.checks))
	for name := range s.checks {
		names = append(names, name)
	}
	return names
}

// EvictIdle drops in-memory charts unused for longer than the idle timeout.
// Persisted charts are restored on their next use.
func (s *Service) EvictIdle() int {
	cutoff := s.now().Add(-s.idleTimeout)
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, sess := range s.sessions {
		if sess.lastUsed.Before(cutoff) {
			delete(s.sessions, id)
			evicted++
		}
	}
	metrics.ActiveCharts.Set(float64(len(s.sessions)))
	return evicted
}

// RunJanitor evicts idle charts every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.EvictIdle(); n > 0 {
				s.log.WithField("evicted", n).Info("app: evicted idle charts")
			}
		}
	}
}

func (s *Service) ActiveCharts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Service) mutate(ctx context.Context, chartID string, fn func(*orgchart.Controller) error) (ChartView, error) {
	ctrl, err := s.chart(ctx, chartID)
	if err != nil {
		return ChartView{}, err
	}
	opErr := fn(ctrl)
	s.persist(ctx, chartID, ctrl)
	return ChartView{ChartID: chartID, View: ctrl.View()}, opErr
}

func (s *Service) register(chartID string, ctrl *orgchart.Controller) *orgchart.Controller {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.sessions[chartID]; ok {
		existing.lastUsed = s.now()
		return existing.ctrl
	}
	s.sessions[chartID] = &chartSession{ctrl: ctrl, lastUsed: s.now()}
	metrics.ActiveCharts.Set(float64(len(s.sessions)))
	return ctrl
}

// chart finds a chart in memory or restores it from the chart store.
func (s *Service) chart(ctx context.Context, chartID string) (*orgchart.Controller, error) {
	s.mu.Lock()
	sess, ok := s.sessions[chartID]
	if ok {
		sess.lastUsed = s.now()
	}
	s.mu.Unlock()
	if ok {
		return sess.ctrl, nil
	}

	if s.charts == nil {
		return nil, ErrChartNotFound
	}
	state, err := s.charts.Load(ctx, chartID)
	if errors.Is(err, session.ErrNotFound) {
		return nil, ErrChartNotFound
	}
	if err != nil {
		return nil, err
	}
	restored := orgchart.RestoreController(s.dir, s.policy, s.log.WithField("chart_id", chartID), state)
	return s.register(chartID, restored), nil
}

func (s *Service) persist(ctx context.Context, chartID string, ctrl *orgchart.Controller) {
	if s.charts == nil {
		return
	}
	// A cancelled request still records what it changed.
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.charts.Save(saveCtx, chartID, ctrl.State()); err != nil {
		s.log.WithError(err).WithField("chart_id", chartID).Warn("app: persist chart")
	}
}
