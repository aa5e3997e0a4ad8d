package service

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/crm-scheduling-engine/internal/models"
	"github.com/noah-isme/crm-scheduling-engine/pkg/config"
)

// RankMode selects the ordering applied to a conflict set for display.
type RankMode string

const (
	RankByPriority RankMode = "priority"
	RankByTimeline RankMode = "timeline"
	RankByImpact   RankMode = "impact"
)

// ClientDirectory resolves a client's priority tier. Unknown clients fall
// back to the configured default tier.
type ClientDirectory interface {
	PriorityTier(clientName string) (int, bool)
}

// InsightService computes per-conflict priority signals and orderings.
// Ranking never mutates its input, so the same result set can be re-sorted
// live without re-detection.
type InsightService struct {
	cfg       config.InsightConfig
	directory ClientDirectory
	logger    *zap.Logger
}

// NewInsightService constructs the ranker. Directory may be nil, in which
// case client tiers come from configuration alone.
func NewInsightService(cfg config.InsightConfig, directory ClientDirectory, logger *zap.Logger) *InsightService {
	if cfg.DefaultRate <= 0 {
		cfg.DefaultRate = 100
	}
	if cfg.DefaultTier <= 0 {
		cfg.DefaultTier = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InsightService{cfg: cfg, directory: directory, logger: logger}
}

// Rank returns a new slice ordered by the requested mode. Ties keep input
// order, so detection-order determinism carries through.
func (s *InsightService) Rank(result *models.ConflictResult, mode RankMode) []models.ConflictDetail {
	if result == nil || len(result.Conflicts) == 0 {
		return nil
	}

	ranked := make([]models.ConflictDetail, len(result.Conflicts))
	copy(ranked, result.Conflicts)

	switch mode {
	case RankByTimeline:
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].ConflictingEvent.StartDateTime.Before(ranked[j].ConflictingEvent.StartDateTime)
		})
	case RankByImpact:
		sort.SliceStable(ranked, func(i, j int) bool {
			return s.Impact(ranked[i]) > s.Impact(ranked[j])
		})
	default:
		sort.SliceStable(ranked, func(i, j int) bool {
			a, b := ranked[i], ranked[j]
			if a.Severity.Rank() != b.Severity.Rank() {
				return a.Severity.Rank() > b.Severity.Rank()
			}
			at, bt := s.clientTier(a.ConflictingEvent), s.clientTier(b.ConflictingEvent)
			if at != bt {
				return at > bt
			}
			return s.Impact(a) > s.Impact(b)
		})
	}

	return ranked
}

// Impact estimates the revenue at stake for a conflict: the conflicting
// event's duration priced by its service-type rate.
func (s *InsightService) Impact(detail models.ConflictDetail) float64 {
	event := detail.ConflictingEvent
	hours := event.End().Sub(event.StartDateTime).Hours()
	if hours <= 0 {
		return 0
	}
	return s.rate(event.ServiceType) * hours
}

func (s *InsightService) rate(serviceType string) float64 {
	if rate, ok := s.cfg.Rates[strings.ToLower(serviceType)]; ok {
		return rate
	}
	return s.cfg.DefaultRate
}

func (s *InsightService) clientTier(event models.Event) int {
	if event.ClientName == nil || *event.ClientName == "" {
		return s.cfg.DefaultTier
	}
	name := *event.ClientName
	if s.directory != nil {
		if tier, ok := s.directory.PriorityTier(name); ok {
			return tier
		}
	}
	if tier, ok := s.cfg.ClientTiers[name]; ok {
		return tier
	}
	return s.cfg.DefaultTier
}
