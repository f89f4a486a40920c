package analytics

import (
	"context"
	"sort"
	"time"

	"spiceguild/internal/storage"
)

const recentLimit = 20

type Source interface {
	ListAuditLogs(ctx context.Context, guildID string, since time.Time) ([]storage.AuditLog, error)
}

type Service struct {
	source Source
}

func New(source Source) *Service {
	return &Service{source: source}
}

type Count struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

type Entry struct {
	UserID    string    `json:"user_id"`
	Level     string    `json:"level"`
	Event     string    `json:"event"`
	Details   string    `json:"details"`
	CreatedAt time.Time `json:"created_at"`
}

// Report summarises the audit trail of a guild since a point in time.
type Report struct {
	Since    time.Time      `json:"since"`
	Total    int            `json:"total"`
	ByLevel  map[string]int `json:"by_level"`
	ByEvent  []Count        `json:"by_event"`
	TopUsers []Count        `json:"top_users"`
	Recent   []Entry        `json:"recent"`
}

func (s *Service) Report(ctx context.Context, guildID string, since time.Time) (Report, error) {
	logs, err := s.source.ListAuditLogs(ctx, guildID, since)
	if err != nil {
		return Report{}, err
	}

	report := Report{Since: since, ByLevel: make(map[string]int)}
	events := make(map[string]int)
	users := make(map[string]int)
	for _, log := range logs {
		report.Total++
		report.ByLevel[log.Level]++
		events[log.Event]++
		if log.UserID != "" {
			users[log.UserID]++
		}
		// Logs arrive newest first.
		if len(report.Recent) < recentLimit {
			report.Recent = append(report.Recent, Entry{
				UserID:    log.UserID,
				Level:     log.Level,
				Event:     log.Event,
				Details:   log.Details,
				CreatedAt: log.CreatedAt,
			})
		}
	}
	report.ByEvent = ranked(events, 0)
	report.TopUsers = ranked(users, 5)
	return report, nil
}

func ranked(counts map[string]int, limit int) []Count {
	out := make([]Count, 0, len(counts))
	for key, count := range counts {
		out = append(out, Count{Key: key, Count: count})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Key < out[j].Key
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
