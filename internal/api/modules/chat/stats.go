package chat_module

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethanbaker/chatbot/internal/chat"
	"github.com/robfig/cron/v3"
)

// DefaultStatsSchedule is how often the number of live sessions is logged
const DefaultStatsSchedule = "@every 10m"

// StatsReporter periodically logs how many sessions are live
type StatsReporter struct {
	orchestrator *chat.Orchestrator
	cron         *cron.Cron
}

// StartStatsReporter schedules the reporter. An empty schedule disables it and returns nil
func StartStatsReporter(schedule string, orchestrator *chat.Orchestrator) (*StatsReporter, error) {
	if schedule == "" {
		return nil, nil
	}

	reporter := &StatsReporter{
		orchestrator: orchestrator,
		cron:         cron.New(),
	}

	if _, err := reporter.cron.AddFunc(schedule, func() { reporter.Report() }); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}

	reporter.cron.Start()
	return reporter, nil
}

// Report logs the current session count and returns it
func (r *StatsReporter) Report() int {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	count, err := r.orchestrator.SessionCount(ctx)
	if err != nil {
		log.Printf("[CHAT]: Failed to count sessions: %v", err)
		return 0
	}

	log.Printf("[CHAT]: %d live sessions", count)
	return count
}

// Stop halts the schedule. Safe to call on a nil reporter
func (r *StatsReporter) Stop() {
	if r == nil {
		return
	}
	<-r.cron.Stop().Done()
}
