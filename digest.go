package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/slack-go/slack"
)

// StartDigestScheduler posts a daily evaluation summary to Slack on the
// configured cron schedule. It blocks until ctx is cancelled; callers run it
// in its own goroutine. A failed digest run is logged and skipped.
func StartDigestScheduler(ctx context.Context, cfg Config, db *sql.DB) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(cfg.DigestSchedule)
	if err != nil {
		log.Fatalf("invalid digest_schedule '%s': %v", cfg.DigestSchedule, err)
	}

	api := slack.New(cfg.SlackBotToken)
	log.Printf("digest scheduler started schedule=%q channel=%s", cfg.DigestSchedule, cfg.DigestChannelID)

	for {
		next := sched.Next(time.Now())
		select {
		case <-ctx.Done():
			log.Printf("digest scheduler stopped")
			return
		case <-time.After(time.Until(next)):
		}

		if err := runDigest(ctx, api, cfg.DigestChannelID, db); err != nil {
			log.Printf("digest run failed: %v", err)
		}
	}
}

func runDigest(ctx context.Context, api *slack.Client, channelID string, db *sql.DB) error {
	trends, err := GetQualityTrends(ctx, db, "", 1)
	if err != nil {
		return fmt.Errorf("fetching daily trends: %w", err)
	}
	candidates, err := GetAutomationCandidates(ctx, db, 5)
	if err != nil {
		return fmt.Errorf("fetching automation candidates: %w", err)
	}

	msg := buildDigestMessage(trends, candidates)
	if _, _, err := api.PostMessage(channelID, slack.MsgOptionText(msg, false)); err != nil {
		return fmt.Errorf("posting digest to slack: %w", err)
	}
	log.Printf("digest posted channel=%s", channelID)
	return nil
}

func buildDigestMessage(trends []QualityTrend, candidates []AutomationCandidate) string {
	var total int64
	for _, t := range trends {
		total += t.TotalIssues
	}

	var b strings.Builder
	b.WriteString("*Daily Resolution Quality Digest*\n")
	fmt.Fprintf(&b, "Evaluations in the last day: %d\n", total)

	if len(candidates) == 0 {
		b.WriteString("No automation candidates (score 8+) on record.\n")
		return b.String()
	}

	b.WriteString("\n*Top automation candidates:*\n")
	for _, c := range candidates {
		fmt.Fprintf(&b, "• #%d [%s] %s (potential %d/10)\n", c.IssueID, c.ProjectIdentifier, c.Subject, c.AutomationPotential)
	}
	return b.String()
}
