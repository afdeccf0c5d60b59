package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"
)

// ContextOptions controls which context fetches run for one evaluation.
type ContextOptions struct {
	IncludeKnowledge   bool
	IncludeZabbix      bool
	CorrelationMinutes int
}

func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		IncludeKnowledge:   true,
		IncludeZabbix:      true,
		CorrelationMinutes: 60,
	}
}

type redmineJournal struct {
	Notes     string `json:"notes"`
	CreatedOn string `json:"created_on"`
	User      struct {
		Name string `json:"name"`
	} `json:"user"`
}

type redmineIssueDetail struct {
	Journals []redmineJournal `json:"journals"`
}

// BuildIssueContext assembles the context bundle for one issue. Each fetch
// is independently guarded: a failure is recorded in the bundle's error list
// and leaves that field nil, but never aborts the other fetch. Evaluation
// proceeds with whatever context succeeded.
func BuildIssueContext(ctx context.Context, mcp *MCPClient, req EvaluationRequest, opts ContextOptions) IssueContext {
	bundle := IssueContext{}

	if opts.CorrelationMinutes <= 0 {
		opts.CorrelationMinutes = 60
	}

	if opts.IncludeKnowledge && req.ClassID != "" {
		result := mcp.GetKnowledge(ctx, req.ClassID, req.ProjectIdentifier)
		var knowledge KnowledgeSummary
		if err := result.Decode(&knowledge); err != nil {
			log.Printf("context knowledge fetch failed issue=%d class_id=%s err=%v", req.IssueID, req.ClassID, err)
			bundle.Errors = append(bundle.Errors, fmt.Sprintf("Knowledge fetch failed: %v", err))
		} else {
			bundle.Knowledge = &knowledge
		}
	}

	if opts.IncludeZabbix && req.CreatedOn != "" {
		created, err := parseIssueTime(req.CreatedOn)
		if err != nil {
			log.Printf("context zabbix window skipped issue=%d err=%v", req.IssueID, err)
			bundle.Errors = append(bundle.Errors, fmt.Sprintf("Zabbix fetch failed: %v", err))
		} else {
			window := time.Duration(opts.CorrelationMinutes) * time.Minute
			timeFrom := created.Add(-window).Format(time.RFC3339)
			timeTo := created.Add(window).Format(time.RFC3339)

			result := mcp.SearchZabbixAlerts(ctx, "", timeFrom, timeTo, 0)
			var alerts ZabbixAlertSet
			if err := result.Decode(&alerts); err != nil {
				log.Printf("context zabbix fetch failed issue=%d err=%v", req.IssueID, err)
				bundle.Errors = append(bundle.Errors, fmt.Sprintf("Zabbix fetch failed: %v", err))
			} else {
				if alerts.TimeWindow == "" {
					alerts.TimeWindow = fmt.Sprintf("%s - %s", timeFrom, timeTo)
				}
				bundle.Zabbix = &alerts
			}
		}
	}

	return bundle
}

// ResolutionNotes concatenates every timestamped operator note from the
// issue journals. It never returns an error: fetch failures come back as a
// describing string so the prompt still has something to embed.
func ResolutionNotes(ctx context.Context, mcp *MCPClient, issueID int64) string {
	result := mcp.GetRedmineIssue(ctx, issueID)
	var detail redmineIssueDetail
	if err := result.Decode(&detail); err != nil {
		log.Printf("resolution notes fetch failed issue=%d err=%v", issueID, err)
		return fmt.Sprintf("Error fetching notes: %v", err)
	}

	var notes []string
	for _, journal := range detail.Journals {
		if journal.Notes == "" {
			continue
		}
		author := journal.User.Name
		if author == "" {
			author = "Unknown"
		}
		notes = append(notes, fmt.Sprintf("[%s] %s:\n%s", journal.CreatedOn, author, journal.Notes))
	}
	if len(notes) == 0 {
		return "No resolution notes available"
	}
	return strings.Join(notes, "\n\n---\n\n")
}

// AIAnalysis returns the first journal note that looks like the automated
// agent's analysis, or empty when none exists or the fetch failed.
func AIAnalysis(ctx context.Context, mcp *MCPClient, issueID int64) string {
	result := mcp.GetRedmineIssue(ctx, issueID)
	var detail redmineIssueDetail
	if err := result.Decode(&detail); err != nil {
		log.Printf("ai analysis fetch failed issue=%d err=%v", issueID, err)
		return ""
	}

	for _, journal := range detail.Journals {
		if strings.Contains(journal.Notes, "AI Analysis") ||
			strings.Contains(strings.ToLower(journal.User.Name), "mnoc-ai") {
			return journal.Notes
		}
	}
	return ""
}

// parseIssueTime parses the event source's RFC3339 timestamps ("Z" suffix
// or numeric offset).
func parseIssueTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing timestamp %q: %w", s, err)
	}
	return t, nil
}
