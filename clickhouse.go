package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/url"
	"time"

	_ "github.com/ClickHouse/clickhouse-go/v2"
)

const evaluationsDDL = `
CREATE TABLE IF NOT EXISTS ai_evaluations (
    issue_id UInt64,
    project_id UInt64,
    project_identifier String,
    evaluated_at DateTime,
    issue_created_at DateTime,
    issue_closed_at DateTime,
    resolution_time_seconds Int64,
    subject String,
    description String,
    author String,
    tracker String,
    status String,
    priority String,
    issue_type String,
    class_id String,
    evaluation_model String,
    solution_quality UInt8,
    adherence_to_solution UInt8,
    operator_effort UInt8,
    automation_potential UInt8,
    resolution_efficiency UInt8,
    overall_score Float64,
    solution_quality_notes String,
    adherence_notes String,
    operator_effort_notes String,
    automation_recommendations String,
    efficiency_notes String,
    summary String,
    improvement_priority String,
    automation_candidate UInt8,
    requires_attention UInt8,
    resolve_method String,
    resolve_by String,
    alarming_state String,
    raw_response String
) ENGINE = MergeTree()
ORDER BY (project_identifier, evaluated_at, issue_id)
`

// InitClickHouse opens the analytics store and verifies connectivity.
// When table bootstrap is enabled the evaluations table is created up front.
func InitClickHouse(cfg Config) (*sql.DB, error) {
	dsn := fmt.Sprintf("clickhouse://%s:%s@%s/%s",
		url.QueryEscape(cfg.ClickHouseUser),
		url.QueryEscape(cfg.ClickHousePassword),
		cfg.ClickHouseAddr,
		cfg.ClickHouseDatabase,
	)

	db, err := sql.Open("clickhouse", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening clickhouse: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	if cfg.ClickHouseCreateTable {
		if _, err := db.Exec(evaluationsDDL); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating ai_evaluations table: %w", err)
		}
		log.Printf("clickhouse table ai_evaluations ready database=%s", cfg.ClickHouseDatabase)
	}

	log.Printf("clickhouse connected addr=%s database=%s", cfg.ClickHouseAddr, cfg.ClickHouseDatabase)
	return db, nil
}

// StoreEvaluation inserts one evaluation row. Returns false on failure so
// the caller can report partial persistence without aborting the response.
func StoreEvaluation(ctx context.Context, db *sql.DB, eval Evaluation, req EvaluationRequest) bool {
	metrics := eval.Metrics
	flag := func(b bool) uint8 {
		if b {
			return 1
		}
		return 0
	}

	_, err := db.ExecContext(ctx, `
        INSERT INTO ai_evaluations (
            issue_id, project_id, project_identifier,
            evaluated_at, issue_created_at, issue_closed_at, resolution_time_seconds,
            subject, description, author, tracker, status, priority, issue_type, class_id,
            evaluation_model,
            solution_quality, adherence_to_solution, operator_effort, automation_potential, resolution_efficiency,
            overall_score,
            solution_quality_notes, adherence_notes, operator_effort_notes, automation_recommendations, efficiency_notes,
            summary, improvement_priority,
            automation_candidate, requires_attention,
            resolve_method, resolve_by, alarming_state, raw_response
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		eval.IssueID,
		req.ProjectID,
		req.ProjectIdentifier,
		clickhouseTime(eval.EvaluatedAt),
		clickhouseTimestamp(req.CreatedOn),
		clickhouseTimestamp(req.UpdatedOn),
		resolutionSeconds(req),
		truncate(req.Subject, 500),
		truncate(req.Description, 2000),
		req.Author,
		req.Tracker,
		req.Status,
		req.Priority,
		req.IssueType,
		req.ClassID,
		eval.Model,
		metrics.SolutionQuality,
		metrics.AdherenceToSolution,
		metrics.OperatorEffort,
		metrics.AutomationPotential,
		metrics.ResolutionEfficiency,
		metrics.OverallScore(),
		truncate(eval.Analysis.SolutionQualityNotes, 1000),
		truncate(eval.Analysis.AdherenceNotes, 1000),
		truncate(eval.Analysis.OperatorEffortNotes, 1000),
		truncate(eval.Analysis.AutomationRecommendations, 2000),
		truncate(eval.Analysis.EfficiencyNotes, 1000),
		truncate(eval.Summary, 2000),
		eval.ImprovementPriority,
		flag(metrics.AutomationCandidate()),
		flag(metrics.RequiresAttention()),
		req.ResolveMethod,
		req.ResolveBy,
		req.AlarmingState.String(),
		truncate(eval.RawResponse, 5000),
	)
	if err != nil {
		log.Printf("clickhouse store failed issue=%d err=%v", eval.IssueID, err)
		return false
	}
	log.Printf("clickhouse store ok issue=%d overall=%.1f", eval.IssueID, metrics.OverallScore())
	return true
}

type AutomationCandidate struct {
	IssueID                   int64  `json:"issue_id"`
	ProjectIdentifier         string `json:"project_identifier"`
	Subject                   string `json:"subject"`
	AutomationPotential       int    `json:"automation_potential"`
	AutomationRecommendations string `json:"automation_recommendations"`
	EvaluatedAt               string `json:"evaluated_at"`
}

// GetAutomationCandidates lists the highest-potential evaluations, score 8+.
func GetAutomationCandidates(ctx context.Context, db *sql.DB, limit int) ([]AutomationCandidate, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
        SELECT issue_id, project_identifier, subject, automation_potential, automation_recommendations, evaluated_at
        FROM ai_evaluations
        WHERE automation_potential >= 8
        ORDER BY automation_potential DESC, evaluated_at DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("querying automation candidates: %w", err)
	}
	defer rows.Close()

	var candidates []AutomationCandidate
	for rows.Next() {
		var c AutomationCandidate
		var evaluatedAt time.Time
		if err := rows.Scan(&c.IssueID, &c.ProjectIdentifier, &c.Subject, &c.AutomationPotential, &c.AutomationRecommendations, &evaluatedAt); err != nil {
			return nil, fmt.Errorf("scanning automation candidate: %w", err)
		}
		c.EvaluatedAt = evaluatedAt.UTC().Format("2006-01-02 15:04:05")
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

type QualityTrend struct {
	Week              string  `json:"week"`
	ProjectIdentifier string  `json:"project_identifier"`
	AvgQuality        float64 `json:"avg_quality"`
	AvgAutomation     float64 `json:"avg_automation"`
	TotalIssues       int64   `json:"total_issues"`
}

// GetQualityTrends aggregates weekly quality averages over the trailing
// window, optionally filtered by project.
func GetQualityTrends(ctx context.Context, db *sql.DB, project string, days int) ([]QualityTrend, error) {
	if days <= 0 {
		days = 30
	}
	cutoff := time.Now().UTC().AddDate(0, 0, -days)

	query := `
        SELECT toStartOfWeek(evaluated_at) AS week, project_identifier,
               avg(solution_quality) AS avg_quality,
               avg(automation_potential) AS avg_automation,
               count() AS total_issues
        FROM ai_evaluations
        WHERE evaluated_at >= ?`
	args := []any{cutoff}
	if project != "" {
		query += ` AND project_identifier = ?`
		args = append(args, project)
	}
	query += `
        GROUP BY week, project_identifier
        ORDER BY week DESC, project_identifier`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying quality trends: %w", err)
	}
	defer rows.Close()

	var trends []QualityTrend
	for rows.Next() {
		var t QualityTrend
		var week time.Time
		if err := rows.Scan(&week, &t.ProjectIdentifier, &t.AvgQuality, &t.AvgAutomation, &t.TotalIssues); err != nil {
			return nil, fmt.Errorf("scanning quality trend: %w", err)
		}
		t.Week = week.UTC().Format("2006-01-02")
		trends = append(trends, t)
	}
	return trends, rows.Err()
}

// resolutionSeconds is the whole-second span from creation to close.
// Unparsable or missing timestamps yield 0 with a logged warning.
func resolutionSeconds(req EvaluationRequest) int64 {
	if req.CreatedOn == "" || req.UpdatedOn == "" {
		return 0
	}
	created, err := parseIssueTime(req.CreatedOn)
	if err != nil {
		log.Printf("resolution time skipped issue=%d err=%v", req.IssueID, err)
		return 0
	}
	closed, err := parseIssueTime(req.UpdatedOn)
	if err != nil {
		log.Printf("resolution time skipped issue=%d err=%v", req.IssueID, err)
		return 0
	}
	return int64(closed.Sub(created).Seconds())
}

func clickhouseTime(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// clickhouseTimestamp reformats an event timestamp for the DateTime column,
// defaulting to the epoch when absent or unparsable.
func clickhouseTimestamp(s string) string {
	if s == "" {
		return "1970-01-01 00:00:00"
	}
	t, err := parseIssueTime(s)
	if err != nil {
		return "1970-01-01 00:00:00"
	}
	return clickhouseTime(t)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
