package analytics

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"
)

// Storage records clarified tickets and user feedback, and serves the
// aggregate views built from them.
type Storage struct {
	db *sql.DB
}

func NewStorage(db *sql.DB) *Storage {
	return &Storage{db: db}
}

// Ticket is one processed clarification, stored for analytics and future
// model training.
type Ticket struct {
	Install         string
	Title           string
	Description     string
	IssueType       string
	Priority        string
	ClarifiedOutput any
	ProcessingTime  float64
}

// Feedback is an upvote or downvote on a clarification.
type Feedback struct {
	Install         string
	TicketTitle     string
	TicketDesc      string
	ClarifiedOutput any
	FeedbackType    string
	Comment         string
}

// InsertTicket stores a processed ticket. Failures are logged and swallowed:
// analytics must never fail a clarification that already succeeded.
func (s *Storage) InsertTicket(ctx context.Context, t Ticket) {
	output, err := json.Marshal(t.ClarifiedOutput)
	if err != nil {
		log.Error().Err(err).Msg("failed to encode clarified output")
		return
	}

	install := t.Install
	if install == "" {
		install = "unknown"
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tickets
			(install, ticket_title, ticket_description, issue_type, priority, clarified_output, processing_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		install, t.Title, t.Description, t.IssueType, t.Priority, output, t.ProcessingTime)
	if err != nil {
		log.Error().Err(err).Str("install", install).Msg("failed to store ticket")
	}
}

// InsertFeedback stores one feedback entry.
func (s *Storage) InsertFeedback(ctx context.Context, f Feedback) error {
	output, err := json.Marshal(f.ClarifiedOutput)
	if err != nil {
		return fmt.Errorf("encode clarified output: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback
			(install, ticket_title, ticket_description, clarified_output, feedback_type, comment)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		f.Install, f.TicketTitle, f.TicketDesc, output, f.FeedbackType, f.Comment)
	if err != nil {
		return fmt.Errorf("store feedback: %w", err)
	}

	log.Info().Str("install", f.Install).Str("type", f.FeedbackType).Msg("feedback stored")
	return nil
}

// TicketTypeCount is one row of the issue-type breakdown.
type TicketTypeCount struct {
	IssueType string `json:"issue_type"`
	Count     int    `json:"count"`
}

// InstallStats is the 30-day activity summary for one install.
type InstallStats struct {
	TotalTickets      int               `json:"totalTickets"`
	AvgProcessingTime float64           `json:"avgProcessingTime"`
	ActiveDays        int               `json:"activeDays"`
	TicketTypes       []TicketTypeCount `json:"ticketTypes"`
}

// StatsForInstall aggregates the last 30 days of tickets for one install.
func (s *Storage) StatsForInstall(ctx context.Context, install string) (*InstallStats, error) {
	stats := &InstallStats{TicketTypes: []TicketTypeCount{}}

	var avg sql.NullFloat64
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			AVG(processing_time),
			COUNT(DISTINCT DATE(created_at))
		FROM tickets
		WHERE install = $1
		AND created_at > NOW() - INTERVAL '30 days'`, install).
		Scan(&stats.TotalTickets, &avg, &stats.ActiveDays)
	if err != nil {
		return nil, fmt.Errorf("ticket stats: %w", err)
	}
	if avg.Valid {
		stats.AvgProcessingTime = avg.Float64
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_type, COUNT(*)
		FROM tickets
		WHERE install = $1
		AND created_at > NOW() - INTERVAL '30 days'
		GROUP BY issue_type`, install)
	if err != nil {
		return nil, fmt.Errorf("ticket type breakdown: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var tc TicketTypeCount
		var issueType sql.NullString
		if err := rows.Scan(&issueType, &tc.Count); err != nil {
			return nil, fmt.Errorf("scan ticket type: %w", err)
		}
		tc.IssueType = issueType.String
		stats.TicketTypes = append(stats.TicketTypes, tc)
	}
	return stats, rows.Err()
}

// FeedbackCount is the 30-day tally for one feedback type.
type FeedbackCount struct {
	FeedbackType   string `json:"feedback_type"`
	Count          int    `json:"count"`
	UniqueInstalls int    `json:"unique_installs"`
}

// FeedbackStats returns the last 30 days of feedback grouped by type, for
// monitoring model quality.
func (s *Storage) FeedbackStats(ctx context.Context) ([]FeedbackCount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT
			feedback_type,
			COUNT(*),
			COUNT(DISTINCT install)
		FROM feedback
		WHERE created_at > NOW() - INTERVAL '30 days'
		GROUP BY feedback_type`)
	if err != nil {
		return nil, fmt.Errorf("feedback stats: %w", err)
	}
	defer rows.Close()

	counts := []FeedbackCount{}
	for rows.Next() {
		var fc FeedbackCount
		if err := rows.Scan(&fc.FeedbackType, &fc.Count, &fc.UniqueInstalls); err != nil {
			return nil, fmt.Errorf("scan feedback count: %w", err)
		}
		counts = append(counts, fc)
	}
	return counts, rows.Err()
}
