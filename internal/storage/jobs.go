package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/ziad784/whatsapp-bot2/internal/models"
)

// RecordJob appends one terminal job record to the ledger.
func RecordJob(ctx context.Context, db *sql.DB, job *models.PrintJob) error {
	if db == nil || job == nil {
		return nil
	}
	_, err := db.ExecContext(ctx,
		`INSERT INTO print_jobs
			(id, chat_id, file_name, pages, copies, color, size, total_cost,
			 payment_method, payment_reference, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ChatID, job.FileName, job.Pages, job.Copies, job.Color,
		string(job.Size), job.TotalCost, string(job.PaymentMethod),
		job.PaymentReference, string(job.Status), job.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("record print job: %w", err)
	}
	return nil
}

// RecentJobs lists the most recent ledger entries, newest first.
func RecentJobs(ctx context.Context, db *sql.DB, limit int) ([]*models.PrintJob, error) {
	if db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx,
		`SELECT id, chat_id, file_name, pages, copies, color, size, total_cost,
		        payment_method, payment_reference, status, created_at
		 FROM print_jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list print jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*models.PrintJob
	for rows.Next() {
		var job models.PrintJob
		var size, method string
		var ref sql.NullString
		if err := rows.Scan(&job.ID, &job.ChatID, &job.FileName, &job.Pages,
			&job.Copies, &job.Color, &size, &job.TotalCost, &method, &ref,
			&job.Status, &job.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan print job: %w", err)
		}
		job.Size = models.PaperSize(size)
		job.PaymentMethod = models.PaymentMethod(method)
		job.PaymentReference = ref.String
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}
