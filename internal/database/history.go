package database

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a row with the given ID does not exist.
var ErrNotFound = errors.New("not found")

// InsertExtraction logs an extraction attempt and returns its ID.
func (db *DB) InsertExtraction(url string, recordJSON, errorKind, errorMessage *string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO extractions (id, url, record_json, error_kind, error_message)
		VALUES (?, ?, ?, ?, ?)`,
		id, url, recordJSON, errorKind, errorMessage,
	)
	if err != nil {
		return "", fmt.Errorf("inserting extraction: %w", err)
	}
	return id, nil
}

// GetExtractions returns the most recent extractions first.
func (db *DB) GetExtractions(limit int) ([]Extraction, error) {
	rows, err := db.conn.Query(
		`SELECT id, url, record_json, error_kind, error_message, created_at
		FROM extractions ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitOrAll(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Extraction
	for rows.Next() {
		var e Extraction
		if err := rows.Scan(&e.ID, &e.URL, &e.RecordJSON, &e.ErrorKind, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// InsertArticle logs a generated article and returns its ID.
func (db *DB) InsertArticle(productURL, requestJSON, markdown string, spellIssuesJSON, spellcheckError *string) (string, error) {
	id := uuid.NewString()
	_, err := db.conn.Exec(
		`INSERT INTO articles (id, product_url, request_json, markdown, spell_issues_json, spellcheck_error)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id, productURL, requestJSON, markdown, spellIssuesJSON, spellcheckError,
	)
	if err != nil {
		return "", fmt.Errorf("inserting article: %w", err)
	}
	return id, nil
}

const articleColumns = `id, product_url, request_json, markdown, spell_issues_json, spellcheck_error, created_at`

// GetArticles returns the most recent articles first.
func (db *DB) GetArticles(limit int) ([]Article, error) {
	rows, err := db.conn.Query(
		`SELECT `+articleColumns+` FROM articles ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitOrAll(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Article
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// GetArticle returns one article by ID.
func (db *DB) GetArticle(id string) (*Article, error) {
	row := db.conn.QueryRow(`SELECT `+articleColumns+` FROM articles WHERE id = ?`, id)
	a, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanArticle(s scanner) (*Article, error) {
	var a Article
	if err := s.Scan(&a.ID, &a.ProductURL, &a.RequestJSON, &a.Markdown, &a.SpellIssuesJSON, &a.SpellcheckError, &a.CreatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// InsertImageJob logs a new image submission. An empty ID is assigned one.
func (db *DB) InsertImageJob(job ImageJob) (string, error) {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	_, err := db.conn.Exec(
		`INSERT INTO image_jobs (id, provider_job_id, prompt, aspect_ratio, status, image_url, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.ProviderJobID, job.Prompt, job.AspectRatio, job.Status, job.ImageURL, job.Error,
	)
	if err != nil {
		return "", fmt.Errorf("inserting image job: %w", err)
	}
	return job.ID, nil
}

// UpdateImageJob records the provider outcome for an existing entry.
func (db *DB) UpdateImageJob(job ImageJob) error {
	result, err := db.conn.Exec(
		`UPDATE image_jobs SET provider_job_id = ?, status = ?, image_url = ?, error = ?, updated_at = datetime('now')
		WHERE id = ?`,
		job.ProviderJobID, job.Status, job.ImageURL, job.Error, job.ID,
	)
	if err != nil {
		return fmt.Errorf("updating image job: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// GetImageJobs returns the image log, newest first.
func (db *DB) GetImageJobs(limit int) ([]ImageJob, error) {
	rows, err := db.conn.Query(
		`SELECT id, provider_job_id, prompt, aspect_ratio, status, image_url, error, created_at, updated_at
		FROM image_jobs ORDER BY created_at DESC, rowid DESC LIMIT ?`, limitOrAll(limit),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ImageJob
	for rows.Next() {
		var j ImageJob
		if err := rows.Scan(&j.ID, &j.ProviderJobID, &j.Prompt, &j.AspectRatio, &j.Status, &j.ImageURL, &j.Error, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// limitOrAll maps a non-positive limit to sqlite's "no limit".
func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
