// Package sink implements the batched output writer over SQLite. Rows for
// the five streams are buffered in memory and written in one transaction
// whenever any buffer reaches the flush batch size or Flush is called at a
// level boundary. Sink errors are fatal to the run; the orchestrator never
// continues past a failed write.
package sink

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"sptrace/database"
	"sptrace/domain/contracts"
	"sptrace/domain/jobs"
	"sptrace/logging"
)

// SQLiteSink buffers output rows and writes them transactionally.
type SQLiteSink struct {
	db             *database.Database
	flushBatchSize int
	logger         *logging.Logger

	siteContents []*contracts.SiteContentRow
	siteGroups   []*contracts.SitePrincipalRow
	siteUsers    []*contracts.SitePrincipalRow
	flaggedNodes []*contracts.FlaggedNodeRow
	accessRows   []*contracts.AccessRow
}

// New creates a sink over the given database. flushBatchSize bounds how many
// rows of any one stream are held before an automatic flush.
func New(db *database.Database, flushBatchSize int) *SQLiteSink {
	if flushBatchSize <= 0 {
		flushBatchSize = 200
	}
	return &SQLiteSink{
		db:             db,
		flushBatchSize: flushBatchSize,
		logger:         logging.Default().WithComponent("sink"),
	}
}

// BeginRun records the scan run row before any output is written.
func (s *SQLiteSink) BeginRun(ctx context.Context, run *jobs.ScanRun) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scan_runs (run_id, started_at, job_count) VALUES (?, ?, ?)
			 ON CONFLICT (run_id) DO NOTHING`,
			run.ID, run.StartedAt.UTC().Format(time.RFC3339), run.JobCount)
		if err != nil {
			return fmt.Errorf("insert scan run: %w", err)
		}
		return nil
	})
}

// AppendSiteContents buffers site-contents rows.
func (s *SQLiteSink) AppendSiteContents(ctx context.Context, rows []*contracts.SiteContentRow) error {
	s.siteContents = append(s.siteContents, rows...)
	return s.maybeFlush(ctx)
}

// AppendSiteGroups buffers site-group inventory rows.
func (s *SQLiteSink) AppendSiteGroups(ctx context.Context, rows []*contracts.SitePrincipalRow) error {
	s.siteGroups = append(s.siteGroups, rows...)
	return s.maybeFlush(ctx)
}

// AppendSiteUsers buffers site-user inventory rows.
func (s *SQLiteSink) AppendSiteUsers(ctx context.Context, rows []*contracts.SitePrincipalRow) error {
	s.siteUsers = append(s.siteUsers, rows...)
	return s.maybeFlush(ctx)
}

// AppendFlaggedNodes buffers broken-permission-node rows.
func (s *SQLiteSink) AppendFlaggedNodes(ctx context.Context, rows []*contracts.FlaggedNodeRow) error {
	s.flaggedNodes = append(s.flaggedNodes, rows...)
	return s.maybeFlush(ctx)
}

// AppendAccessRows buffers per-principal access rows.
func (s *SQLiteSink) AppendAccessRows(ctx context.Context, rows []*contracts.AccessRow) error {
	s.accessRows = append(s.accessRows, rows...)
	return s.maybeFlush(ctx)
}

func (s *SQLiteSink) maybeFlush(ctx context.Context) error {
	if len(s.siteContents) < s.flushBatchSize &&
		len(s.siteGroups) < s.flushBatchSize &&
		len(s.siteUsers) < s.flushBatchSize &&
		len(s.flaggedNodes) < s.flushBatchSize &&
		len(s.accessRows) < s.flushBatchSize {
		return nil
	}
	return s.Flush(ctx)
}

// Flush writes every buffered row in a single transaction and clears the
// buffers. A flush with empty buffers is a no-op.
func (s *SQLiteSink) Flush(ctx context.Context) error {
	total := len(s.siteContents) + len(s.siteGroups) + len(s.siteUsers) +
		len(s.flaggedNodes) + len(s.accessRows)
	if total == 0 {
		return nil
	}

	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if err := s.writeSiteContents(ctx, tx); err != nil {
			return err
		}
		if err := s.writePrincipals(ctx, tx, "site_groups", s.siteGroups); err != nil {
			return err
		}
		if err := s.writePrincipals(ctx, tx, "site_users", s.siteUsers); err != nil {
			return err
		}
		if err := s.writeFlaggedNodes(ctx, tx); err != nil {
			return err
		}
		return s.writeAccessRows(ctx, tx)
	})
	if err != nil {
		return fmt.Errorf("flush output rows: %w", err)
	}

	s.logger.Database("Flushed output rows", "rows", total)
	s.siteContents = s.siteContents[:0]
	s.siteGroups = s.siteGroups[:0]
	s.siteUsers = s.siteUsers[:0]
	s.flaggedNodes = s.flaggedNodes[:0]
	s.accessRows = s.accessRows[:0]
	return nil
}

// Close flushes any remaining rows.
func (s *SQLiteSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.Flush(ctx)
}

func (s *SQLiteSink) writeSiteContents(ctx context.Context, tx *sql.Tx) error {
	if len(s.siteContents) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO site_contents
			(run_id, job_index, site_url, object_type, object_key, title, url, item_count, has_unique)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare site_contents insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range s.siteContents {
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.JobIndex, r.SiteURL, r.ObjectType, r.Key,
			r.Title, r.URL, r.ItemCount, boolToInt(r.HasUnique)); err != nil {
			return fmt.Errorf("insert site_contents row: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) writePrincipals(ctx context.Context, tx *sql.Tx, table string, rows []*contracts.SitePrincipalRow) error {
	if len(rows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
		INSERT INTO %s
			(run_id, job_index, site_url, principal_id, kind, title, login_name, email)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`, table))
	if err != nil {
		return fmt.Errorf("prepare %s insert: %w", table, err)
	}
	defer stmt.Close()

	for _, r := range rows {
		p := r.Principal
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.JobIndex, r.SiteURL, p.ID, p.Kind.String(),
			p.Title, p.LoginName, p.Email); err != nil {
			return fmt.Errorf("insert %s row: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteSink) writeFlaggedNodes(ctx context.Context, tx *sql.Tx) error {
	if len(s.flaggedNodes) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO flagged_nodes
			(run_id, job_index, site_url, object_type, object_key, list_id, item_id, title, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare flagged_nodes insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range s.flaggedNodes {
		res := r.Resource
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.JobIndex, r.SiteURL, res.ObjectType, res.Key,
			res.ListID, res.ItemID, res.Title, res.URL); err != nil {
			return fmt.Errorf("insert flagged_nodes row: %w", err)
		}
	}
	return nil
}

func (s *SQLiteSink) writeAccessRows(ctx context.Context, tx *sql.Tx) error {
	if len(s.accessRows) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO access_rows
			(run_id, job_index, site_url, object_type, object_key,
			 account_title, account_login, account_email, account_kind,
			 permission_level, assignment_kind, resolution,
			 via_group, parent_group, nesting_level, shared_at, shared_by)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare access_rows insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range s.accessRows {
		e := r.Entry
		var sharedAt any
		if e.SharedAt != nil {
			sharedAt = e.SharedAt.UTC().Format(time.RFC3339)
		}
		if _, err := stmt.ExecContext(ctx,
			r.RunID, r.JobIndex, r.SiteURL, e.Resource.ObjectType, e.Resource.Key,
			e.Account.Title, e.Account.LoginName, e.Account.Email, e.Account.Kind.String(),
			e.PermissionLevel, string(e.AssignmentKind), string(e.Resolution),
			e.ViaGroup, e.ParentGroup, e.NestingLevel, sharedAt, e.SharedBy); err != nil {
			return fmt.Errorf("insert access_rows row: %w", err)
		}
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
