// Package application hosts the scan orchestrator: the sequential loop that
// drives classification, tree walking, and permission resolution over the
// job list, with incremental output flushing and checkpoint-based resume.
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sptrace/domain/contracts"
	domevents "sptrace/domain/events"
	"sptrace/domain/jobs"
	"sptrace/domain/scan"
	"sptrace/domain/sharepoint"
	"sptrace/infrastructure/accessor"
	"sptrace/infrastructure/classifier"
	"sptrace/infrastructure/resolver"
	"sptrace/infrastructure/walker"
	"sptrace/logging"
	"sptrace/platform/events"
)

// fatalError marks failures that must abort the whole run: sink and
// checkpoint writes. Everything else degrades to a skipped or failed job.
type fatalError struct {
	err error
}

func (e *fatalError) Error() string { return e.err.Error() }
func (e *fatalError) Unwrap() error { return e.err }

func fatal(err error) error {
	if err == nil {
		return nil
	}
	return &fatalError{err: err}
}

func isFatal(err error) bool {
	var fe *fatalError
	return errors.As(err, &fe)
}

// Orchestrator iterates the job list sequentially, resetting per-job caches
// and driving classifier, walker, and accessor for each job.
type Orchestrator struct {
	classifier  *classifier.Classifier
	walker      *walker.Walker
	accessor    *accessor.Accessor
	sink        contracts.OutputSink
	checkpoints contracts.CheckpointStore
	jobSource   contracts.JobSource
	params      *scan.Parameters
	rc          *resolver.Context
	bus         *events.ScanEventBus
	progress    scan.ProgressReporter
	logger      *logging.Logger
}

// Dependencies bundles the orchestrator's collaborators.
type Dependencies struct {
	Classifier  *classifier.Classifier
	Walker      *walker.Walker
	Accessor    *accessor.Accessor
	Sink        contracts.OutputSink
	Checkpoints contracts.CheckpointStore
	JobSource   contracts.JobSource
	Params      *scan.Parameters
	Resolution  *resolver.Context
	Bus         *events.ScanEventBus
	Progress    scan.ProgressReporter
}

// NewOrchestrator creates the orchestrator from its dependencies.
func NewOrchestrator(deps Dependencies) *Orchestrator {
	progress := deps.Progress
	if progress == nil {
		progress = &scan.NoOpProgressReporter{}
	}
	return &Orchestrator{
		classifier:  deps.Classifier,
		walker:      deps.Walker,
		accessor:    deps.Accessor,
		sink:        deps.Sink,
		checkpoints: deps.Checkpoints,
		jobSource:   deps.JobSource,
		params:      deps.Params,
		rc:          deps.Resolution,
		bus:         deps.Bus,
		progress:    progress,
		logger:      logging.Default().WithComponent("orchestrator"),
	}
}

// Run executes the batch. With resume enabled it continues the latest
// incomplete run, keeping its run ID so output rows and checkpoints stay
// joined; jobs already in a terminal state are not re-run.
func (o *Orchestrator) Run(ctx context.Context, resume bool) error {
	jobList, err := o.jobSource.Jobs(ctx)
	if err != nil {
		return fmt.Errorf("load job list: %w", err)
	}

	run, err := o.openRun(ctx, resume, len(jobList))
	if err != nil {
		return err
	}

	if err := o.sink.BeginRun(ctx, run); err != nil {
		return fmt.Errorf("begin run in sink: %w", err)
	}

	o.logger.Info("Starting scan run", "run_id", run.ID, "jobs", len(jobList), "resumed", resume)

	completed, skipped := 0, 0
	for _, job := range jobList {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run interrupted: %w", err)
		}

		cp, found, err := o.checkpoints.Load(ctx, run.ID, job.Index)
		if err != nil {
			return fmt.Errorf("load checkpoint for job %d: %w", job.Index, err)
		}
		if found && cp.Status.IsTerminal() {
			o.logger.Scan("Job already terminal, skipping", job.URL)
			if cp.Status == jobs.JobStatusCompleted {
				completed++
			} else {
				skipped++
			}
			continue
		}
		if !found {
			cp = jobs.NewCheckpoint(run.ID, job)
		}

		status, err := o.runJob(ctx, run, job, cp, found)
		if err != nil {
			if isFatal(err) || ctx.Err() != nil {
				return err
			}
			// Non-fatal job failure: recorded on the checkpoint, batch
			// continues.
			o.logger.ScanError("Job failed", err, job.URL)
		}
		switch status {
		case jobs.JobStatusCompleted:
			completed++
		case jobs.JobStatusSkipped:
			skipped++
		}
	}

	if err := o.sink.Flush(ctx); err != nil {
		return fmt.Errorf("final flush: %w", err)
	}

	if o.bus != nil {
		o.bus.PublishRunCompleted(domevents.RunCompletedEvent{
			Run:       run,
			Completed: completed,
			Skipped:   skipped,
			Timestamp: time.Now(),
		})
	}
	o.logger.Info("Scan run finished", "run_id", run.ID, "completed", completed, "skipped", skipped)
	return nil
}

// openRun either resumes the latest incomplete run or starts a fresh one.
func (o *Orchestrator) openRun(ctx context.Context, resume bool, jobCount int) (*jobs.ScanRun, error) {
	if resume {
		run, found, err := o.checkpoints.LatestIncompleteRun(ctx)
		if err != nil {
			return nil, fmt.Errorf("look up incomplete run: %w", err)
		}
		if found {
			o.logger.Info("Resuming scan run", "run_id", run.ID)
			return run, nil
		}
		o.logger.Info("No incomplete run found, starting fresh")
	}

	run := &jobs.ScanRun{
		ID:        uuid.NewString(),
		StartedAt: time.Now(),
		JobCount:  jobCount,
	}
	if err := o.checkpoints.SaveRun(ctx, run); err != nil {
		return nil, fmt.Errorf("save scan run: %w", err)
	}
	return run, nil
}

// runJob executes one job end to end and returns its final status.
func (o *Orchestrator) runJob(ctx context.Context, run *jobs.ScanRun, job *jobs.Job, cp *jobs.Checkpoint, resumed bool) (jobs.JobStatus, error) {
	// Site-scoped caches are only valid within one job.
	o.rc.ResetForJob()

	if o.bus != nil {
		o.bus.PublishJobStarted(domevents.JobStartedEvent{
			RunID:     run.ID,
			Job:       job,
			Resumed:   resumed,
			Timestamp: time.Now(),
		})
	}

	o.progress.ReportProgress(scan.StandardStages.Classification, job.URL, 0)
	cls := o.classifier.Classify(ctx, job.URL)
	if cls.Kind == classifier.KindError {
		cp.Status = jobs.JobStatusSkipped
		cp.Error = cls.Err.Error()
		cp.UpdatedAt = time.Now()
		if err := o.checkpoints.Save(ctx, cp); err != nil {
			return cp.Status, fatal(fmt.Errorf("save checkpoint: %w", err))
		}
		if o.bus != nil {
			o.bus.PublishJobSkipped(domevents.JobSkippedEvent{
				RunID:     run.ID,
				Job:       job,
				Reason:    cls.Err.Error(),
				Timestamp: time.Now(),
			})
		}
		return jobs.JobStatusSkipped, nil
	}

	cp.Status = jobs.JobStatusRunning
	cp.UpdatedAt = time.Now()
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		return cp.Status, fatal(fmt.Errorf("save checkpoint: %w", err))
	}

	jr := &jobRunner{o: o, run: run, job: job, cp: cp, cls: cls}
	if err := jr.execute(ctx); err != nil {
		if isFatal(err) || ctx.Err() != nil {
			return jobs.JobStatusFailed, err
		}
		cp.Status = jobs.JobStatusFailed
		cp.Error = err.Error()
		cp.UpdatedAt = time.Now()
		if saveErr := o.checkpoints.Save(ctx, cp); saveErr != nil {
			return cp.Status, fatal(fmt.Errorf("save checkpoint: %w", saveErr))
		}
		return jobs.JobStatusFailed, err
	}

	cp.Status = jobs.JobStatusCompleted
	cp.Error = ""
	cp.UpdatedAt = time.Now()
	if err := o.checkpoints.Save(ctx, cp); err != nil {
		return cp.Status, fatal(fmt.Errorf("save checkpoint: %w", err))
	}
	if o.bus != nil {
		o.bus.PublishJobCompleted(domevents.JobCompletedEvent{
			RunID:     run.ID,
			Job:       job,
			Counts:    cp.Counts,
			Timestamp: time.Now(),
		})
	}
	o.logger.Scan("Job completed", job.URL)
	return jobs.JobStatusCompleted, nil
}

// jobRunner holds the per-job traversal state: the classification, the
// running checkpoint, and the global list ordinal that resume indices refer
// to.
type jobRunner struct {
	o   *Orchestrator
	run *jobs.ScanRun
	job *jobs.Job
	cp  *jobs.Checkpoint
	cls *classifier.Classification

	listOrdinal int // next list ordinal across all webs, deterministic walk order
}

func (jr *jobRunner) execute(ctx context.Context) error {
	o := jr.o

	o.progress.ReportProgress(scan.StandardStages.WebDiscovery, jr.job.URL, 0)
	webs, err := o.walker.Webs(ctx, jr.cls)
	if err != nil {
		return fmt.Errorf("walk webs: %w", err)
	}
	jr.cp.Counts.Webs = len(webs)

	// Site principal inventory comes from the root web once per job. A
	// resumed job already emitted it before its first web-level checkpoint.
	if jr.cp.LastWebIndex < 0 {
		if err := jr.emitSitePrincipals(ctx, webs[0]); err != nil {
			return err
		}
	}

	for webIndex, ws := range webs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("job interrupted: %w", err)
		}
		if err := jr.processWeb(ctx, ws, webIndex); err != nil {
			return err
		}

		// Level boundary: everything gathered for this web goes out and the
		// checkpoint records the progress.
		if err := o.sink.Flush(ctx); err != nil {
			return fatal(fmt.Errorf("flush at web boundary: %w", err))
		}
		if err := jr.saveCheckpoint(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (jr *jobRunner) processWeb(ctx context.Context, ws *walker.WebScope, webIndex int) error {
	o := jr.o

	// Web-level rows for webs up to LastWebIndex already went out before the
	// interruption; re-emitting them would duplicate rows and inflate counts.
	if webIndex > jr.cp.LastWebIndex {
		if err := o.sink.AppendSiteContents(ctx, []*contracts.SiteContentRow{{
			RunID:      jr.run.ID,
			JobIndex:   jr.job.Index,
			SiteURL:    jr.cls.SiteURL,
			ObjectType: sharepoint.ObjectTypeWeb,
			Key:        ws.Web.ID,
			Title:      ws.Web.Title,
			URL:        ws.Web.URL,
			HasUnique:  ws.Web.HasUnique,
		}}); err != nil {
			return fatal(err)
		}

		if ws.Web.HasUnique {
			res := &sharepoint.Resource{
				ObjectType: sharepoint.ObjectTypeWeb,
				Key:        ws.Web.ID,
				Title:      ws.Web.Title,
				URL:        ws.Web.URL,
				HasUnique:  true,
			}
			if err := jr.emitFlagged(ctx, ws, res); err != nil {
				return err
			}
		}

		jr.cp.LastWebIndex = webIndex
		if err := jr.saveCheckpoint(ctx); err != nil {
			return err
		}
	}

	o.progress.ReportProgress(scan.StandardStages.ListDiscovery, ws.Web.URL, 0)
	lists, err := o.walker.Lists(ctx, ws, jr.cls)
	if err != nil {
		return fmt.Errorf("walk lists: %w", err)
	}

	for _, list := range lists {
		ordinal := jr.listOrdinal
		jr.listOrdinal++

		if ordinal <= jr.cp.LastListIndex {
			// Already fully processed before the interruption.
			continue
		}

		if err := jr.processList(ctx, ws, list, ordinal); err != nil {
			return err
		}

		jr.cp.LastListIndex = ordinal
		jr.cp.LastItemIndex = -1
		jr.cp.Counts.Lists++
		if err := jr.saveCheckpoint(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (jr *jobRunner) processList(ctx context.Context, ws *walker.WebScope, list *sharepoint.List, ordinal int) error {
	o := jr.o
	o.progress.ReportProgress(scan.StandardStages.ListProcessing, list.URL, 0)

	if err := o.sink.AppendSiteContents(ctx, []*contracts.SiteContentRow{{
		RunID:      jr.run.ID,
		JobIndex:   jr.job.Index,
		SiteURL:    jr.cls.SiteURL,
		ObjectType: sharepoint.ObjectTypeList,
		Key:        list.ID,
		Title:      list.Title,
		URL:        list.URL,
		ItemCount:  list.ItemCount,
		HasUnique:  list.HasUnique,
	}}); err != nil {
		return fatal(err)
	}

	if list.HasUnique {
		res := &sharepoint.Resource{
			ObjectType: sharepoint.ObjectTypeList,
			Key:        list.ID,
			Title:      list.Title,
			URL:        list.URL,
			HasUnique:  true,
		}
		if err := jr.emitFlagged(ctx, ws, res); err != nil {
			return err
		}
	}

	if !o.params.ScanIndividualItems || list.IsEmpty() {
		return nil
	}

	// Resume inside the first incomplete list: items up to the recorded
	// ordinal were already processed.
	skipThrough := -1
	if ordinal == jr.cp.LastListIndex+1 {
		skipThrough = jr.cp.LastItemIndex
	}

	o.progress.ReportProgress(scan.StandardStages.ItemProcessing, list.URL, 0)
	itemOrdinal := -1
	err := o.walker.Items(ctx, ws, list, jr.cls, func(item *sharepoint.Item) error {
		itemOrdinal++
		if itemOrdinal <= skipThrough {
			return nil
		}

		if err := jr.processItem(ctx, ws, list, item); err != nil {
			return err
		}
		jr.cp.Counts.Items++

		if (itemOrdinal+1)%o.params.ItemCheckpointInterval == 0 {
			jr.cp.LastItemIndex = itemOrdinal
			if err := jr.saveCheckpoint(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if isFatal(err) {
			return err
		}
		return fmt.Errorf("walk items of list %s: %w", list.Title, err)
	}
	return nil
}

func (jr *jobRunner) processItem(ctx context.Context, ws *walker.WebScope, list *sharepoint.List, item *sharepoint.Item) error {
	if !item.HasUnique {
		return nil
	}
	o := jr.o

	if err := o.sink.AppendSiteContents(ctx, []*contracts.SiteContentRow{{
		RunID:      jr.run.ID,
		JobIndex:   jr.job.Index,
		SiteURL:    jr.cls.SiteURL,
		ObjectType: sharepoint.ObjectTypeItem,
		Key:        item.GUID,
		Title:      item.Name,
		URL:        item.URL,
		HasUnique:  true,
	}}); err != nil {
		return fatal(err)
	}

	res := &sharepoint.Resource{
		ObjectType: sharepoint.ObjectTypeItem,
		Key:        item.GUID,
		ListID:     list.ID,
		ItemID:     item.ID,
		Title:      item.Name,
		URL:        item.URL,
		HasUnique:  true,
	}

	// Share metadata only exists for files, and only matters once the item
	// carries its own permissions.
	if item.IsFile {
		shares, err := ws.Conn.ItemShareDetails(ctx, item.GUID)
		if err != nil {
			o.logger.Warn("Failed to read share details", "item_url", item.URL, "error", err.Error())
		} else {
			res.Shares = shares
		}
	}

	return jr.emitFlagged(ctx, ws, res)
}

// emitFlagged writes the flagged-node row and its resolved access rows. A
// failed permission read logs and moves on; a sink failure aborts the run.
func (jr *jobRunner) emitFlagged(ctx context.Context, ws *walker.WebScope, res *sharepoint.Resource) error {
	o := jr.o

	if err := o.sink.AppendFlaggedNodes(ctx, []*contracts.FlaggedNodeRow{{
		RunID:    jr.run.ID,
		JobIndex: jr.job.Index,
		SiteURL:  jr.cls.SiteURL,
		Resource: res,
	}}); err != nil {
		return fatal(err)
	}
	jr.cp.Counts.FlaggedNodes++

	o.progress.ReportProgress(scan.StandardStages.Resolution, res.URL, 0)
	entries, err := o.accessor.AccessEntries(ctx, ws.Conn, o.rc, res)
	if err != nil {
		o.logger.ScanError("Failed to resolve access for flagged node", err, jr.job.URL)
		return nil
	}

	rows := make([]*contracts.AccessRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, &contracts.AccessRow{
			RunID:    jr.run.ID,
			JobIndex: jr.job.Index,
			SiteURL:  jr.cls.SiteURL,
			Entry:    e,
		})
	}
	if err := o.sink.AppendAccessRows(ctx, rows); err != nil {
		return fatal(err)
	}
	jr.cp.Counts.AccessRows += len(rows)
	return nil
}

// emitSitePrincipals writes the site group and site user inventory streams.
func (jr *jobRunner) emitSitePrincipals(ctx context.Context, root *walker.WebScope) error {
	o := jr.o

	groups, err := root.Conn.SiteGroups(ctx)
	if err != nil {
		o.logger.Warn("Failed to enumerate site groups", "site_url", jr.cls.SiteURL, "error", err.Error())
	} else {
		rows := make([]*contracts.SitePrincipalRow, 0, len(groups))
		for _, g := range groups {
			rows = append(rows, &contracts.SitePrincipalRow{
				RunID:     jr.run.ID,
				JobIndex:  jr.job.Index,
				SiteURL:   jr.cls.SiteURL,
				Principal: g,
			})
		}
		if err := o.sink.AppendSiteGroups(ctx, rows); err != nil {
			return fatal(err)
		}
	}

	users, err := root.Conn.SiteUsers(ctx)
	if err != nil {
		o.logger.Warn("Failed to enumerate site users", "site_url", jr.cls.SiteURL, "error", err.Error())
		return nil
	}
	rows := make([]*contracts.SitePrincipalRow, 0, len(users))
	for _, u := range users {
		rows = append(rows, &contracts.SitePrincipalRow{
			RunID:     jr.run.ID,
			JobIndex:  jr.job.Index,
			SiteURL:   jr.cls.SiteURL,
			Principal: u,
		})
	}
	if err := o.sink.AppendSiteUsers(ctx, rows); err != nil {
		return fatal(err)
	}
	return nil
}

func (jr *jobRunner) saveCheckpoint(ctx context.Context) error {
	jr.cp.UpdatedAt = time.Now()
	if err := jr.o.checkpoints.Save(ctx, jr.cp); err != nil {
		return fatal(fmt.Errorf("save checkpoint: %w", err))
	}
	return nil
}
