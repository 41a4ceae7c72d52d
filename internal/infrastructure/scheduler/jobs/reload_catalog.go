package jobs

import (
	"context"
	"fmt"

	"github.com/sabiut/qr-checkin-system-sub000/internal/domain/badge"
	"github.com/sabiut/qr-checkin-system-sub000/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RELOAD CATALOG JOB
// Перечитывает определения бейджей; битые записи пропускаются с предупреждением.
// ══════════════════════════════════════════════════════════════════════════════

// CatalogSink receives a freshly built badge catalog.
type CatalogSink interface {
	SetCatalog(c *badge.Catalog)
}

// ReloadCatalogJob loads badge definitions from storage and swaps them into
// the trigger dispatcher.
type ReloadCatalogJob struct {
	repo badge.CatalogRepository
	sink CatalogSink
	log  *logger.Logger
}

// NewReloadCatalogJob creates the job.
func NewReloadCatalogJob(repo badge.CatalogRepository, sink CatalogSink, log *logger.Logger) *ReloadCatalogJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReloadCatalogJob{repo: repo, sink: sink, log: log.With(logger.Component("reload_catalog"))}
}

// Name returns the job name.
func (j *ReloadCatalogJob) Name() string {
	return "reload_badge_catalog"
}

// Description returns a human-readable description.
func (j *ReloadCatalogJob) Description() string {
	return "Reloads badge definitions so catalog edits apply without a restart"
}

// Run rebuilds the catalog. On a storage error the current catalog stays.
func (j *ReloadCatalogJob) Run(ctx context.Context) error {
	records, err := j.repo.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("reload catalog: %w", err)
	}

	catalog, invalid := badge.BuildCatalog(records)
	for _, bad := range invalid {
		j.log.Warn("badge definition skipped",
			logger.BadgeID(bad.ID),
			logger.String("name", bad.Name),
			logger.Err(bad.Err),
		)
	}

	j.sink.SetCatalog(catalog)
	j.log.Debug("badge catalog reloaded",
		logger.Int("active", len(catalog.Active())),
		logger.Int("skipped", len(invalid)),
	)
	return nil
}
