// Package notionsync exports the records of an import batch to a Notion
// database, one page per record.
package notionsync

import (
	"context"
	"fmt"

	"github.com/dvloznov/txgroup/internal/logger"
)

// Stats counts what an export did (or would do, on a dry run).
type Stats struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Archived int `json:"archived"`
	Failed   int `json:"failed"`
}

// ExportBatch upserts one Notion page per record of the batch. Pages are
// matched on the "Record ID" property. Pages of the same batch whose record
// no longer exists (a re-map issues new record IDs) are archived.
//
// A failing page is logged and counted; the export carries on with the rest.
func ExportBatch(ctx context.Context, repo RecordSource, notionClient NotionService, batchID string, dryRun bool) (Stats, error) {
	log := logger.FromContext(ctx).With().
		Str("batch_id", batchID).
		Bool("dry_run", dryRun).
		Logger()

	var stats Stats

	if _, err := repo.GetBatch(ctx, batchID); err != nil {
		return stats, fmt.Errorf("ExportBatch: loading batch: %w", err)
	}
	records, err := repo.ListRecords(ctx, batchID)
	if err != nil {
		return stats, fmt.Errorf("ExportBatch: listing records: %w", err)
	}
	log.Info().Int("records", len(records)).Msg("Starting batch export to Notion")

	pages, err := notionClient.BatchPages(ctx, batchID)
	if err != nil {
		return stats, fmt.Errorf("ExportBatch: %w", err)
	}

	existing := make(map[string]string, len(pages))
	valid := make(map[string]bool, len(records))
	for _, r := range records {
		valid[r.ID] = true
	}

	for _, page := range pages {
		recordID := extractRecordID(page)
		if recordID != "" && valid[recordID] {
			existing[recordID] = string(page.ID)
			continue
		}

		if dryRun {
			log.Info().Str("record_id", recordID).Str("page_id", string(page.ID)).Msg("[DRY RUN] Would archive stale Notion page")
			stats.Archived++
			continue
		}
		if err := notionClient.ArchivePage(ctx, string(page.ID)); err != nil {
			log.Warn().Err(err).Str("page_id", string(page.ID)).Msg("Failed to archive stale Notion page")
			stats.Failed++
			continue
		}
		stats.Archived++
	}

	for _, r := range records {
		pageID, ok := existing[r.ID]

		if dryRun {
			if ok {
				stats.Updated++
			} else {
				stats.Created++
			}
			continue
		}

		props := RecordToNotionProperties(r)
		if ok {
			if err := notionClient.UpdateRecordPage(ctx, pageID, props); err != nil {
				log.Warn().Err(err).Str("record_id", r.ID).Str("page_id", pageID).Msg("Failed to update Notion page")
				stats.Failed++
				continue
			}
			stats.Updated++
			continue
		}

		page, err := notionClient.CreateRecordPage(ctx, props)
		if err != nil {
			log.Warn().Err(err).Str("record_id", r.ID).Msg("Failed to create Notion page")
			stats.Failed++
			continue
		}
		log.Debug().Str("record_id", r.ID).Str("page_id", string(page.ID)).Msg("Created Notion page")
		stats.Created++
	}

	log.Info().
		Int("created", stats.Created).
		Int("updated", stats.Updated).
		Int("archived", stats.Archived).
		Int("failed", stats.Failed).
		Msg("Batch export completed")

	return stats, nil
}
