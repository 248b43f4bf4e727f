package worker

import (
	"context"

	"github.com/spec-kit/incident-sync/internal/service"
)

// StartJournalWorker subscribes the journal and drains its queue in the
// background until ctx is cancelled.
func StartJournalWorker(ctx context.Context, journal *service.JournalService) {
	if journal == nil {
		return
	}
	journal.RegisterHandlers()
	go journal.Run(ctx)
}
