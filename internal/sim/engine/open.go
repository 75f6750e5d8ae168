package engine

import (
	"context"
	"errors"
	"io"
	"log"
	"strings"
	"time"

	"kingdomkeep.app/internal/persistence/savestore"
	"kingdomkeep.app/internal/sim/kingdom"
)

// Restore loads the saved kingdom from store into k and credits the time
// spent away. Any load or import failure leaves k as a fresh game; the
// reason is logged.
func Restore(ctx context.Context, k *kingdom.Kingdom, store savestore.Store, now time.Time, logger *log.Logger) kingdom.OfflineReport {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if store == nil {
		return kingdom.OfflineReport{}
	}

	doc, err := store.Load(ctx)
	switch {
	case errors.Is(err, savestore.ErrNotFound):
		logger.Printf("no save found, starting a new kingdom")
		return kingdom.OfflineReport{}
	case err != nil:
		logger.Printf("load save: %v (starting a new kingdom)", err)
		return kingdom.OfflineReport{}
	}

	applied, err := k.Import(doc)
	if err != nil {
		logger.Printf("import save: %v (starting a new kingdom)", err)
		return kingdom.OfflineReport{}
	}
	if len(applied) > 0 {
		logger.Printf("save migrated: %s", strings.Join(applied, ", "))
	}

	rep := k.ApplyOffline(now)
	if rep.Applied {
		logger.Printf("offline %s (credited %s): %+v", rep.Elapsed.Round(time.Second), rep.Effective.Round(time.Second), rep.Earned)
	}
	return rep
}
