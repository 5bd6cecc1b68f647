// Package sync reconciles locally stored game sessions against the
// remote store: it detects divergence, resolves conflicts, and drives
// periodic and realtime synchronization.
package sync

import (
	"time"

	"github.com/drawguess/backend/internal/models"
)

// timestampTolerance is how far effective timestamps may drift before
// the pair counts as a timestamp conflict. Store round trips and clock
// skew routinely produce sub-second differences.
const timestampTolerance = 1000 // milliseconds

// DetectConflict compares the local and remote copies of one session.
// It returns nil when the pair agrees within tolerance. Pure function.
func DetectConflict(local, remote *models.GameSession) *models.SyncConflict {
	if local == nil || remote == nil || local.ID != remote.ID {
		return nil
	}

	var kind models.ConflictKind

	diff := local.EffectiveTimestamp() - remote.EffectiveTimestamp()
	if diff < 0 {
		diff = -diff
	}
	if diff > timestampTolerance {
		kind = models.ConflictKindTimestamp
	}

	if contentDiffers(local, remote) {
		if kind == models.ConflictKindTimestamp {
			kind = models.ConflictKindBoth
		} else {
			kind = models.ConflictKindContent
		}
	}

	if kind == "" {
		return nil
	}

	return &models.SyncConflict{
		SessionID:  local.ID,
		Local:      local,
		Remote:     remote,
		Kind:       kind,
		DetectedAt: time.Now().UnixMilli(),
	}
}

// contentDiffers checks the game-outcome fields: guess, confidence,
// correctness, and the drawing reference.
func contentDiffers(local, remote *models.GameSession) bool {
	return local.AIGuess != remote.AIGuess ||
		local.Confidence != remote.Confidence ||
		local.Correct != remote.Correct ||
		local.DrawingURL != remote.DrawingURL
}
