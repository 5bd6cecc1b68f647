package sync

import (
	"github.com/drawguess/backend/internal/errors"
	"github.com/drawguess/backend/internal/logging"
	"github.com/drawguess/backend/internal/models"
)

// Resolve produces the reconciled session for a conflict under the
// given policy. ResolutionAsk is not resolvable here; callers hold the
// conflict until an explicit decision arrives.
func Resolve(conflict *models.SyncConflict, resolution models.Resolution) (*models.GameSession, error) {
	if conflict == nil || conflict.Local == nil || conflict.Remote == nil {
		return nil, errors.New(errors.ErrInvalid, "conflict must carry both local and remote sessions")
	}
	if conflict.Local.ID != conflict.Remote.ID {
		return nil, errors.New(errors.ErrInvalid, "conflict session ids do not match")
	}

	var winner *models.GameSession
	switch resolution {
	case models.ResolutionLocal:
		winner = conflict.Local.Clone()
	case models.ResolutionRemote:
		winner = conflict.Remote.Clone()
	case models.ResolutionMerge:
		winner = merge(conflict.Local, conflict.Remote)
	default:
		return nil, errors.Newf(errors.ErrSyncResolution, "unknown resolution policy %q", resolution)
	}

	logging.Info("Conflict resolved", map[string]interface{}{
		"session_id":       conflict.SessionID,
		"kind":             conflict.Kind,
		"resolution":       resolution,
		"local_timestamp":  conflict.Local.EffectiveTimestamp(),
		"remote_timestamp": conflict.Remote.EffectiveTimestamp(),
	})

	return winner, nil
}

// merge builds a single session from both sides. The remote record is
// the structural base; the side with the newer effective timestamp
// donates the game outcome. The drawing reference is whichever side has
// one, preferring local.
func merge(local, remote *models.GameSession) *models.GameSession {
	merged := remote.Clone()

	newer := remote
	if local.EffectiveTimestamp() > remote.EffectiveTimestamp() {
		newer = local
	}

	merged.AIGuess = newer.AIGuess
	merged.Confidence = newer.Confidence
	merged.Correct = newer.Correct
	merged.EndedAt = newer.EndedAt
	merged.Duration = newer.Duration

	if local.DrawingURL != "" {
		merged.DrawingURL = local.DrawingURL
	} else if remote.DrawingURL != "" {
		merged.DrawingURL = remote.DrawingURL
	}

	return merged
}
