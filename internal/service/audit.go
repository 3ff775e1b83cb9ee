package service

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_auth/internal/models"
)

// auditor writes audit entries after the state change they describe has been
// persisted. A failed append is logged and does not fail the request, since
// the change itself already happened.
type auditor struct {
	store AuditStore
}

func (a auditor) record(ctx context.Context, actor uuid.UUID, action, targetType, targetID string, meta RequestMeta, details map[string]any) {
	entry := &models.AuditLogEntry{
		ID:         ulid.Make().String(),
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		IPAddress:  meta.IP,
		UserAgent:  meta.UserAgent,
	}
	if actor != uuid.Nil {
		entry.ActorID = &actor
	}
	if len(details) > 0 {
		raw, err := json.Marshal(details)
		if err == nil {
			entry.Details = raw
		}
	}

	if err := a.store.Append(ctx, entry); err != nil {
		log.Error().Err(err).
			Str("action", action).
			Str("target_type", targetType).
			Str("target_id", targetID).
			Msg("Failed to append audit log")
	}
}
