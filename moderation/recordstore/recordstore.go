// Clients for the authoritative infraction record store.
//
// The production backend is a remote HTTP API (HTTPStore). A SQL backend (GormStore) serves self-hosted and development deployments, and MemStore backs tests. All three implement the same conditional deactivation (compare-and-set of the active flag), which is the serialization point for every deactivation path in the engine.
package recordstore

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"github.com/wardenbot/warden/moderation"
)

type RecordStore interface {
	Create(ctx context.Context, n moderation.NewInfraction) (*moderation.Infraction, error)
	Get(ctx context.Context, id int64) (*moderation.Infraction, error)
	List(ctx context.Context, f moderation.Filter) ([]moderation.Infraction, error)
	Update(ctx context.Context, id int64, u moderation.Update) (*moderation.Infraction, error)
	// Flips active from true to false, only if it is currently true. Returns the updated row, or moderation.ErrNotActive if the row was already inactive.
	Deactivate(ctx context.Context, id int64) (*moderation.Infraction, error)
	Delete(ctx context.Context, id int64) error
}

// ListActive is a helper for the common "currently active of kind for subject" query.
func ListActive(ctx context.Context, rs RecordStore, kind moderation.Kind, subject snowflake.ID) ([]moderation.Infraction, error) {
	return rs.List(ctx, moderation.Filter{
		Active:  moderation.ActiveOnly(),
		Kind:    kind,
		Subject: subject,
	})
}
