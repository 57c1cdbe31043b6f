package rbac

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"dirhub/pkg/kvstore"
	"dirhub/pkg/observability"
)

// Reconciler sweeps up dangling role references. DeleteRole's cascade
// is not atomic, so a crash mid-delete can leave role IDs in user sets
// whose role record is gone. Readers already skip them; the sweep
// removes them so the sets do not grow stale entries forever.
type Reconciler struct {
	store  kvstore.Store
	logger *observability.Logger
	cron   *cron.Cron
}

func NewReconciler(store kvstore.Store, logger *observability.Logger) *Reconciler {
	return &Reconciler{
		store:  store,
		logger: logger,
	}
}

// Start schedules sweeps using a cron expression ("@hourly",
// "*/15 * * * *", ...). Each run gets a fresh timeout-bounded context.
func (r *Reconciler) Start(schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		removed, err := r.SweepAll(ctx)
		if err != nil {
			r.logger.WithError(err).Error("reconciler sweep failed")
			return
		}
		if removed > 0 {
			r.logger.WithField("removed", removed).Info("reconciler removed dangling role references")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid reconciler schedule %q: %w", schedule, err)
	}

	c.Start()
	r.cron = c
	return nil
}

// Stop halts scheduling and waits for a running sweep to finish.
func (r *Reconciler) Stop() {
	if r.cron != nil {
		<-r.cron.Stop().Done()
	}
}

// SweepAll scans every tenant and removes role IDs whose role record
// no longer exists. Per-key errors are logged and skipped so one bad
// tenant cannot stall the rest.
func (r *Reconciler) SweepAll(ctx context.Context) (int, error) {
	keys, err := r.store.ScanKeys(ctx, tenantUsersPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("failed to enumerate tenants: %w", err)
	}

	removed := 0
	for _, key := range keys {
		tenantID, ok := tenantFromUsersKey(key)
		if !ok {
			continue
		}
		n, err := r.SweepTenant(ctx, tenantID)
		if err != nil {
			r.logger.WithError(err).WithField("tenant_id", tenantID).
				Warn("tenant sweep failed")
			continue
		}
		removed += n
	}
	return removed, nil
}

// SweepTenant removes dangling role references within one tenant.
func (r *Reconciler) SweepTenant(ctx context.Context, tenantID string) (int, error) {
	users, err := r.store.SMembers(ctx, tenantUsersKey(tenantID))
	if err != nil {
		return 0, fmt.Errorf("failed to list tenant users: %w", err)
	}

	removed := 0
	for _, userID := range users {
		roleIDs, err := r.store.SMembers(ctx, userRolesKey(userID, tenantID))
		if err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"tenant_id": tenantID,
				"user_id":   userID,
			}).Warn("failed to read user role set during sweep")
			continue
		}

		for _, roleID := range roleIDs {
			_, err := r.store.Get(ctx, roleKey(tenantID, roleID))
			if err == nil {
				continue
			}
			if !errors.Is(err, kvstore.ErrNotFound) {
				// A read failure is not proof the role is gone.
				continue
			}
			if err := r.store.SRem(ctx, userRolesKey(userID, tenantID), roleID); err != nil {
				r.logger.WithError(err).WithFields(map[string]interface{}{
					"tenant_id": tenantID,
					"user_id":   userID,
					"role_id":   roleID,
				}).Warn("failed to remove dangling role reference")
				continue
			}
			removed++
		}
	}
	return removed, nil
}
