package repositories

import (
	"context"

	"github.com/bidhouse/server/bidhouse/auction"
	"github.com/bidhouse/server/bidhouse/database/models"
	"github.com/uptrace/bun"
)

var (
	_ auction.ActivitySink   = (*ActivityRepository)(nil)
	_ auction.ActivityReader = (*ActivityRepository)(nil)
)

// ActivityRepository persists the public activity feed.
type ActivityRepository struct {
	db *bun.DB
}

func NewActivityRepository(db *bun.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

func (r *ActivityRepository) Record(ctx context.Context, activity models.Activity) error {
	_, err := r.db.NewInsert().Model(&activity).Exec(ctx)
	return wrap("insert", "activity", err)
}

func (r *ActivityRepository) RecentActivities(ctx context.Context, limit int) ([]models.Activity, error) {
	activities := make([]models.Activity, 0, limit)
	err := r.db.NewSelect().
		Model(&activities).
		OrderExpr("created_at DESC, id DESC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, wrap("list", "activities", err)
	}
	return activities, nil
}
