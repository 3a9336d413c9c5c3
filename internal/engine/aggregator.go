package engine

import (
	"context"
	"log"
)

// RollUpDailyMetrics derives today's per-account counts from the email
// log and upserts one metrics row per account. Counters on accounts and
// campaigns are bumped live as events happen; this roll-up and the
// campaign resync on the read path are what keep them honest. Runs from
// the end-of-day cron.
func (e *Engine) RollUpDailyMetrics(ctx context.Context) error {
	accounts, err := e.store.ListAccounts(ctx, "", "")
	if err != nil {
		return err
	}

	day := e.now().UTC()
	for _, account := range accounts {
		metric, err := e.store.CountDailyActivity(ctx, account.ID, day)
		if err != nil {
			return err
		}
		if err := e.store.UpsertDailyMetric(ctx, metric); err != nil {
			return err
		}
	}

	log.Printf("[Engine] rolled up daily metrics for %d accounts", len(accounts))
	return nil
}
