package pgrepos

import (
	"context"

	"github.com/pkg/errors"
	"github.com/volatiletech/sqlboiler/v4/queries"

	"github.com/trezcool/elearning/core"
)

type monthTotal struct {
	Month   int    `boil:"month"`
	Mode    string `boil:"mode"`
	Seconds int    `boil:"seconds"`
}

// monthlyTotals runs a report query selecting "month" and "seconds" columns.
func monthlyTotals(ctx context.Context, exec core.DBExecutor, query string, userID string, year int) (map[int]int, error) {
	byMonth := make(map[int]int)
	if !validID(userID) {
		return byMonth, nil
	}
	var totals []monthTotal
	if err := queries.Raw(query, userID, year).Bind(ctx, exec, &totals); err != nil {
		return nil, errors.Wrap(err, "querying monthly totals")
	}
	for _, t := range totals {
		byMonth[t.Month] += t.Seconds
	}
	return byMonth, nil
}

// monthlyModeTotals runs a report query selecting "month", "mode" and "seconds" columns.
func monthlyModeTotals(ctx context.Context, exec core.DBExecutor, query string, userID string, year int) (map[int]map[string]int, error) {
	byMonth := make(map[int]map[string]int)
	if !validID(userID) {
		return byMonth, nil
	}
	var totals []monthTotal
	if err := queries.Raw(query, userID, year).Bind(ctx, exec, &totals); err != nil {
		return nil, errors.Wrap(err, "querying monthly totals")
	}
	for _, t := range totals {
		if byMonth[t.Month] == nil {
			byMonth[t.Month] = make(map[string]int)
		}
		byMonth[t.Month][t.Mode] += t.Seconds
	}
	return byMonth, nil
}
