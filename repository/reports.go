package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

type ReportRepository struct {
	pool *pgxpool.Pool
}

func NewReportRepository(pool *pgxpool.Pool) *ReportRepository {
	return &ReportRepository{pool: pool}
}

type FrequencyGroup string

const (
	GroupByUser FrequencyGroup = "user"
	GroupByDay  FrequencyGroup = "day"
)

type FrequencyRow struct {
	Key          string  `json:"key"`
	Name         *string `json:"name,omitempty"`
	ShiftsTotal  int64   `json:"shifts_total"`
	ShiftsClosed int64   `json:"shifts_closed"`
	DaysWorked   int64   `json:"days_worked"`
	UsersPresent *int64  `json:"users_present,omitempty"`
	HoursWorked  float64 `json:"hours_worked"`
	Suspicious   int64   `json:"suspicious"`
}

// Frequency aggregates attendance in [from, to). Days are taken in tz.
//
// Metrics:
//   - shifts_total: records in the period
//   - shifts_closed: records with a check-out
//   - days_worked / users_present: distinct local days / distinct users
//   - hours_worked: sum of check_out - check_in over closed records
func (r *ReportRepository) Frequency(ctx context.Context, groupBy FrequencyGroup, from, to time.Time, tz string) ([]FrequencyRow, error) {
	var query string
	args := []any{from, to, tz}

	switch groupBy {
	case GroupByUser:
		query = `
			SELECT
				a.user_id::text AS key,
				u.name,
				COUNT(*) AS shifts_total,
				COUNT(*) FILTER (WHERE a.check_out IS NOT NULL) AS shifts_closed,
				COUNT(DISTINCT ((a.check_in AT TIME ZONE $3)::date)) AS days_worked,
				COALESCE(SUM(EXTRACT(EPOCH FROM (a.check_out - a.check_in))) FILTER (WHERE a.check_out IS NOT NULL), 0)::float8 AS seconds_worked,
				COUNT(*) FILTER (WHERE a.suspicious_flag) AS suspicious
			FROM attendance a
			LEFT JOIN users u ON u.user_id = a.user_id
			WHERE a.check_in >= $1 AND a.check_in < $2
			GROUP BY a.user_id, u.name
			ORDER BY days_worked DESC, shifts_closed DESC
		`
	case GroupByDay:
		query = `
			SELECT
				((a.check_in AT TIME ZONE $3)::date)::text AS key,
				COUNT(*) AS shifts_total,
				COUNT(*) FILTER (WHERE a.check_out IS NOT NULL) AS shifts_closed,
				COUNT(DISTINCT a.user_id) AS users_present,
				COALESCE(SUM(EXTRACT(EPOCH FROM (a.check_out - a.check_in))) FILTER (WHERE a.check_out IS NOT NULL), 0)::float8 AS seconds_worked,
				COUNT(*) FILTER (WHERE a.suspicious_flag) AS suspicious
			FROM attendance a
			WHERE a.check_in >= $1 AND a.check_in < $2
			GROUP BY 1
			ORDER BY 1 ASC
		`
	default:
		return nil, fmt.Errorf("unknown group %q", groupBy)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("frequency report: %w", err)
	}
	defer rows.Close()

	out := []FrequencyRow{}
	for rows.Next() {
		var (
			row           FrequencyRow
			secondsWorked float64
		)
		if groupBy == GroupByDay {
			var up int64
			if err := rows.Scan(&row.Key, &row.ShiftsTotal, &row.ShiftsClosed, &up, &secondsWorked, &row.Suspicious); err != nil {
				return nil, err
			}
			row.UsersPresent = &up
			row.DaysWorked = 1
		} else {
			if err := rows.Scan(&row.Key, &row.Name, &row.ShiftsTotal, &row.ShiftsClosed, &row.DaysWorked, &secondsWorked, &row.Suspicious); err != nil {
				return nil, err
			}
		}
		row.HoursWorked = secondsWorked / 3600.0
		out = append(out, row)
	}
	return out, rows.Err()
}
