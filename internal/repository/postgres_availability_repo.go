package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresAvailabilityRepo はPostgreSQLを使用した可用性リポジトリ。
type PostgresAvailabilityRepo struct {
	db *sql.DB
}

// NewPostgresAvailabilityRepo はPostgresAvailabilityRepoを生成する。
func NewPostgresAvailabilityRepo(db *sql.DB) *PostgresAvailabilityRepo {
	return &PostgresAvailabilityRepo{db: db}
}

// normalizeTime はTIME型の文字列表現（"09:00:00"等）を"HH:MM"に正規化する。
func normalizeTime(s string) string {
	if len(s) > 5 {
		return s[:5]
	}
	return s
}

// ListRules はプロフェッショナルの週次テンプレートを曜日・開始時刻順で返す。
func (r *PostgresAvailabilityRepo) ListRules(ctx context.Context, professionalID string) ([]*model.AvailabilityRule, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, professional_id, day_of_week, start_time::text, end_time::text
		 FROM professional_availability
		 WHERE professional_id = $1
		 ORDER BY day_of_week ASC, start_time ASC`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("テンプレートの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var rules []*model.AvailabilityRule
	for rows.Next() {
		rule := &model.AvailabilityRule{}
		if err := rows.Scan(&rule.ID, &rule.ProfessionalID, &rule.DayOfWeek, &rule.StartTime, &rule.EndTime); err != nil {
			return nil, fmt.Errorf("テンプレートの読み取りに失敗しました: %w", err)
		}
		rule.StartTime = normalizeTime(rule.StartTime)
		rule.EndTime = normalizeTime(rule.EndTime)
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// CreateRule はテンプレートエントリを作成する。
func (r *PostgresAvailabilityRepo) CreateRule(ctx context.Context, rule *model.AvailabilityRule) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO professional_availability (id, professional_id, day_of_week, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		rule.ID, rule.ProfessionalID, rule.DayOfWeek, rule.StartTime, rule.EndTime,
	)
	if err != nil {
		return fmt.Errorf("テンプレートの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateRule は所有者チェック付きでテンプレートエントリの時間帯を更新する。
func (r *PostgresAvailabilityRepo) UpdateRule(ctx context.Context, id, ownerID, startTime, endTime string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE professional_availability a SET start_time = $3, end_time = $4
		 FROM professionals p
		 WHERE a.id = $1 AND a.professional_id = p.id AND p.administrator_id = $2`,
		id, ownerID, startTime, endTime,
	)
	if err != nil {
		return false, fmt.Errorf("テンプレートの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteRule は所有者チェック付きでテンプレートエントリを削除する。
func (r *PostgresAvailabilityRepo) DeleteRule(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM professional_availability a
		 USING professionals p
		 WHERE a.id = $1 AND a.professional_id = p.id AND p.administrator_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("テンプレートの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// CopyDay はある曜日のテンプレートを複数の曜日に複製する。
// 対象曜日の既存エントリは削除し、同一トランザクションで置き換える。
func (r *PostgresAvailabilityRepo) CopyDay(ctx context.Context, professionalID string, sourceDay int, targetDays []int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT start_time::text, end_time::text FROM professional_availability
		 WHERE professional_id = $1 AND day_of_week = $2
		 ORDER BY start_time ASC`, professionalID, sourceDay)
	if err != nil {
		return fmt.Errorf("複製元テンプレートの取得に失敗しました: %w", err)
	}
	type window struct{ start, end string }
	var windows []window
	for rows.Next() {
		var w window
		if err := rows.Scan(&w.start, &w.end); err != nil {
			rows.Close()
			return fmt.Errorf("複製元テンプレートの読み取りに失敗しました: %w", err)
		}
		windows = append(windows, w)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("複製元テンプレートの読み取りに失敗しました: %w", err)
	}

	for _, day := range targetDays {
		if day == sourceDay {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM professional_availability WHERE professional_id = $1 AND day_of_week = $2`,
			professionalID, day); err != nil {
			return fmt.Errorf("複製先テンプレートの削除に失敗しました: %w", err)
		}
		for _, w := range windows {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO professional_availability (id, professional_id, day_of_week, start_time, end_time)
				 VALUES ($1, $2, $3, $4, $5)`,
				uuid.NewString(), professionalID, day, w.start, w.end); err != nil {
				return fmt.Errorf("テンプレートの複製に失敗しました: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

func scanException(rows *sql.Rows) (*model.AvailabilityException, error) {
	e := &model.AvailabilityException{}
	var start, end sql.NullString
	if err := rows.Scan(&e.ID, &e.ProfessionalID, &e.ExceptionDate, &start, &end); err != nil {
		return nil, err
	}
	if start.Valid {
		e.StartTime = normalizeTime(start.String)
	}
	if end.Valid {
		e.EndTime = normalizeTime(end.String)
	}
	return e, nil
}

const exceptionColumns = `id, professional_id, to_char(exception_date, 'YYYY-MM-DD'), start_time::text, end_time::text`

// ListExceptions はプロフェッショナルの例外一覧を日付・開始時刻順で返す。
func (r *PostgresAvailabilityRepo) ListExceptions(ctx context.Context, professionalID, exceptionDate string) ([]*model.AvailabilityException, error) {
	query := `SELECT ` + exceptionColumns + ` FROM availability_exceptions
	          WHERE professional_id = $1`
	args := []any{professionalID}
	if exceptionDate != "" {
		query += ` AND exception_date = $2`
		args = append(args, exceptionDate)
	}
	query += ` ORDER BY exception_date ASC, start_time ASC NULLS FIRST`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("例外一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.AvailabilityException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("例外一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ListExceptionsInRange は日付範囲 [from, to] に含まれる例外を返す。
func (r *PostgresAvailabilityRepo) ListExceptionsInRange(ctx context.Context, professionalID, from, to string) ([]*model.AvailabilityException, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+exceptionColumns+` FROM availability_exceptions
		 WHERE professional_id = $1 AND exception_date BETWEEN $2 AND $3
		 ORDER BY exception_date ASC, start_time ASC NULLS FIRST`,
		professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("例外一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.AvailabilityException
	for rows.Next() {
		e, err := scanException(rows)
		if err != nil {
			return nil, fmt.Errorf("例外一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// CreateException は例外を作成する。終日ブロックは時刻カラムをNULLで保存する。
func (r *PostgresAvailabilityRepo) CreateException(ctx context.Context, e *model.AvailabilityException) error {
	var start, end any
	if !e.AllDay() {
		start, end = e.StartTime, e.EndTime
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO availability_exceptions (id, professional_id, exception_date, start_time, end_time)
		 VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ProfessionalID, e.ExceptionDate, start, end,
	)
	if err != nil {
		return fmt.Errorf("例外の作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateException は所有者チェック付きで例外の時間帯を更新する。
func (r *PostgresAvailabilityRepo) UpdateException(ctx context.Context, id, ownerID, startTime, endTime string) (bool, error) {
	var start, end any
	if startTime != "" || endTime != "" {
		start, end = startTime, endTime
	}
	res, err := r.db.ExecContext(ctx,
		`UPDATE availability_exceptions e SET start_time = $3, end_time = $4
		 FROM professionals p
		 WHERE e.id = $1 AND e.professional_id = p.id AND p.administrator_id = $2`,
		id, ownerID, start, end,
	)
	if err != nil {
		return false, fmt.Errorf("例外の更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteException は所有者チェック付きで例外を削除する。
func (r *PostgresAvailabilityRepo) DeleteException(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM availability_exceptions e
		 USING professionals p
		 WHERE e.id = $1 AND e.professional_id = p.id AND p.administrator_id = $2`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("例外の削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
