package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresEventRepo はPostgreSQLを使用したイベントリポジトリ。
type PostgresEventRepo struct {
	db *sql.DB
}

// NewPostgresEventRepo はPostgresEventRepoを生成する。
func NewPostgresEventRepo(db *sql.DB) *PostgresEventRepo {
	return &PostgresEventRepo{db: db}
}

const eventColumns = `e.id, e.user_id, e.professional_id, e.client_name, e.client_cpf,
       e.client_phone, e.notes, e.start_time, e.end_time, e.status_id,
       e.google_event_id, e.created_at, e.updated_at,
       p.name, p.color, s.name, s.color`

const eventJoins = ` FROM events e
       JOIN professionals p ON p.id = e.professional_id
       JOIN kanban_statuses s ON s.id = e.status_id`

func scanEvent(row rowScanner) (*model.Event, error) {
	ev := &model.Event{}
	err := row.Scan(
		&ev.ID, &ev.UserID, &ev.ProfessionalID, &ev.ClientName, &ev.ClientCPF,
		&ev.ClientPhone, &ev.Notes, &ev.StartTime, &ev.EndTime, &ev.StatusID,
		&ev.GoogleEventID, &ev.CreatedAt, &ev.UpdatedAt,
		&ev.ProfessionalName, &ev.ProfessionalColor, &ev.StatusName, &ev.StatusColor,
	)
	if err != nil {
		return nil, err
	}
	return ev, nil
}

// FindByID は所有者チェック付きでイベントを取得する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByID(ctx context.Context, id, ownerID string) (*model.Event, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+eventJoins+` WHERE e.id = $1 AND e.user_id = $2`,
		id, ownerID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("イベントの取得に失敗しました: %w", err)
	}
	return ev, nil
}

// FindByRemoteID はリモートイベントIDでイベントを検索する。見つからない場合はnilを返す。
func (r *PostgresEventRepo) FindByRemoteID(ctx context.Context, googleEventID string) (*model.Event, error) {
	if googleEventID == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+eventColumns+eventJoins+` WHERE e.google_event_id = $1`, googleEventID)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リモートIDによるイベントの検索に失敗しました: %w", err)
	}
	return ev, nil
}

// List は所有者のイベント一覧を返す。professionalID・dateは空なら無視される。
func (r *PostgresEventRepo) List(ctx context.Context, ownerID, professionalID, date string) ([]*model.Event, error) {
	query := `SELECT ` + eventColumns + eventJoins + ` WHERE e.user_id = $1`
	args := []any{ownerID}
	if professionalID != "" {
		args = append(args, professionalID)
		query += fmt.Sprintf(` AND e.professional_id = $%d`, len(args))
	}
	if date != "" {
		args = append(args, date)
		query += fmt.Sprintf(` AND e.start_time::date = $%d`, len(args))
	}
	query += ` ORDER BY e.start_time ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("イベント一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// ListByProfessional はプロフェッショナルの全イベントを開始時刻順で返す。
func (r *PostgresEventRepo) ListByProfessional(ctx context.Context, professionalID string) ([]*model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+eventColumns+eventJoins+`
		 WHERE e.professional_id = $1 ORDER BY e.start_time ASC`, professionalID)
	if err != nil {
		return nil, fmt.Errorf("イベント一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("イベント一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, ev)
	}
	return list, rows.Err()
}

// ListStartTimesInRange は期間 [from, to) に開始するイベントの開始時刻を返す。
func (r *PostgresEventRepo) ListStartTimesInRange(ctx context.Context, professionalID string, from, to time.Time) ([]time.Time, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT start_time FROM events
		 WHERE professional_id = $1 AND start_time >= $2 AND start_time < $3
		 ORDER BY start_time ASC`,
		professionalID, from, to)
	if err != nil {
		return nil, fmt.Errorf("予約時刻の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var starts []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, fmt.Errorf("予約時刻の読み取りに失敗しました: %w", err)
		}
		starts = append(starts, t)
	}
	return starts, rows.Err()
}

// ExistsAt は指定時刻ちょうどに開始する予約が存在するかを返す。
func (r *PostgresEventRepo) ExistsAt(ctx context.Context, professionalID string, start time.Time) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM events WHERE professional_id = $1 AND start_time = $2)`,
		professionalID, start).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("予約の重複確認に失敗しました: %w", err)
	}
	return exists, nil
}

// Create はイベントを作成する。
func (r *PostgresEventRepo) Create(ctx context.Context, ev *model.Event) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO events (id, user_id, professional_id, client_name, client_cpf,
		                     client_phone, notes, start_time, end_time, status_id,
		                     google_event_id, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ev.ID, ev.UserID, ev.ProfessionalID, ev.ClientName, ev.ClientCPF,
		ev.ClientPhone, ev.Notes, ev.StartTime, ev.EndTime, ev.StatusID,
		ev.GoogleEventID, ev.CreatedAt, ev.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("イベントの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は所有者チェック付きでイベントを更新する。
func (r *PostgresEventRepo) Update(ctx context.Context, ev *model.Event, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET professional_id = $3, client_name = $4, client_cpf = $5,
		        client_phone = $6, notes = $7, start_time = $8, end_time = $9,
		        status_id = $10, updated_at = $11
		 WHERE id = $1 AND user_id = $2`,
		ev.ID, ownerID, ev.ProfessionalID, ev.ClientName, ev.ClientCPF,
		ev.ClientPhone, ev.Notes, ev.StartTime, ev.EndTime, ev.StatusID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("イベントの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// UpdateStatus は所有者チェック付きでステータスのみを更新する。
func (r *PostgresEventRepo) UpdateStatus(ctx context.Context, id, ownerID, statusID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE events SET status_id = $3, updated_at = $4 WHERE id = $1 AND user_id = $2`,
		id, ownerID, statusID, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete は所有者チェック付きでイベントを削除する。
func (r *PostgresEventRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("イベントの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetRemoteID はアウトバウンド同期で得たリモートイベントIDを永続化する。
func (r *PostgresEventRepo) SetRemoteID(ctx context.Context, id, googleEventID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET google_event_id = $2, updated_at = $3 WHERE id = $1`,
		id, googleEventID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("リモートイベントIDの保存に失敗しました: %w", err)
	}
	return nil
}

// UpdateFromRemote はリモート変更をローカルイベントに反映する。
// professional_idの上書きでカレンダー間のイベント移動に追従する。
func (r *PostgresEventRepo) UpdateFromRemote(ctx context.Context, id, clientName string, start, end time.Time, professionalID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE events SET client_name = $2, start_time = $3, end_time = $4,
		        professional_id = $5, updated_at = $6
		 WHERE id = $1`,
		id, clientName, start, end, professionalID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("リモート変更の反映に失敗しました: %w", err)
	}
	return nil
}

// DeleteByRemoteID はリモートイベントIDでイベントを削除し、削除件数を返す。
func (r *PostgresEventRepo) DeleteByRemoteID(ctx context.Context, googleEventID string) (int64, error) {
	if googleEventID == "" {
		return 0, nil
	}
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM events WHERE google_event_id = $1`, googleEventID)
	if err != nil {
		return 0, fmt.Errorf("リモートIDによるイベントの削除に失敗しました: %w", err)
	}
	return res.RowsAffected()
}
