package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresProfessionalRepo はPostgreSQLを使用したプロフェッショナルリポジトリ。
type PostgresProfessionalRepo struct {
	db *sql.DB
}

// NewPostgresProfessionalRepo はPostgresProfessionalRepoを生成する。
func NewPostgresProfessionalRepo(db *sql.DB) *PostgresProfessionalRepo {
	return &PostgresProfessionalRepo{db: db}
}

const professionalColumns = `id, administrator_id, name, email, specialties, crm, observations, color,
       google_calendar_id, google_channel_id, google_resource_id, watch_expires_at,
       created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfessional(row rowScanner) (*model.Professional, error) {
	p := &model.Professional{}
	var watchExpiresAt sql.NullTime

	err := row.Scan(
		&p.ID, &p.AdministratorID, &p.Name, &p.Email, &p.Specialties, &p.CRM,
		&p.Observations, &p.Color,
		&p.GoogleCalendarID, &p.GoogleChannelID, &p.GoogleResourceID, &watchExpiresAt,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if watchExpiresAt.Valid {
		p.WatchExpiresAt = watchExpiresAt.Time
	}
	return p, nil
}

// FindByID は指定IDのプロフェッショナルを取得する。見つからない場合はnilを返す。
func (r *PostgresProfessionalRepo) FindByID(ctx context.Context, id string) (*model.Professional, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE id = $1`, id)
	p, err := scanProfessional(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByIDForOwner は所有者チェック付きでプロフェッショナルを取得する。
func (r *PostgresProfessionalRepo) FindByIDForOwner(ctx context.Context, id, ownerID string) (*model.Professional, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE id = $1 AND administrator_id = $2`,
		id, ownerID)
	p, err := scanProfessional(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("プロフェッショナルの取得に失敗しました: %w", err)
	}
	return p, nil
}

// FindByChannelID は通知チャネルIDでプロフェッショナルを検索する。
func (r *PostgresProfessionalRepo) FindByChannelID(ctx context.Context, channelID string) (*model.Professional, error) {
	if channelID == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals WHERE google_channel_id = $1`, channelID)
	p, err := scanProfessional(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("チャネルIDによるプロフェッショナルの検索に失敗しました: %w", err)
	}
	return p, nil
}

// ListByOwner は所有者のプロフェッショナル一覧を名前順で返す。
func (r *PostgresProfessionalRepo) ListByOwner(ctx context.Context, ownerID string) ([]*model.Professional, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals
		 WHERE administrator_id = $1 ORDER BY name ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("プロフェッショナル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("プロフェッショナル一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}

// Create はプロフェッショナルを作成する。
func (r *PostgresProfessionalRepo) Create(ctx context.Context, p *model.Professional) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO professionals (id, administrator_id, name, email, specialties, crm,
		                            observations, color, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.ID, p.AdministratorID, p.Name, p.Email, p.Specialties, p.CRM,
		p.Observations, p.Color, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("プロフェッショナルの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はプロフェッショナルの基本情報を更新する。更新対象がない場合はfalseを返す。
func (r *PostgresProfessionalRepo) Update(ctx context.Context, p *model.Professional, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE professionals SET name = $3, email = $4, specialties = $5, crm = $6,
		        observations = $7, color = $8, updated_at = $9
		 WHERE id = $1 AND administrator_id = $2`,
		p.ID, ownerID, p.Name, p.Email, p.Specialties, p.CRM,
		p.Observations, p.Color, time.Now(),
	)
	if err != nil {
		return false, fmt.Errorf("プロフェッショナルの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete は所有者チェック付きでプロフェッショナルを削除する。
func (r *PostgresProfessionalRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM professionals WHERE id = $1 AND administrator_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("プロフェッショナルの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetCalendarID は連携先のリモートカレンダーIDを設定する。
func (r *PostgresProfessionalRepo) SetCalendarID(ctx context.Context, id, calendarID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE professionals SET google_calendar_id = $2, updated_at = $3 WHERE id = $1`,
		id, calendarID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("カレンダーIDの設定に失敗しました: %w", err)
	}
	return nil
}

// UpdateWatchChannel は通知チャネルの識別子ペアをアトミックに置き換える。
func (r *PostgresProfessionalRepo) UpdateWatchChannel(ctx context.Context, id, channelID, resourceID string, expiresAt time.Time) error {
	var expires any
	if !expiresAt.IsZero() {
		expires = expiresAt
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE professionals SET google_channel_id = $2, google_resource_id = $3,
		        watch_expires_at = $4, updated_at = $5
		 WHERE id = $1`,
		id, channelID, resourceID, expires, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("通知チャネルの更新に失敗しました: %w", err)
	}
	return nil
}

// ClearIntegration は所有者配下の全プロフェッショナルの連携情報を消去する。
func (r *PostgresProfessionalRepo) ClearIntegration(ctx context.Context, ownerID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE professionals SET google_calendar_id = '', google_channel_id = '',
		        google_resource_id = '', watch_expires_at = NULL, updated_at = $2
		 WHERE administrator_id = $1`,
		ownerID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("連携情報の消去に失敗しました: %w", err)
	}
	return nil
}

// ListWatchesExpiringBefore は有効期限がdeadline以前の監視チャネルを持つ
// プロフェッショナルを返す。
func (r *PostgresProfessionalRepo) ListWatchesExpiringBefore(ctx context.Context, deadline time.Time) ([]*model.Professional, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+professionalColumns+` FROM professionals
		 WHERE google_channel_id <> '' AND watch_expires_at IS NOT NULL AND watch_expires_at <= $1`,
		deadline)
	if err != nil {
		return nil, fmt.Errorf("更新対象チャネルの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.Professional
	for rows.Next() {
		p, err := scanProfessional(rows)
		if err != nil {
			return nil, fmt.Errorf("更新対象チャネルの読み取りに失敗しました: %w", err)
		}
		list = append(list, p)
	}
	return list, rows.Err()
}
