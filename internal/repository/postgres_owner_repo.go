package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresOwnerRepo はPostgreSQLを使用したアカウントリポジトリ。
type PostgresOwnerRepo struct {
	db *sql.DB
}

// NewPostgresOwnerRepo はPostgresOwnerRepoを生成する。
func NewPostgresOwnerRepo(db *sql.DB) *PostgresOwnerRepo {
	return &PostgresOwnerRepo{db: db}
}

const ownerColumns = `id, name, email, password_hash, role, api_key, timezone,
       webhook_url, webhook_enabled,
       google_access_token, google_refresh_token, google_user_email,
       created_at, updated_at`

func scanOwner(row *sql.Row) (*model.Owner, error) {
	o := &model.Owner{}
	err := row.Scan(
		&o.ID, &o.Name, &o.Email, &o.PasswordHash, &o.Role, &o.APIKey, &o.TimeZone,
		&o.WebhookURL, &o.WebhookEnabled,
		&o.GoogleAccessToken, &o.GoogleRefreshToken, &o.GoogleUserEmail,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("アカウントの取得に失敗しました: %w", err)
	}
	return o, nil
}

// FindByID は指定IDのアカウントを取得する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByID(ctx context.Context, id string) (*model.Owner, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM users WHERE id = $1`, id)
	return scanOwner(row)
}

// FindByEmail はメールアドレスでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByEmail(ctx context.Context, email string) (*model.Owner, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM users WHERE email = $1`, email)
	return scanOwner(row)
}

// FindByAPIKey はAPIキーでアカウントを検索する。見つからない場合はnilを返す。
func (r *PostgresOwnerRepo) FindByAPIKey(ctx context.Context, apiKey string) (*model.Owner, error) {
	if apiKey == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+ownerColumns+` FROM users WHERE api_key = $1`, apiKey)
	return scanOwner(row)
}

// Count は登録済みアカウント数を返す。
func (r *PostgresOwnerRepo) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count); err != nil {
		return 0, fmt.Errorf("アカウント数の取得に失敗しました: %w", err)
	}
	return count, nil
}

// Create はアカウントを作成する。
func (r *PostgresOwnerRepo) Create(ctx context.Context, owner *model.Owner) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, name, email, password_hash, role, api_key, timezone, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		owner.ID, owner.Name, owner.Email, owner.PasswordHash, owner.Role,
		owner.APIKey, owner.TimeZone, owner.CreatedAt, owner.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("アカウントの作成に失敗しました: %w", err)
	}
	return nil
}

// UpdateTimeZone はアカウントのタイムゾーン設定を更新する。
func (r *PostgresOwnerRepo) UpdateTimeZone(ctx context.Context, id, timezone string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET timezone = $2, updated_at = $3 WHERE id = $1`,
		id, timezone, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("タイムゾーンの更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateWebhookSettings はテナントWebhookの配信先と有効フラグを更新する。
func (r *PostgresOwnerRepo) UpdateWebhookSettings(ctx context.Context, id, webhookURL string, enabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET webhook_url = $2, webhook_enabled = $3, updated_at = $4 WHERE id = $1`,
		id, webhookURL, enabled, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("Webhook設定の更新に失敗しました: %w", err)
	}
	return nil
}

// UpdateAPIKey はAPIキーを更新する。
func (r *PostgresOwnerRepo) UpdateAPIKey(ctx context.Context, id, apiKey string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET api_key = $2, updated_at = $3 WHERE id = $1`,
		id, apiKey, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("APIキーの更新に失敗しました: %w", err)
	}
	return nil
}

// SaveGoogleTokens はトークンローテーション時に新しいトークンを永続化する。
// refreshTokenが空の場合はアクセストークンのみを更新する。
func (r *PostgresOwnerRepo) SaveGoogleTokens(ctx context.Context, id, accessToken, refreshToken string) error {
	var err error
	if refreshToken != "" {
		_, err = r.db.ExecContext(ctx,
			`UPDATE users SET google_access_token = $2, google_refresh_token = $3, updated_at = $4 WHERE id = $1`,
			id, accessToken, refreshToken, time.Now(),
		)
	} else {
		_, err = r.db.ExecContext(ctx,
			`UPDATE users SET google_access_token = $2, updated_at = $3 WHERE id = $1`,
			id, accessToken, time.Now(),
		)
	}
	if err != nil {
		return fmt.Errorf("Googleトークンの保存に失敗しました: %w", err)
	}
	return nil
}

// SetGoogleAccount はOAuthコールバックで取得した認証情報一式を保存する。
func (r *PostgresOwnerRepo) SetGoogleAccount(ctx context.Context, id, accessToken, refreshToken, email string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_access_token = $2, google_refresh_token = $3,
		        google_user_email = $4, updated_at = $5
		 WHERE id = $1`,
		id, accessToken, refreshToken, email, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("Googleアカウント情報の保存に失敗しました: %w", err)
	}
	return nil
}

// ClearGoogleAccount は保存済みのGoogle認証情報をすべて消去する。
func (r *PostgresOwnerRepo) ClearGoogleAccount(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET google_access_token = '', google_refresh_token = '',
		        google_user_email = '', updated_at = $2
		 WHERE id = $1`,
		id, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("Google認証情報の消去に失敗しました: %w", err)
	}
	return nil
}
