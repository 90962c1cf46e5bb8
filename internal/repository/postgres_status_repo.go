package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/bookman/internal/model"
)

// PostgresStatusRepo はPostgreSQLを使用したカンバンステータスリポジトリ。
type PostgresStatusRepo struct {
	db *sql.DB
}

// NewPostgresStatusRepo はPostgresStatusRepoを生成する。
func NewPostgresStatusRepo(db *sql.DB) *PostgresStatusRepo {
	return &PostgresStatusRepo{db: db}
}

const statusColumns = `id, user_id, name, color, sort_order`

func scanStatus(row rowScanner) (*model.KanbanStatus, error) {
	s := &model.KanbanStatus{}
	if err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Color, &s.SortOrder); err != nil {
		return nil, err
	}
	return s, nil
}

// FindByID は指定IDのステータスを取得する。見つからない場合はnilを返す。
func (r *PostgresStatusRepo) FindByID(ctx context.Context, id string) (*model.KanbanStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM kanban_statuses WHERE id = $1`, id)
	s, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ステータスの取得に失敗しました: %w", err)
	}
	return s, nil
}

// FindDefault は所有者のデフォルトステータス（sort_order最小）を返す。
// ひとつも存在しない場合はnilを返す。
func (r *PostgresStatusRepo) FindDefault(ctx context.Context, ownerID string) (*model.KanbanStatus, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+statusColumns+` FROM kanban_statuses
		 WHERE user_id = $1 ORDER BY sort_order ASC, id ASC LIMIT 1`, ownerID)
	s, err := scanStatus(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("デフォルトステータスの取得に失敗しました: %w", err)
	}
	return s, nil
}

// List は所有者のステータス一覧をsort_order順で返す。
func (r *PostgresStatusRepo) List(ctx context.Context, ownerID string) ([]*model.KanbanStatus, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+statusColumns+` FROM kanban_statuses
		 WHERE user_id = $1 ORDER BY sort_order ASC, id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("ステータス一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var list []*model.KanbanStatus
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ステータス一覧の読み取りに失敗しました: %w", err)
		}
		list = append(list, s)
	}
	return list, rows.Err()
}

// Create はステータスを作成する。
func (r *PostgresStatusRepo) Create(ctx context.Context, s *model.KanbanStatus) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO kanban_statuses (id, user_id, name, color, sort_order)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.ID, s.UserID, s.Name, s.Color, s.SortOrder,
	)
	if err != nil {
		return fmt.Errorf("ステータスの作成に失敗しました: %w", err)
	}
	return nil
}

// Update は所有者チェック付きでステータスを更新する。
func (r *PostgresStatusRepo) Update(ctx context.Context, s *model.KanbanStatus, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE kanban_statuses SET name = $3, color = $4
		 WHERE id = $1 AND user_id = $2`,
		s.ID, ownerID, s.Name, s.Color,
	)
	if err != nil {
		return false, fmt.Errorf("ステータスの更新に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete は所有者チェック付きでステータスを削除する。
func (r *PostgresStatusRepo) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM kanban_statuses WHERE id = $1 AND user_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("ステータスの削除に失敗しました: %w", err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Reorder は与えられたID順でsort_orderを振り直す。
func (r *PostgresStatusRepo) Reorder(ctx context.Context, ownerID string, orderedIDs []string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	for i, id := range orderedIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE kanban_statuses SET sort_order = $3 WHERE id = $1 AND user_id = $2`,
			id, ownerID, i); err != nil {
			return fmt.Errorf("並び順の更新に失敗しました: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}
