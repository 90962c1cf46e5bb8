// Package sync はローカルの予約ストアとリモートカレンダーの双方向同期を提供する。
// プッシュ通知を起点とする取り込み照合、ローカル変更のリモート反映、
// 監視チャネルのライフサイクル管理を含む。
package sync

import (
	"context"

	"github.com/hitoshi/bookman/internal/gcal"
)

// CalendarAPI はリモートカレンダーAPIの操作インターフェース。
// テスタビリティのためgcal.Clientを抽象化する。
type CalendarAPI interface {
	ListUpcomingEvents(ctx context.Context, calendarID string) ([]*gcal.RemoteEvent, error)
	InsertEvent(ctx context.Context, calendarID string, ev *gcal.RemoteEvent) (*gcal.RemoteEvent, error)
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	Watch(ctx context.Context, calendarID, channelID, address string) (*gcal.WatchInfo, error)
	StopChannel(ctx context.Context, channelID, resourceID string) error
}

// ClientProvider はテナント単位の認証済みカレンダークライアントを提供する。
type ClientProvider interface {
	// ClientFor は指定テナントのクライアントを返す。
	// 未連携の場合はgcal.ErrNoCredentials、トークン失効時はgcal.ErrInvalidGrantを返す。
	ClientFor(ctx context.Context, ownerID string) (CalendarAPI, error)
}

// TokenClientProvider はgcal.TokenManagerをClientProviderに適合させる。
type TokenClientProvider struct {
	tokens *gcal.TokenManager
}

// NewTokenClientProvider はTokenClientProviderを生成する。
func NewTokenClientProvider(tokens *gcal.TokenManager) *TokenClientProvider {
	return &TokenClientProvider{tokens: tokens}
}

// ClientFor は指定テナントの認証済みクライアントを返す。
func (p *TokenClientProvider) ClientFor(ctx context.Context, ownerID string) (CalendarAPI, error) {
	client, err := p.tokens.ClientFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return client, nil
}
