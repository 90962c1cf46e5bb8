package gcal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// defaultCalendarBaseURL はGoogleカレンダーAPIのベースURL。
const defaultCalendarBaseURL = "https://www.googleapis.com/calendar/v3"

// RemoteEvent はカレンダーAPI上のイベント表現。
type RemoteEvent struct {
	ID          string     `json:"id,omitempty"`
	Status      string     `json:"status,omitempty"`
	Summary     string     `json:"summary,omitempty"`
	Description string     `json:"description,omitempty"`
	Start       *EventTime `json:"start,omitempty"`
	End         *EventTime `json:"end,omitempty"`
}

// EventTime はイベントの開始・終了時刻。終日イベントはDateのみを持つ。
type EventTime struct {
	DateTime string `json:"dateTime,omitempty"`
	Date     string `json:"date,omitempty"`
	TimeZone string `json:"timeZone,omitempty"`
}

// Cancelled はリモート側で削除済み（キャンセル）のイベントかを返す。
func (e *RemoteEvent) Cancelled() bool {
	return e.Status == "cancelled"
}

// Time はEventTimeを時刻にパースする。DateTimeが無い終日イベントはゼロ値を返す。
func (e *EventTime) Time() (time.Time, error) {
	if e == nil || e.DateTime == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, e.DateTime)
}

// WatchInfo は監視チャネル登録の結果。
type WatchInfo struct {
	ResourceID string
	Expiration time.Time
}

// Client はGoogleカレンダーAPIのRESTクライアント。
// TokenManagerが発行した有効なアクセストークンを保持する。
type Client struct {
	httpClient  *http.Client
	logger      *slog.Logger
	accessToken string
	baseURL     string // テスト用にベースURLを差し替え可能
	now         func() time.Time
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, accessToken string) *Client {
	return &Client{
		httpClient:  httpClient,
		logger:      logger,
		accessToken: accessToken,
		baseURL:     defaultCalendarBaseURL,
		now:         time.Now,
	}
}

// do はAPIリクエストを実行してレスポンスボディを返す。
func (c *Client) do(ctx context.Context, method, apiURL string, payload any) (int, []byte, error) {
	var body io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, fmt.Errorf("リクエストボディの生成に失敗しました: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, body)
	if err != nil {
		return 0, nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("カレンダーAPIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return resp.StatusCode, respBody, nil
}

// ListUpcomingEvents は現在時刻以降のイベントを取得する。
// 繰り返しイベントは個別インスタンスに展開し、削除済み（キャンセル）イベントも
// 含めて返す。取り込み側がキャンセルをローカル削除に変換するために必要。
func (c *Client) ListUpcomingEvents(ctx context.Context, calendarID string) ([]*RemoteEvent, error) {
	params := url.Values{
		"singleEvents": {"true"},
		"orderBy":      {"startTime"},
		"timeMin":      {c.now().UTC().Format(time.RFC3339)},
		"showDeleted":  {"true"},
		"maxResults":   {"2500"},
	}
	apiURL := fmt.Sprintf("%s/calendars/%s/events?%s",
		c.baseURL, url.PathEscape(calendarID), params.Encode())

	status, body, err := c.do(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("イベント一覧の取得がステータス %d で失敗しました: %s", status, string(body))
	}

	var result struct {
		Items []*RemoteEvent `json:"items"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("イベント一覧のパースに失敗しました: %w", err)
	}
	return result.Items, nil
}

// InsertEvent はカレンダーにイベントを作成し、採番されたイベントIDを含む結果を返す。
func (c *Client) InsertEvent(ctx context.Context, calendarID string, ev *RemoteEvent) (*RemoteEvent, error) {
	apiURL := fmt.Sprintf("%s/calendars/%s/events", c.baseURL, url.PathEscape(calendarID))

	status, body, err := c.do(ctx, http.MethodPost, apiURL, ev)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("イベントの作成がステータス %d で失敗しました: %s", status, string(body))
	}

	created := &RemoteEvent{}
	if err := json.Unmarshal(body, created); err != nil {
		return nil, fmt.Errorf("作成イベントのパースに失敗しました: %w", err)
	}
	return created, nil
}

// DeleteEvent はカレンダーからイベントを削除する。
// 対象がすでに存在しない場合（404/410）は成功として扱う。
func (c *Client) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	apiURL := fmt.Sprintf("%s/calendars/%s/events/%s",
		c.baseURL, url.PathEscape(calendarID), url.PathEscape(eventID))

	status, body, err := c.do(ctx, http.MethodDelete, apiURL, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound, http.StatusGone:
		// すでにリモート側で消えている。目的の状態に到達済み
		return nil
	default:
		return fmt.Errorf("イベントの削除がステータス %d で失敗しました: %s", status, string(body))
	}
}

// Watch はカレンダーのプッシュ通知チャネルを登録する。
// addressは通知を受けるWebhookエンドポイントのURL。
func (c *Client) Watch(ctx context.Context, calendarID, channelID, address string) (*WatchInfo, error) {
	apiURL := fmt.Sprintf("%s/calendars/%s/events/watch", c.baseURL, url.PathEscape(calendarID))

	payload := map[string]string{
		"id":      channelID,
		"type":    "web_hook",
		"address": address,
	}
	status, body, err := c.do(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("監視チャネルの登録がステータス %d で失敗しました: %s", status, string(body))
	}

	var result struct {
		ResourceID string `json:"resourceId"`
		Expiration string `json:"expiration"` // エポックミリ秒の文字列
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("監視チャネル応答のパースに失敗しました: %w", err)
	}
	if result.ResourceID == "" {
		return nil, fmt.Errorf("監視チャネル応答にresourceIdが含まれていません")
	}

	info := &WatchInfo{ResourceID: result.ResourceID}
	if ms, err := strconv.ParseInt(result.Expiration, 10, 64); err == nil {
		info.Expiration = time.UnixMilli(ms)
	}
	return info, nil
}

// StopChannel は監視チャネルを停止する。
// チャネルがすでに失効している場合（404）は成功として扱う。
func (c *Client) StopChannel(ctx context.Context, channelID, resourceID string) error {
	apiURL := c.baseURL + "/channels/stop"

	payload := map[string]string{
		"id":         channelID,
		"resourceId": resourceID,
	}
	status, body, err := c.do(ctx, http.MethodPost, apiURL, payload)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return nil
	default:
		return fmt.Errorf("監視チャネルの停止がステータス %d で失敗しました: %s", status, string(body))
	}
}
