// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は予約のクライアント名・備考などの自由入力フィールドを
// サニタイズする。フィールドはAPIからの入力に加えてリモートカレンダーの
// 取り込みでも流入するため、保存前に必ずタグとイベント属性を除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService はテキストのサニタイズ機能のインターフェースを定義する。
// イベントの保存前およびリモートカレンダーからの取り込み時に使用される。
type TextSanitizerService interface {
	// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
	// 備考やクライアント名に書式は不要であり、許可タグは存在しない。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// bluemondayのStrictPolicyを保持し、スレッドセーフにサニタイズ処理を行う。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
// StrictPolicyは許可タグを一切持たず、script・iframe・style等のタグと
// on*イベント属性を含むすべてのマークアップを除去する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize は入力からすべてのHTMLタグを除去したプレーンテキストを返す。
// bluemondayはタグ除去後のテキストをエスケープして返すため、
// 保存用のプレーンテキストとしてエスケープを解除する。
func (s *textSanitizer) Sanitize(raw string) string {
	cleaned := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(cleaned))
}
