// Package security はアプリケーションのセキュリティ機能を提供する。
//
// TextSanitizerService は投稿のプロンプト・タイトルなどの自由入力テキストを
// 保存前にサニタイズする。カタログはプレーンテキストのみを保持するため、
// bluemondayのStrictPolicyで全HTMLタグを除去する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizerService は自由入力テキストのサニタイズ機能のインターフェースを定義する。
type TextSanitizerService interface {
	// Sanitize はHTMLタグをすべて除去したプレーンテキストを返す。
	// 前後の空白は取り除かれる。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// textSanitizer はTextSanitizerServiceの実装。
// StrictPolicyはスレッドセーフなので全ゴルーチンで共有できる。
type textSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerServiceの新しいインスタンスを生成する。
func NewTextSanitizer() *textSanitizer {
	return &textSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はHTMLタグをすべて除去したプレーンテキストを返す。
// StrictPolicyはエンティティ参照にエスケープするため、
// 保存用のプレーンテキストに戻すためアンエスケープする。
func (s *textSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(raw)))
}
