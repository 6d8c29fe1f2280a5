package middleware

import "regexp"

// redactionMarker は秘匿情報の置換後マーカー。
// マーカー自身はどの検出パターンにもマッチしないため、再サニタイズは冪等になる。
const redactionMarker = "[REDACTED]"

// sanitizePatterns はエラーメッセージから秘匿すべき部分文字列の検出パターン。
// 接続文字列を最初に処理し、残骸がキーワードパターンで二重置換されるのを防ぐ。
var sanitizePatterns = []*regexp.Regexp{
	// DB接続文字列（認証情報を含みうる）
	regexp.MustCompile(`(?i)(postgres(ql)?|mysql|mongodb(\+srv)?|redis)://\S+`),
	// Ethereumアドレス形状の16進文字列
	regexp.MustCompile(`0x[0-9a-fA-F]{40}`),
	// UUID形状の文字列
	regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
	// 秘匿キーワードとその直後に連なる値
	regexp.MustCompile(`(?i)(password|secret|token|key)\S*`),
}

// SanitizeErrorMessage はエラーメッセージ中の秘匿情報を固定マーカーに置換する。
// ベストエフォートの部分文字列検出であり、構造的な秘匿保証ではない。
func SanitizeErrorMessage(message string) string {
	for _, pattern := range sanitizePatterns {
		message = pattern.ReplaceAllString(message, redactionMarker)
	}
	return message
}
