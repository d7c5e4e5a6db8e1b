// Package sanitize 清洗用户输入的文本。
package sanitize

import (
	"regexp"
	"strings"
)

// Redacted 是 SanitizeStrict 替换可疑 SQL 片段时使用的标记。
const Redacted = "[REDACTED]"

var (
	tagPattern    = regexp.MustCompile(`<[^>]+>`)
	unsafePattern = regexp.MustCompile(`[<>"']`)

	// 数字和引号比较以单词边界结尾，避免替换后与后续字母拼出新的关键字
	sqlPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(SELECT|INSERT|UPDATE|DELETE|DROP|CREATE|ALTER)\b`),
		regexp.MustCompile(`(?i)\b(UNION|WHERE|FROM|JOIN)\b`),
		regexp.MustCompile(`(?i)\b(OR|AND)\b\s+\d+\s*=\s*\d+\b`),
		regexp.MustCompile(`(?i)\b(OR|AND)\b\s+'[^']*'\s*=\s*'[^']*'`),
	}
)

// Sanitize 删除 <...> 标签，再删除剩余的 < > " ' 字符，最后去掉首尾空白。
// 对任意输入都有定义，且 Sanitize(Sanitize(x)) == Sanitize(x)。
func Sanitize(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	text = unsafePattern.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// SanitizeStrict 删除标签后把 SQL 关键字和恒真比较替换为 Redacted。
// 引号保留，以便识别 OR 'a'='a' 这样的片段。用于审计检索等直接拼接查询条件的输入。
func SanitizeStrict(text string) string {
	text = tagPattern.ReplaceAllString(text, "")
	for _, p := range sqlPatterns {
		text = p.ReplaceAllString(text, Redacted)
	}
	return strings.TrimSpace(text)
}
