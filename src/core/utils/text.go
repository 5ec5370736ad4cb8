package utils

import (
	"regexp"
	"strings"
)

var (
	// 模型偶尔会用Markdown强调数字，朗读前去掉这些符号
	markdownChars = regexp.MustCompile(`[\*#_` + "`" + `~>|\[\]{}\\]`)

	// 简化版表情符号正则表达式
	simpleEmojiRegex = regexp.MustCompile(`[\x{1F000}-\x{1FFFF}]|` +
		`[\x{2600}-\x{26FF}]|` + // 杂项符号
		`[\x{2700}-\x{27BF}]`) // 装饰符号

	spaces = regexp.MustCompile(`\s+`)
)

// RemoveMarkdownSyntax 去掉Markdown符号，保留数字、字母和常用标点
func RemoveMarkdownSyntax(text string) string {
	return markdownChars.ReplaceAllString(text, " ")
}

func RemoveAllEmoji(text string) string {
	return simpleEmojiRegex.ReplaceAllString(text, "")
}

// SpeechText 把识别结果整理为适合朗读的文本；结果为空时返回原文
func SpeechText(text string) string {
	cleaned := RemoveAllEmoji(RemoveMarkdownSyntax(text))
	cleaned = strings.TrimSpace(spaces.ReplaceAllString(cleaned, " "))
	if cleaned == "" {
		return text
	}
	return cleaned
}
