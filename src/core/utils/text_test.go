package utils

import (
	"testing"
)

func TestSpeechText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "普通识别结果",
			input:    "Ada selembar 1000 rupiah dan 2000 rupiah, total 3000 rupiah",
			expected: "Ada selembar 1000 rupiah dan 2000 rupiah, total 3000 rupiah",
		},
		{
			name:     "加粗数字",
			input:    "Ada selembar **50000** rupiah",
			expected: "Ada selembar 50000 rupiah",
		},
		{
			name:     "标题和列表",
			input:    "# Hasil\n> 2 lembar 5000 rupiah",
			expected: "Hasil 2 lembar 5000 rupiah",
		},
		{
			name:     "表情符号",
			input:    "Total 3000 rupiah 💰✅",
			expected: "Total 3000 rupiah",
		},
		{
			name:     "保留小数点和连字符",
			input:    "Rp1.000 - Rp2.000",
			expected: "Rp1.000 - Rp2.000",
		},
		{
			name:     "多余空白",
			input:    "  Ada   selembar\n\n1000 rupiah  ",
			expected: "Ada selembar 1000 rupiah",
		},
		{
			name:     "只有符号时返回原文",
			input:    "***",
			expected: "***",
		},
		{
			name:     "空字符串",
			input:    "",
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := SpeechText(tt.input)
			if result != tt.expected {
				t.Errorf("SpeechText(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

// 基准测试
func BenchmarkSpeechText(b *testing.B) {
	testString := "Ada **selembar** 1000 rupiah dan 2000 rupiah, total 3000 rupiah 💰"

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		SpeechText(testString)
	}
}
