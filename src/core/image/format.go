package image

import "bytes"

// 图片格式魔数签名
var imageSignatures = []struct {
	format    string
	signature []byte
}{
	{"jpeg", []byte{0xFF, 0xD8}},
	{"png", []byte{0x89, 0x50, 0x4E, 0x47, 0x0D, 0x0A, 0x1A, 0x0A}},
	{"gif", []byte("GIF87a")},
	{"gif", []byte("GIF89a")},
	{"bmp", []byte{0x42, 0x4D}},
}

// DetectFormat 根据文件头检测图片格式，无法识别时返回空字符串
func DetectFormat(data []byte) string {
	for _, sig := range imageSignatures {
		if bytes.HasPrefix(data, sig.signature) {
			return sig.format
		}
	}
	// WEBP: RIFF....WEBP
	if len(data) >= 12 && bytes.Equal(data[0:4], []byte("RIFF")) && bytes.Equal(data[8:12], []byte("WEBP")) {
		return "webp"
	}
	return ""
}
