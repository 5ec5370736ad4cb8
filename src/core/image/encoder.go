package image

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"

	_ "image/gif" // 注册GIF解码器
	_ "image/png" // 注册PNG解码器

	_ "golang.org/x/image/bmp"  // 注册BMP解码器
	_ "golang.org/x/image/webp" // 注册WEBP解码器
)

// JPEGQuality 编码质量固定为最高
const JPEGQuality = 100

// ErrUnknownFormat 文件头不是支持的图片格式
var ErrUnknownFormat = errors.New("不支持的图片格式")

// Decode 读取并解码拍摄的图片文件
func Decode(path string) (image.Image, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("读取图片文件失败: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes 解码内存中的图片
func DecodeBytes(data []byte) (image.Image, string, error) {
	if DetectFormat(data) == "" {
		return nil, "", ErrUnknownFormat
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("解码图片失败: %w", err)
	}
	return img, format, nil
}

// Encode 将图片以最高质量压缩为JPEG并返回不换行的标准base64字符串；同一图片多次编码结果一致
func Encode(img image.Image) (string, error) {
	if img == nil {
		return "", errors.New("图片为空")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return "", fmt.Errorf("JPEG编码失败: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}
