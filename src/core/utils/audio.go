package utils

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// MP3Duration 解码MP3文件并返回音频时长
func MP3Duration(audioFile string) (time.Duration, error) {
	data, err := os.ReadFile(audioFile)
	if err != nil {
		return 0, fmt.Errorf("打开音频文件失败: %v", err)
	}
	return MP3DurationFromBytes(data)
}

// MP3DurationFromBytes 计算内存中MP3数据的时长
func MP3DurationFromBytes(data []byte) (time.Duration, error) {
	decoder, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return 0, fmt.Errorf("创建MP3解码器失败: %v", err)
	}

	sampleRate := decoder.SampleRate()
	if sampleRate <= 0 {
		return 0, fmt.Errorf("无效的MP3采样率: %d", sampleRate)
	}

	// go-mp3 解码为 16-bit little-endian stereo PCM，每个采样对4字节
	length := decoder.Length()
	if length < 0 {
		// 无法直接得到长度时读完整个流统计
		n, err := io.Copy(io.Discard, decoder)
		if err != nil {
			return 0, fmt.Errorf("读取PCM数据失败: %v", err)
		}
		length = n
	}

	samples := length / 4
	return time.Duration(samples) * time.Second / time.Duration(sampleRate), nil
}
