package vlllm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "语法错误", err: &json.SyntaxError{Offset: 3}, want: ErrParse},
		{name: "截断", err: io.ErrUnexpectedEOF, want: ErrParse},
		{name: "空响应体", err: fmt.Errorf("decode: %w", io.EOF), want: ErrParse},
		{name: "连接失败", err: errors.New("dial tcp: connection refused"), want: ErrNetwork},
		{name: "取消", err: fmt.Errorf("post: %w", context.Canceled), want: context.Canceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyError(tt.err); !errors.Is(got, tt.want) {
				t.Fatalf("ClassifyError(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}

	statusErr := &StatusError{StatusCode: 502}
	if got := ClassifyError(statusErr); got != statusErr {
		t.Fatalf("status errors must pass through unchanged")
	}
}
