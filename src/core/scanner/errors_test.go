package scanner

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"rupiah-scanner/src/core/providers/vlllm"
	"rupiah-scanner/src/task"
)

func TestFailureMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "相机未就绪", err: ErrCameraNotReady, want: "Camera is not ready yet"},
		{name: "重复点击", err: ErrCycleInFlight, want: "A scan is already in progress"},
		{name: "拍照失败", err: &StageError{Stage: StageCapture, Err: errors.New("sensor")}, want: "Capture failed: sensor"},
		{name: "空响应", err: &StageError{Stage: StageRecognize, Err: vlllm.ErrEmptyResponse}, want: "Empty response from recognition service"},
		{
			name: "状态码",
			err:  &StageError{Stage: StageRecognize, Err: &vlllm.StatusError{StatusCode: 500}},
			want: "Failed to recognize notation: unexpected status 500",
		},
		{
			name: "解析失败",
			err:  &StageError{Stage: StageRecognize, Err: fmt.Errorf("%w: bad json", vlllm.ErrParse)},
			want: "Failed to parse response: failed to parse response: bad json",
		},
		{name: "超时", err: context.DeadlineExceeded, want: "Scan timed out"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := FailureMessage(tt.err); got != tt.want {
				t.Fatalf("FailureMessage() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCancelled(t *testing.T) {
	if !Cancelled(&StageError{Stage: StageRecognize, Err: context.Canceled}) {
		t.Fatalf("wrapped cancellation should be silent")
	}
	if !Cancelled(task.ErrStopped) {
		t.Fatalf("stopped executor should be silent")
	}
	if Cancelled(context.DeadlineExceeded) {
		t.Fatalf("timeouts are reported to the user")
	}
}
