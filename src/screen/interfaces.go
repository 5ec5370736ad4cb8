package screen

import (
	"context"

	"rupiah-scanner/src/core/permission"
	"rupiah-scanner/src/core/scanner"

	"github.com/gin-gonic/gin"
)

// ScreenService 屏幕HTTP服务接口
type ScreenService interface {
	Start(ctx context.Context, engine *gin.Engine, apiGroup *gin.RouterGroup) error
}

// Scanner 屏幕上的拍照按钮操作的对象
type Scanner interface {
	Capture() (*scanner.Cycle, error)
	Cancel() bool
	Status() scanner.Status
}

// PermissionState 权限门当前状态
type PermissionState interface {
	State() permission.State
}
