package vision

// VisionRequest 上传识别请求（从multipart表单解析）
type VisionRequest struct {
	Question  string // 提示词，为空时使用默认提示词
	Image     []byte
	Format    string
	DeviceID  string
	ImagePath string // 上传图片的保存路径
}

// VisionResponse 上传识别响应
type VisionResponse struct {
	Success bool   `json:"success"`
	Result  string `json:"result,omitempty"`
	Message string `json:"message,omitempty"`
}
