package image

// ImageData 送往视觉模型的图片数据
type ImageData struct {
	Data   string `json:"data,omitempty"`   // base64编码的图片数据
	Format string `json:"format,omitempty"` // 图片格式：jpeg, png, webp, gif
}

// DataURI 生成 data:image/<format>;base64,<data> 形式的地址
func (d ImageData) DataURI() string {
	format := d.Format
	if format == "" {
		format = "jpeg"
	}
	return "data:image/" + format + ";base64," + d.Data
}
