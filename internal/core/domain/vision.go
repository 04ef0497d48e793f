package domain

// VisionConfig describes how a vision-language model tiles its input image
// into patches. PatchSize and ImageSize are in pixels; UseCLSToken marks
// models that prepend a CLS position to the vision token stream, which must
// be dropped before mapping attention onto the patch grid.
type VisionConfig struct {
	PatchSize   int  `json:"patch_size"`
	ImageSize   int  `json:"image_size"`
	UseCLSToken bool `json:"use_cls_token"`
}

// GridSide returns the patch grid dimension, or 0 when the config cannot
// produce one.
func (c VisionConfig) GridSide() int {
	if c.PatchSize <= 0 || c.ImageSize <= 0 {
		return 0
	}
	return c.ImageSize / c.PatchSize
}

func (c VisionConfig) Valid() bool { return c.GridSide() > 0 }
