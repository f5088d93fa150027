package evidence

import (
	"image"
	"math"
	"strconv"

	"posture-monitor/internal/models"
)

const (
	// MinFaceHalfWidth 人脸框半宽下限（占图像宽度比例）
	MinFaceHalfWidth = 0.10
	// FallbackFaceHalfWidth 缺少耳朵关键点时的半宽（占图像宽度比例）
	FallbackFaceHalfWidth = 0.15
)

// FaceRegion 计算需要模糊的人脸区域（像素坐标，已裁剪到图像范围内）
// 双耳都存在时半宽为两耳水平距离 × 宽度（不小于 10% 宽度），否则取 15% 宽度；
// 区域以鼻子为中心，缺少鼻子时以图像中心为中心。
func FaceRegion(width, height int, landmarks map[string]models.Landmark) image.Rectangle {
	bounds := image.Rect(0, 0, width, height)
	if width <= 0 || height <= 0 {
		return image.Rectangle{}
	}
	w := float64(width)
	h := float64(height)

	half := FallbackFaceHalfWidth * w
	left, okL := landmarks[strconv.Itoa(models.LandmarkLeftEar)]
	right, okR := landmarks[strconv.Itoa(models.LandmarkRightEar)]
	if okL && okR {
		half = math.Max(math.Abs(left.X-right.X)*w, MinFaceHalfWidth*w)
	}

	cx, cy := w/2, h/2
	if nose, ok := landmarks[strconv.Itoa(models.LandmarkNose)]; ok {
		cx, cy = nose.X*w, nose.Y*h
	}

	r := image.Rect(
		int(math.Round(cx-half)),
		int(math.Round(cy-half)),
		int(math.Round(cx+half)),
		int(math.Round(cy+half)),
	)
	return r.Intersect(bounds)
}
