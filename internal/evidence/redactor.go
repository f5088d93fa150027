package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"posture-monitor/internal/models"
)

// DefaultBlurSigma 默认模糊强度
const DefaultBlurSigma = 25.0

// ErrEmptyRegion 人脸区域与图像没有交集
var ErrEmptyRegion = errors.New("empty face region")

// RedactionError 证据截图失败（由调用方记录，不中断流水线）
type RedactionError struct {
	SessionID int64
	Err       error
}

func (e *RedactionError) Error() string {
	return fmt.Sprintf("redact evidence for session %d: %v", e.SessionID, e.Err)
}

func (e *RedactionError) Unwrap() error { return e.Err }

// Redactor 人脸打码并保存证据截图
type Redactor struct {
	store  *FileStore
	sigma  float64
	logger *zap.Logger
}

// NewRedactor 创建打码器；sigma <= 0 时使用默认值
func NewRedactor(store *FileStore, sigma float64, logger *zap.Logger) *Redactor {
	if sigma <= 0 {
		sigma = DefaultBlurSigma
	}
	return &Redactor{store: store, sigma: sigma, logger: logger}
}

// Capture 保存本帧证据；blur=true 时只模糊人脸区域
// 同一会话同一秒只保存一次，后续调用直接返回已有路径。
func (r *Redactor) Capture(ctx context.Context, sessionID int64, frame []byte, landmarks map[string]models.Landmark, blur bool, at time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &RedactionError{SessionID: sessionID, Err: err}
	}

	name := FileName(sessionID, at)
	if r.store.Exists(name) {
		return r.store.Path(name), nil
	}

	img, err := imaging.Decode(bytes.NewReader(frame))
	if err != nil {
		return "", &RedactionError{SessionID: sessionID, Err: fmt.Errorf("decode frame: %w", err)}
	}

	if blur {
		img, err = r.blurFace(img, landmarks)
		if err != nil {
			return "", &RedactionError{SessionID: sessionID, Err: err}
		}
	}

	path, created, err := r.store.Save(name, img)
	if err != nil {
		return "", &RedactionError{SessionID: sessionID, Err: err}
	}
	if created {
		r.logger.Debug("Evidence saved",
			zap.Int64("session_id", sessionID),
			zap.String("path", path),
			zap.Bool("blurred", blur),
		)
	}
	return path, nil
}

func (r *Redactor) blurFace(img image.Image, landmarks map[string]models.Landmark) (image.Image, error) {
	b := img.Bounds()
	region := FaceRegion(b.Dx(), b.Dy(), landmarks)
	if region.Empty() {
		return nil, ErrEmptyRegion
	}
	// FaceRegion 以 (0,0) 为原点，解码后的图像不一定
	region = region.Add(b.Min)

	blurred := imaging.Blur(imaging.Crop(img, region), r.sigma)
	return imaging.Paste(img, blurred, region.Min), nil
}
