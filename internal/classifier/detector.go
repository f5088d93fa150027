package classifier

import (
	"context"
	"errors"

	"posture-monitor/internal/models"
)

var (
	// ErrDetectorUnavailable 检测服务不可用
	ErrDetectorUnavailable = errors.New("pose detector unavailable")
	// ErrNoPerson 画面中没有检测到人
	ErrNoPerson = errors.New("no person detected in frame")
)

// Pose 检测服务返回的一组关键点（按编号排列）
type Pose struct {
	Landmarks []models.Landmark `json:"landmarks"`
}

// Detector 外部姿态关键点检测能力（无状态，可并发调用）
type Detector interface {
	Detect(ctx context.Context, frame []byte) (*Pose, error)
}
