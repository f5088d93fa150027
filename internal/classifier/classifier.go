package classifier

import (
	"bytes"
	"context"
	"errors"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"strconv"

	"posture-monitor/internal/models"

	"go.uber.org/zap"
)

// Thresholds 分类阈值（可通过配置调整）
type Thresholds struct {
	// TooCloseDistance 距离代理值（肩宽/参考肩宽）超过该值判定 TOO_CLOSE
	TooCloseDistance float64
	// MinNeckAngle 耳-肩中点-髋中点夹角（度）低于该值判定 SLOUCHING
	MinNeckAngle float64
	// MinTorsoAngle 肩中点-髋中点-垂直参考点夹角（度）低于该值判定 SLOUCHING
	MinTorsoAngle float64
	// ReferenceShoulderWidth 理想距离下的归一化肩宽
	ReferenceShoulderWidth float64
	// VerticalReferenceOffset 垂直参考点相对髋中点的向下偏移（归一化）
	VerticalReferenceOffset float64
}

// DefaultThresholds 当前产品使用的阈值
func DefaultThresholds() Thresholds {
	return Thresholds{
		TooCloseDistance:        1.4,
		MinNeckAngle:            155,
		MinTorsoAngle:           70,
		ReferenceShoulderWidth:  0.20,
		VerticalReferenceOffset: 0.2,
	}
}

// 广播和日志里保留的关键点
var skeletonIndices = []int{
	models.LandmarkNose,
	models.LandmarkLeftEar,
	models.LandmarkRightEar,
	models.LandmarkLeftShoulder,
	models.LandmarkRightShoulder,
	models.LandmarkLeftHip,
	models.LandmarkRightHip,
}

// Classifier 分类适配器：frame → Classification
type Classifier interface {
	Classify(ctx context.Context, frame []byte) models.Classification
}

// Adapter 把外部检测能力包装为稳定的分类契约
type Adapter struct {
	detector   Detector
	thresholds Thresholds
	logger     *zap.Logger
}

// NewAdapter 创建分类适配器；detector 为 nil 时所有帧返回 ERROR
func NewAdapter(detector Detector, thresholds Thresholds, logger *zap.Logger) *Adapter {
	return &Adapter{
		detector:   detector,
		thresholds: thresholds,
		logger:     logger,
	}
}

// Classify 对一帧做姿态分类，任何失败都降级为 NO_PERSON/ERROR，不返回错误
func (a *Adapter) Classify(ctx context.Context, frame []byte) models.Classification {
	if a.detector == nil {
		return degraded(models.StatusError, "pose detector not initialized")
	}
	if len(frame) == 0 {
		return degraded(models.StatusNoPerson, "empty frame")
	}
	if _, _, err := image.DecodeConfig(bytes.NewReader(frame)); err != nil {
		return degraded(models.StatusNoPerson, "failed to decode frame")
	}

	pose, err := a.detector.Detect(ctx, frame)
	switch {
	case errors.Is(err, ErrNoPerson):
		return degraded(models.StatusNoPerson, "no person detected in frame")
	case err != nil:
		a.logger.Warn("Pose detection failed", zap.Error(err))
		return degraded(models.StatusError, err.Error())
	case pose == nil || len(pose.Landmarks) <= models.LandmarkRightHip:
		return degraded(models.StatusNoPerson, "no person detected in frame")
	}

	return a.classifyPose(pose)
}

func (a *Adapter) classifyPose(pose *Pose) models.Classification {
	lm := pose.Landmarks
	pt := func(i int) Point { return Point{X: lm[i].X, Y: lm[i].Y} }

	leftShoulder := pt(models.LandmarkLeftShoulder)
	rightShoulder := pt(models.LandmarkRightShoulder)
	shoulderMid := Midpoint(leftShoulder, rightShoulder)
	hipMid := Midpoint(pt(models.LandmarkLeftHip), pt(models.LandmarkRightHip))

	// 颈部：耳 → 肩中点 → 髋中点，坐直时接近 180°
	neckRaw := CalculateAngle(pt(models.LandmarkLeftEar), shoulderMid, hipMid)

	// 躯干：肩中点 → 髋中点 → 髋中点正下方的参考点
	verticalRef := Point{X: hipMid.X, Y: hipMid.Y + a.thresholds.VerticalReferenceOffset}
	torsoRaw := CalculateAngle(shoulderMid, hipMid, verticalRef)

	shoulderWidth := math.Abs(leftShoulder.X - rightShoulder.X)
	distance := shoulderWidth / a.thresholds.ReferenceShoulderWidth

	var presence float64
	for _, l := range lm {
		presence += l.Presence
	}
	confidence := presence / float64(len(lm))

	skeleton := make(map[string]models.Landmark, len(skeletonIndices))
	for _, idx := range skeletonIndices {
		skeleton[strconv.Itoa(idx)] = lm[idx]
	}

	neck := 180 - neckRaw
	torso := math.Abs(90 - torsoRaw)

	return models.Classification{
		Status:        a.classify(neckRaw, torsoRaw, distance),
		NeckAngle:     &neck,
		TorsoAngle:    &torso,
		DistanceScore: &distance,
		ShoulderWidth: &shoulderWidth,
		Confidence:    confidence,
		Landmarks:     skeleton,
	}
}

// classify 按顺序匹配：距离 → 颈部 → 躯干
func (a *Adapter) classify(neckAngle, torsoAngle, distance float64) models.PostureStatus {
	if distance > a.thresholds.TooCloseDistance {
		return models.StatusTooClose
	}
	if neckAngle < a.thresholds.MinNeckAngle {
		return models.StatusSlouching
	}
	if torsoAngle < a.thresholds.MinTorsoAngle {
		return models.StatusSlouching
	}
	return models.StatusGood
}

func degraded(status models.PostureStatus, reason string) models.Classification {
	return models.Classification{
		Status:     status,
		Confidence: 0.0,
		Error:      reason,
	}
}
