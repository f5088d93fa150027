package models

import (
	"strconv"
	"time"
)

// PostureStatus 姿态分类结果
type PostureStatus string

const (
	StatusGood      PostureStatus = "GOOD"
	StatusSlouching PostureStatus = "SLOUCHING"
	StatusTooClose  PostureStatus = "TOO_CLOSE"
	StatusNoPerson  PostureStatus = "NO_PERSON"
	StatusError     PostureStatus = "ERROR"
)

// Landmark 归一化关键点坐标（0-1）
type Landmark struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Presence float64 `json:"presence"`
}

// 关键点编号（与检测服务的 33 点编号一致）
const (
	LandmarkNose          = 0
	LandmarkLeftEar       = 7
	LandmarkRightEar      = 8
	LandmarkLeftShoulder  = 11
	LandmarkRightShoulder = 12
	LandmarkLeftHip       = 23
	LandmarkRightHip      = 24
)

// Classification 单帧分类结果（创建后不可变）
type Classification struct {
	Status        PostureStatus       `json:"posture_status"`
	NeckAngle     *float64            `json:"neck_angle,omitempty"`
	TorsoAngle    *float64            `json:"torso_angle,omitempty"`
	DistanceScore *float64            `json:"distance_score,omitempty"`
	ShoulderWidth *float64            `json:"shoulder_width,omitempty"`
	Confidence    float64             `json:"confidence"`
	Landmarks     map[string]Landmark `json:"landmarks,omitempty"`
	Error         string              `json:"error,omitempty"`
}

// Landmark 按编号取关键点
func (c *Classification) Landmark(index int) (Landmark, bool) {
	if c.Landmarks == nil {
		return Landmark{}, false
	}
	lm, ok := c.Landmarks[strconv.Itoa(index)]
	return lm, ok
}

// PostureLogEntry 姿态日志（只追加）
type PostureLogEntry struct {
	ID            int64               `json:"id"`
	SessionID     int64               `json:"session_id"`
	Timestamp     time.Time           `json:"timestamp"`
	Status        PostureStatus       `json:"posture_status"`
	NeckAngle     *float64            `json:"neck_angle"`
	TorsoAngle    *float64            `json:"torso_angle"`
	DistanceScore *float64            `json:"distance_score"`
	Confidence    *float64            `json:"confidence"`
	Landmarks     map[string]Landmark `json:"landmarks,omitempty"`
}

// NewPostureLogEntry 把分类结果绑定到会话和时间戳
func NewPostureLogEntry(sessionID int64, ts time.Time, c Classification) PostureLogEntry {
	confidence := c.Confidence
	return PostureLogEntry{
		SessionID:     sessionID,
		Timestamp:     ts,
		Status:        c.Status,
		NeckAngle:     c.NeckAngle,
		TorsoAngle:    c.TorsoAngle,
		DistanceScore: c.DistanceScore,
		Confidence:    &confidence,
		Landmarks:     c.Landmarks,
	}
}

// Frame 队列中的一帧
type Frame struct {
	SessionID  int64     `json:"session_id"`
	Data       []byte    `json:"data"`
	ReceivedAt time.Time `json:"received_at"`
}

// PostureEvent 广播给实时观看端的事件
type PostureEvent struct {
	SessionID     int64               `json:"session_id"`
	Status        PostureStatus       `json:"posture_status"`
	NeckAngle     *float64            `json:"neck_angle,omitempty"`
	TorsoAngle    *float64            `json:"torso_angle,omitempty"`
	DistanceScore *float64            `json:"distance_score,omitempty"`
	Confidence    float64             `json:"confidence"`
	Landmarks     map[string]Landmark `json:"landmarks,omitempty"`
	Timestamp     float64             `json:"timestamp"`
}

// NewPostureEvent 构建广播事件（timestamp 为 unix 秒）
func NewPostureEvent(sessionID int64, ts time.Time, c Classification) PostureEvent {
	return PostureEvent{
		SessionID:     sessionID,
		Status:        c.Status,
		NeckAngle:     c.NeckAngle,
		TorsoAngle:    c.TorsoAngle,
		DistanceScore: c.DistanceScore,
		Confidence:    c.Confidence,
		Landmarks:     c.Landmarks,
		Timestamp:     float64(ts.UnixNano()) / float64(time.Second),
	}
}

// NotificationJob 通知队列任务
type NotificationJob struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Message   string    `json:"message"`
	SessionID int64     `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
}
