package analytics

import (
	"math"
	"sort"
	"time"

	"posture-monitor/internal/models"
)

const (
	// PauseGap 相邻日志间隔达到该值视为暂停，不计入驼背时长
	PauseGap = 30 * time.Second
	// LongStreak 最长驼背连击超过该值时提醒休息
	LongStreak = 300 * time.Second
	// TrendTolerance 首尾四分位得分差超过该值才判定趋势变化（百分点）
	TrendTolerance = 5.0
	// TimelinePoints 时间线目标采样点数
	TimelinePoints = 100
	// PraiseScore 总分高于该值给出正向反馈
	PraiseScore = 80
)

// 趋势方向
const (
	TrendImproved         = "improved"
	TrendWorsened         = "worsened"
	TrendStable           = "stable"
	TrendInsufficientData = "insufficient_data"
)

// 建议文案
const (
	RecommendBreak   = "Take a short break: your longest slouching streak lasted more than 5 minutes."
	RecommendFatigue = "Your posture got worse as the session went on, which can be a sign of fatigue. Try stretching or resetting your setup."
	RecommendPraise  = "Great job! You kept a good posture for most of the session."
)

// NoDataMessage 会话没有姿态日志
const NoDataMessage = "No posture data available"

// TimelinePoint 时间线采样点
type TimelinePoint struct {
	Time   time.Time            `json:"time"`
	Status models.PostureStatus `json:"status"`
	Score  int                  `json:"score"`
}

// SlouchMetrics 驼背时长统计（秒）
type SlouchMetrics struct {
	TotalDurationSeconds int `json:"total_duration_seconds"`
	LongestStreakSeconds int `json:"longest_streak_seconds"`
}

// Trend 首尾四分位对比
type Trend struct {
	StartScore float64 `json:"start_score"`
	EndScore   float64 `json:"end_score"`
	Direction  string  `json:"direction"`
}

// Stats 会话统计（按需计算，不落库）
type Stats struct {
	SessionID        int64              `json:"session_id"`
	TotalLogs        int                `json:"total_logs"`
	DurationMinutes  float64            `json:"duration_minutes"`
	PostureBreakdown map[string]float64 `json:"posture_breakdown"`
	StatusCounts     map[string]int     `json:"status_counts"`
	SessionStatus    string             `json:"session_status,omitempty"`
	Score            int                `json:"score"`
	Timeline         []TimelinePoint    `json:"timeline"`
	SlouchMetrics    SlouchMetrics      `json:"slouch_metrics"`
	Trend            Trend              `json:"trend"`
	Recommendations  []string           `json:"recommendations"`
	Message          string             `json:"message,omitempty"`
}

// StatusScore 时间线得分：GOOD=100，TOO_CLOSE=50，其余 0
func StatusScore(status models.PostureStatus) int {
	switch status {
	case models.StatusGood:
		return 100
	case models.StatusTooClose:
		return 50
	default:
		return 0
	}
}

// Compute 根据姿态日志计算会话统计（纯函数，不修改入参）
func Compute(entries []models.PostureLogEntry) Stats {
	stats := Stats{
		PostureBreakdown: map[string]float64{},
		StatusCounts:     map[string]int{},
		Timeline:         []TimelinePoint{},
		Recommendations:  []string{},
		Trend:            Trend{Direction: TrendInsufficientData},
	}
	if len(entries) == 0 {
		stats.Message = NoDataMessage
		return stats
	}

	logs := make([]models.PostureLogEntry, len(entries))
	copy(logs, entries)
	sort.SliceStable(logs, func(i, j int) bool {
		return logs[i].Timestamp.Before(logs[j].Timestamp)
	})

	n := len(logs)
	stats.TotalLogs = n

	for _, e := range logs {
		stats.StatusCounts[string(e.Status)]++
	}
	for status, count := range stats.StatusCounts {
		stats.PostureBreakdown[status] = round2(float64(count) / float64(n) * 100)
	}

	stats.Timeline = sampleTimeline(logs)
	var longest time.Duration
	stats.SlouchMetrics, longest = slouchMetrics(logs)
	stats.Trend = quartileTrend(logs)
	stats.Score = int(math.Round(100 * float64(stats.StatusCounts[string(models.StatusGood)]) / float64(n)))
	stats.Recommendations = recommendations(stats, longest)

	return stats
}

func sampleTimeline(logs []models.PostureLogEntry) []TimelinePoint {
	step := 1
	if len(logs) >= TimelinePoints {
		step = len(logs) / TimelinePoints
	}
	points := make([]TimelinePoint, 0, len(logs)/step+1)
	for i := 0; i < len(logs); i += step {
		points = append(points, TimelinePoint{
			Time:   logs[i].Timestamp,
			Status: logs[i].Status,
			Score:  StatusScore(logs[i].Status),
		})
	}
	return points
}

// slouchMetrics 按时间加权累计驼背时长
// 间隔 >= PauseGap 视为暂停：关闭当前连击（以前一条为终点），不累计时长；
// 暂停后的驼背日志以自身时间开启新连击。另返回未取整的最长连击。
func slouchMetrics(logs []models.PostureLogEntry) (SlouchMetrics, time.Duration) {
	var total, longest time.Duration
	var open bool
	var streakStart time.Time

	closeStreak := func(end time.Time) {
		if d := end.Sub(streakStart); d > longest {
			longest = d
		}
		open = false
	}

	for i := 1; i < len(logs); i++ {
		prev, cur := logs[i-1], logs[i]
		gap := cur.Timestamp.Sub(prev.Timestamp)
		slouching := cur.Status == models.StatusSlouching

		if gap >= PauseGap {
			if open {
				closeStreak(prev.Timestamp)
			}
			if slouching {
				open, streakStart = true, cur.Timestamp
			}
			continue
		}

		if slouching {
			total += gap
			if !open {
				open, streakStart = true, cur.Timestamp
			}
		} else if open {
			closeStreak(prev.Timestamp)
		}
	}
	if open {
		closeStreak(logs[len(logs)-1].Timestamp)
	}

	return SlouchMetrics{
		TotalDurationSeconds: int(math.Round(total.Seconds())),
		LongestStreakSeconds: int(math.Round(longest.Seconds())),
	}, longest
}

func quartileTrend(logs []models.PostureLogEntry) Trend {
	q := len(logs) / 4
	if q == 0 {
		return Trend{Direction: TrendInsufficientData}
	}

	start := goodPercent(logs[:q])
	end := goodPercent(logs[len(logs)-q:])
	direction := TrendStable
	switch {
	case end-start > TrendTolerance:
		direction = TrendImproved
	case start-end > TrendTolerance:
		direction = TrendWorsened
	}
	return Trend{StartScore: round2(start), EndScore: round2(end), Direction: direction}
}

func goodPercent(logs []models.PostureLogEntry) float64 {
	good := 0
	for _, e := range logs {
		if e.Status == models.StatusGood {
			good++
		}
	}
	return float64(good) / float64(len(logs)) * 100
}

func recommendations(s Stats, longest time.Duration) []string {
	out := []string{}
	if longest > LongStreak {
		out = append(out, RecommendBreak)
	}
	if s.Trend.Direction == TrendWorsened {
		out = append(out, RecommendFatigue)
	}
	if s.Score > PraiseScore {
		out = append(out, RecommendPraise)
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
