package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// HTTPDetector 通过 HTTP 调用外部姿态检测服务
// 协议：POST {baseURL}/detect，body 为原始图像字节，返回 {"landmarks":[{x,y,presence},...]}
type HTTPDetector struct {
	httpClient *resty.Client
	logger     *zap.Logger
}

// NewHTTPDetector 创建检测服务客户端
func NewHTTPDetector(baseURL string, timeout time.Duration, retries int, logger *zap.Logger) *HTTPDetector {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetRetryCount(retries).
		SetRetryWaitTime(100 * time.Millisecond).
		SetRetryMaxWaitTime(time.Second).
		SetHeader("Accept", "application/json")

	return &HTTPDetector{
		httpClient: client,
		logger:     logger,
	}
}

// Detect 调用检测服务
func (d *HTTPDetector) Detect(ctx context.Context, frame []byte) (*Pose, error) {
	var pose Pose
	resp, err := d.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/octet-stream").
		SetBody(frame).
		SetResult(&pose).
		Post("/detect")
	if err != nil {
		d.logger.Warn("Pose detector call failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	switch {
	case resp.StatusCode() == 422:
		// 检测服务无法解码图像
		return nil, ErrNoPerson
	case resp.StatusCode() >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrDetectorUnavailable, resp.StatusCode())
	case resp.IsError():
		return nil, fmt.Errorf("pose detector returned status %d", resp.StatusCode())
	}

	if len(pose.Landmarks) == 0 {
		return nil, ErrNoPerson
	}
	return &pose, nil
}
