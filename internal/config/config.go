package config

import (
	"fmt"
	"strings"
	"time"

	commoncfg "posture-monitor/common/config"
	"posture-monitor/internal/alert"
	"posture-monitor/internal/broadcast"
	"posture-monitor/internal/classifier"
	"posture-monitor/internal/queue"
)

// 广播传输方式
const (
	TransportRedis = "redis"
	TransportMQTT  = "mqtt"
)

// 连击/冷却状态存储
const (
	StateBackendRedis  = "redis"
	StateBackendMemory = "memory"
)

// Config 姿态监测服务配置（api / worker / notifier 共用）
type Config struct {
	HTTP struct {
		Addr string
	}

	DBEnabled bool
	Database  commoncfg.DatabaseConfig
	Redis     commoncfg.RedisConfig
	MQTT      commoncfg.MQTTConfig

	Log struct {
		Level  string
		Format string
	}

	// Detector 外部姿态检测服务
	Detector struct {
		URL     string
		Timeout time.Duration
		Retries int
	}

	Classifier classifier.Thresholds
	Alert      alert.Config

	// State 连击/冷却状态；memory 只在单个 worker 进程内有效
	State struct {
		Backend   string
		KeyPrefix string
	}

	Evidence struct {
		Dir            string
		JPEGQuality    int
		BlurSigma      float64
		EnabledDefault bool // 用户未设置时是否截图
		BlurDefault    bool // 用户未设置时是否模糊面部
	}

	Queue struct {
		Frames        queue.StreamConfig
		Notifications queue.StreamConfig
	}

	Broadcast struct {
		Transport            string // redis | mqtt
		MQTTTopic            string
		RedisChannel         string
		NotificationsChannel string
		QueueSize            int
		WriteTimeout         time.Duration
	}

	// Ingress 除 HTTP 外的帧入口
	Ingress struct {
		MQTTEnabled bool
		MQTTTopic   string
	}

	Consumer struct {
		Name      string
		Shards    int
		BatchSize int
		// Embedded api 进程内同时运行帧消费者和通知消费者（内存存储时必须开启）
		Embedded bool
	}
}

// Load 从环境变量加载配置
func Load() (*Config, error) {
	cfg := &Config{}
	cfg.HTTP.Addr = commoncfg.GetEnv("HTTP_ADDR", ":8080")

	// 本地开发默认走内存存储
	cfg.DBEnabled = commoncfg.GetEnvBool("DB_ENABLED", false)
	cfg.Database = commoncfg.DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "postgres",
		Password: "postgres",
		Database: "posture",
		SSLMode:  "disable",
		MaxConns: 10,
		MaxIdle:  5,
	}
	cfg.Database.LoadFromEnv("DB")

	cfg.Redis = commoncfg.RedisConfig{Addr: "localhost:6379"}
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTT = commoncfg.MQTTConfig{
		Broker:         "tcp://localhost:1883",
		ClientID:       "posture-monitor",
		QoS:            1,
		ConnectTimeout: 10 * time.Second,
	}
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = commoncfg.GetEnv("LOG_LEVEL", "info")
	cfg.Log.Format = commoncfg.GetEnv("LOG_FORMAT", "json")

	cfg.Detector.URL = commoncfg.GetEnv("DETECTOR_URL", "")
	cfg.Detector.Timeout = commoncfg.GetEnvDuration("DETECTOR_TIMEOUT", 5*time.Second)
	cfg.Detector.Retries = commoncfg.GetEnvInt("DETECTOR_RETRIES", 1)

	th := classifier.DefaultThresholds()
	th.TooCloseDistance = commoncfg.GetEnvFloat("POSTURE_TOO_CLOSE_DISTANCE", th.TooCloseDistance)
	th.MinNeckAngle = commoncfg.GetEnvFloat("POSTURE_MIN_NECK_ANGLE", th.MinNeckAngle)
	th.MinTorsoAngle = commoncfg.GetEnvFloat("POSTURE_MIN_TORSO_ANGLE", th.MinTorsoAngle)
	th.ReferenceShoulderWidth = commoncfg.GetEnvFloat("POSTURE_REFERENCE_SHOULDER_WIDTH", th.ReferenceShoulderWidth)
	th.VerticalReferenceOffset = commoncfg.GetEnvFloat("POSTURE_VERTICAL_REFERENCE_OFFSET", th.VerticalReferenceOffset)
	cfg.Classifier = th

	cfg.Alert = alert.DefaultConfig()
	cfg.Alert.Threshold = commoncfg.GetEnvDuration("ALERT_SLOUCH_THRESHOLD", cfg.Alert.Threshold)
	cfg.Alert.Cooldown = commoncfg.GetEnvDuration("ALERT_COOLDOWN", cfg.Alert.Cooldown)
	cfg.Alert.StreakTTL = commoncfg.GetEnvDuration("ALERT_STREAK_TTL", 0)

	cfg.State.Backend = strings.ToLower(commoncfg.GetEnv("STATE_BACKEND", StateBackendRedis))
	cfg.State.KeyPrefix = commoncfg.GetEnv("STATE_KEY_PREFIX", "session:")

	cfg.Evidence.Dir = commoncfg.GetEnv("EVIDENCE_DIR", "./screenshots")
	cfg.Evidence.JPEGQuality = commoncfg.GetEnvInt("EVIDENCE_JPEG_QUALITY", 90)
	cfg.Evidence.BlurSigma = commoncfg.GetEnvFloat("EVIDENCE_BLUR_SIGMA", 25)
	cfg.Evidence.EnabledDefault = commoncfg.GetEnvBool("EVIDENCE_ENABLED_DEFAULT", false)
	cfg.Evidence.BlurDefault = commoncfg.GetEnvBool("EVIDENCE_BLUR_DEFAULT", true)

	block := commoncfg.GetEnvDuration("QUEUE_BLOCK", time.Second)
	cfg.Queue.Frames = queue.StreamConfig{
		Stream: commoncfg.GetEnv("QUEUE_FRAME_STREAM", queue.DefaultFrameStream),
		Group:  commoncfg.GetEnv("QUEUE_FRAME_GROUP", queue.DefaultFrameGroup),
		Block:  block,
	}
	cfg.Queue.Notifications = queue.StreamConfig{
		Stream: commoncfg.GetEnv("QUEUE_NOTIFICATION_STREAM", queue.DefaultNotificationStream),
		Group:  commoncfg.GetEnv("QUEUE_NOTIFICATION_GROUP", queue.DefaultNotificationGroup),
		Block:  block,
	}

	cfg.Broadcast.Transport = strings.ToLower(commoncfg.GetEnv("BROADCAST_TRANSPORT", TransportRedis))
	cfg.Broadcast.MQTTTopic = commoncfg.GetEnv("BROADCAST_MQTT_TOPIC", broadcast.DefaultMQTTTopic)
	cfg.Broadcast.RedisChannel = commoncfg.GetEnv("BROADCAST_REDIS_CHANNEL", broadcast.DefaultRedisChannel)
	cfg.Broadcast.NotificationsChannel = commoncfg.GetEnv("BROADCAST_NOTIFICATIONS_CHANNEL", broadcast.DefaultNotificationsChannel)
	cfg.Broadcast.QueueSize = commoncfg.GetEnvInt("BROADCAST_QUEUE_SIZE", 64)
	cfg.Broadcast.WriteTimeout = commoncfg.GetEnvDuration("BROADCAST_WRITE_TIMEOUT", 5*time.Second)

	cfg.Ingress.MQTTEnabled = commoncfg.GetEnvBool("INGRESS_MQTT_ENABLED", false)
	cfg.Ingress.MQTTTopic = commoncfg.GetEnv("INGRESS_MQTT_TOPIC", "posture/frames/+")

	cfg.Consumer.Name = commoncfg.GetEnv("CONSUMER_NAME", "posture-worker-1")
	cfg.Consumer.Shards = commoncfg.GetEnvInt("CONSUMER_SHARDS", 4)
	cfg.Consumer.BatchSize = commoncfg.GetEnvInt("CONSUMER_BATCH_SIZE", 32)
	cfg.Consumer.Embedded = commoncfg.GetEnvBool("CONSUMER_EMBEDDED", !cfg.DBEnabled)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NeedsMQTT 广播或帧入口使用 MQTT 时需要连接 broker
func (c *Config) NeedsMQTT() bool {
	return c.Broadcast.Transport == TransportMQTT || c.Ingress.MQTTEnabled
}

// Validate 校验取值范围
func (c *Config) Validate() error {
	switch c.Broadcast.Transport {
	case TransportRedis, TransportMQTT:
	default:
		return fmt.Errorf("invalid BROADCAST_TRANSPORT %q (want redis or mqtt)", c.Broadcast.Transport)
	}
	switch c.State.Backend {
	case StateBackendRedis, StateBackendMemory:
	default:
		return fmt.Errorf("invalid STATE_BACKEND %q (want redis or memory)", c.State.Backend)
	}
	if c.Alert.Threshold <= 0 {
		return fmt.Errorf("ALERT_SLOUCH_THRESHOLD must be positive, got %s", c.Alert.Threshold)
	}
	if c.Alert.Cooldown <= 0 {
		return fmt.Errorf("ALERT_COOLDOWN must be positive, got %s", c.Alert.Cooldown)
	}
	if c.Evidence.JPEGQuality < 1 || c.Evidence.JPEGQuality > 100 {
		return fmt.Errorf("EVIDENCE_JPEG_QUALITY must be in [1,100], got %d", c.Evidence.JPEGQuality)
	}
	if c.Consumer.Shards <= 0 {
		return fmt.Errorf("CONSUMER_SHARDS must be positive, got %d", c.Consumer.Shards)
	}
	return nil
}
