package logger

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const timestampFormat = "2006-01-02 15:04:05.000"

// Logger 全局日志实例
var Logger *logrus.Logger

// Config 日志配置
type Config struct {
	Level  string `json:"level" mapstructure:"level"`   // debug, info, warn, error
	Format string `json:"format" mapstructure:"format"` // text, json
}

// Init 初始化日志器，输出到标准输出
func Init(config Config) {
	InitWithOutput(config, os.Stdout)
}

// InitWithOutput 初始化日志器并指定输出目标
func InitWithOutput(config Config, out io.Writer) {
	l := logrus.New()
	l.SetLevel(parseLevel(config.Level))

	if strings.EqualFold(config.Format, "json") {
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timestampFormat})
	} else {
		l.SetFormatter(&logrus.TextFormatter{TimestampFormat: timestampFormat, FullTimestamp: true})
	}
	l.SetOutput(out)

	Logger = l
}

// InitFromEnv 读取 TSCHART_LOG_LEVEL 与 TSCHART_LOG_FORMAT，配置加载失败时使用
func InitFromEnv() {
	Init(Config{
		Level:  envOr("TSCHART_LOG_LEVEL", "info"),
		Format: envOr("TSCHART_LOG_FORMAT", "text"),
	})
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseLevel(level string) logrus.Level {
	l, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return l
}

// GetLogger 获取日志器，未初始化时按环境变量初始化
func GetLogger() *logrus.Logger {
	if Logger == nil {
		InitFromEnv()
	}
	return Logger
}

// WithComponent 创建带组件名的日志条目
func WithComponent(component string) *logrus.Entry {
	return GetLogger().WithField("component", component)
}

// SetLevel 调整全局日志级别，无法解析时使用 info
func SetLevel(level string) {
	GetLogger().SetLevel(parseLevel(level))
}
