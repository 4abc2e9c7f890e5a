package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"tschart/pkg/core"
)

// DefaultJobTimeout 单次任务执行的默认超时
const DefaultJobTimeout = 5 * time.Minute

// JobConfig 定义单个预取任务的配置
type JobConfig struct {
	Name     string        `mapstructure:"name" json:"name"`
	Enabled  bool          `mapstructure:"enabled" json:"enabled"`
	Schedule string        `mapstructure:"schedule" json:"schedule"`
	Series   []SeriesRef   `mapstructure:"series" json:"series"`
	Window   time.Duration `mapstructure:"window" json:"window"` // 以执行时刻为终点向前回溯的时间窗口
	Points   int           `mapstructure:"points" json:"points,omitempty"`
	Mode     string        `mapstructure:"mode" json:"mode,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" json:"timeout,omitempty"`
	Output   *OutputConfig `mapstructure:"output" json:"output,omitempty"`
}

// SeriesRef 任务中的一个序列，ID 与外部 ID 二选一
type SeriesRef struct {
	ID         int64  `mapstructure:"id" json:"id,omitempty"`
	ExternalID string `mapstructure:"external_id" json:"externalId,omitempty"`
}

// Identifier 转换为序列标识
func (s SeriesRef) Identifier() core.TimeseriesIdentifier {
	return core.TimeseriesIdentifier{ID: s.ID, ExternalID: s.ExternalID}
}

// 输出类型
const (
	OutputInflux = "influxdb"
	OutputLog    = "log"
)

// OutputConfig 定义输出配置
type OutputConfig struct {
	Type string `mapstructure:"type" json:"type"`
}

// JobsConfig 定义整个任务配置文件结构
type JobsConfig struct {
	Jobs []JobConfig `mapstructure:"jobs" json:"jobs"`
}

// Job 表示一个运行中的任务
type Job struct {
	ID          string
	Config      JobConfig
	EntryID     cron.EntryID
	Status      JobStatus
	LastRun     *time.Time
	NextRun     *time.Time
	RunCount    int64
	ErrorCount  int64
	LastError   error
	LastWritten int
}

// JobStatus 任务状态
type JobStatus string

const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusStopped  JobStatus = "stopped"
	JobStatusError    JobStatus = "error"
	JobStatusDisabled JobStatus = "disabled"
)

// JobExecutor 任务执行器接口，返回写出的点数
type JobExecutor interface {
	Execute(ctx context.Context, job *Job) (int, error)
}

// JobScheduler 任务调度器接口
type JobScheduler interface {
	// 加载配置
	LoadConfig(configPath string) error

	// 启动调度器
	Start() error

	// 停止调度器
	Stop() error

	// 添加任务
	AddJob(config JobConfig) error

	// 移除任务
	RemoveJob(jobName string) error

	// 获取任务状态
	GetJob(jobName string) (*Job, error)

	// 获取所有任务
	GetAllJobs() []*Job

	// 手动执行任务
	RunJob(jobName string) error

	// 设置任务执行器
	SetExecutor(executor JobExecutor)
}
