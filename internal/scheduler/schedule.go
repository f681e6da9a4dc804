package scheduler

import (
	"fmt"
	"os"
	"strings"
	"time"

	"marketplace_quotes_backend/platform/config"

	"github.com/hibiken/asynq"
	"gopkg.in/yaml.v3"
)

// ScheduleEntry is one periodic task in the schedule file.
type ScheduleEntry struct {
	Cronspec string `yaml:"cronspec"`
	TaskType string `yaml:"task_type"`
}

type scheduleFile struct {
	Tasks []ScheduleEntry `yaml:"tasks"`
}

var periodicTasks = map[string]func() *asynq.Task{
	TaskSweepInvites:    NewSweepInvitesTask,
	TaskSweepQuotations: NewSweepQuotationsTask,
}

// FileScheduleProvider reads periodic task configs from a YAML file on every
// sync, so schedule edits apply without a restart.
type FileScheduleProvider struct {
	path  string
	queue string
}

func NewFileScheduleProvider(path, queue string) *FileScheduleProvider {
	return &FileScheduleProvider{path: path, queue: queue}
}

func (p *FileScheduleProvider) GetConfigs() ([]*asynq.PeriodicTaskConfig, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return nil, fmt.Errorf("read schedule %s: %w", p.path, err)
	}
	return ParseSchedule(data, p.queue)
}

// ParseSchedule turns schedule YAML into periodic task configs. Only the
// sweep tasks may be scheduled.
func ParseSchedule(data []byte, queue string) ([]*asynq.PeriodicTaskConfig, error) {
	var file scheduleFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse schedule: %w", err)
	}

	configs := make([]*asynq.PeriodicTaskConfig, 0, len(file.Tasks))
	for i, entry := range file.Tasks {
		newTask, ok := periodicTasks[entry.TaskType]
		if !ok {
			return nil, fmt.Errorf("schedule entry %d: unknown task type %q", i, entry.TaskType)
		}
		if strings.TrimSpace(entry.Cronspec) == "" {
			return nil, fmt.Errorf("schedule entry %d: cronspec is required", i)
		}
		configs = append(configs, &asynq.PeriodicTaskConfig{
			Cronspec: entry.Cronspec,
			Task:     newTask(),
			Opts:     []asynq.Option{asynq.Queue(queue), asynq.MaxRetry(0)},
		})
	}
	return configs, nil
}

func NewPeriodicTaskManager(cfg config.SchedulerConfig) (*asynq.PeriodicTaskManager, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return asynq.NewPeriodicTaskManager(asynq.PeriodicTaskManagerOpts{
		RedisConnOpt:               opt,
		PeriodicTaskConfigProvider: NewFileScheduleProvider(cfg.GetScheduleFile(), queueName(cfg)),
		SyncInterval:               time.Minute,
	})
}
