package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskSweepInvites = "quoting.sweep_invites"

const TaskSweepQuotations = "quoting.sweep_quotations"

const TaskMatchJob = "quoting.match_job"

type MatchJobPayload struct {
	JobID string `json:"jobId"`
}

func NewSweepInvitesTask() *asynq.Task {
	return asynq.NewTask(TaskSweepInvites, nil)
}

func NewSweepQuotationsTask() *asynq.Task {
	return asynq.NewTask(TaskSweepQuotations, nil)
}

func NewMatchJobTask(payload MatchJobPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMatchJob, data), nil
}

func ParseMatchJobPayload(task *asynq.Task) (MatchJobPayload, error) {
	var payload MatchJobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return MatchJobPayload{}, err
	}
	return payload, nil
}
