package scheduler

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const TaskRetrainModel = "scoring.retrain"

type RetrainPayload struct {
	ModelKind string `json:"modelKind"`
	Reason    string `json:"reason"`
}

func NewRetrainTask(payload RetrainPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskRetrainModel, data), nil
}

func ParseRetrainPayload(task *asynq.Task) (RetrainPayload, error) {
	var payload RetrainPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return RetrainPayload{}, err
	}
	return payload, nil
}
