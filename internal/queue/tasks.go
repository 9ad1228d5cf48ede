package queue

import (
	"encoding/json"
	"strings"

	"github.com/adsboard-next/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskAssignmentCleanup 过期角色分配清理任务
	TaskAssignmentCleanup = constants.TaskAssignmentCleanup
)

// AssignmentCleanupPayload 过期分配清理任务载荷
type AssignmentCleanupPayload struct {
	RequestID   string `json:"request_id"`
	RequestedBy uint   `json:"requested_by"`
}

// NewAssignmentCleanupTask 创建过期分配清理任务
func NewAssignmentCleanupTask(payload AssignmentCleanupPayload) (*asynq.Task, error) {
	payload.RequestID = strings.TrimSpace(payload.RequestID)
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAssignmentCleanup, body), nil
}

// ParseAssignmentCleanupPayload 解析过期分配清理任务载荷
func ParseAssignmentCleanupPayload(task *asynq.Task) (AssignmentCleanupPayload, error) {
	var payload AssignmentCleanupPayload
	if task == nil || len(task.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
