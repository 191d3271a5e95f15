package saga

import (
	"context"
	"encoding/json"
	"time"
)

// Compensation 撤销某一步的副作用。它是一个闭包，捕获了该步骤正向执行的输出。
// 必须是幂等的：重复调用与调用一次效果相同。
type Compensation func(ctx context.Context) error

// Step 是 saga 中的一个命名步骤。Forward 在成功时可返回 nil 的 Compensation，表示没有需要撤销的内容。
type Step[S any] struct {
	Name    string
	Forward func(ctx context.Context, state *S) (Compensation, error)
	// Output 在 Forward 成功后从 state 中取出本步骤的输出与补偿输入，二者都必须能序列化为 JSON。
	// 为 nil 时步骤记录不带输出。
	Output func(state *S) (output, compensationInput any)
}

type Status string

const (
	StatusPending          Status = "Pending"
	StatusRunning          Status = "Running"
	StatusCompleted        Status = "Completed"
	StatusCompensating     Status = "Compensating"
	StatusCompensated      Status = "Compensated"
	StatusPermanentFailure Status = "PermanentFailure"
)

// Terminal 判断实例是否已经结束。
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCompensated || s == StatusPermanentFailure
}

type StepStatus string

const (
	StepPending            StepStatus = "Pending"
	StepRunning            StepStatus = "Running"
	StepSucceeded          StepStatus = "Succeeded"
	StepFailed             StepStatus = "Failed"
	StepCompensated        StepStatus = "Compensated"
	StepCompensationFailed StepStatus = "CompensationFailed"
	StepSkipped            StepStatus = "Skipped"
)

// StepRecord 是单个步骤的执行记录。
type StepRecord struct {
	Name              string     `json:"name"`
	Status            StepStatus `json:"status"`
	Error             string     `json:"error,omitempty"`
	CompensationError string     `json:"compensation_error,omitempty"`
	StartedAt         time.Time  `json:"started_at,omitzero"`
	FinishedAt        time.Time  `json:"finished_at,omitzero"`

	// Output 与 CompensationInput 随日志一起持久化，失败时原样出现在 Failure.PartialOutput 中
	Output            json.RawMessage `json:"output,omitempty"`
	CompensationInput json.RawMessage `json:"compensation_input,omitempty"`

	compensate Compensation
}

func (r *StepRecord) recordOutput(output, compensationInput any) error {
	if output != nil {
		raw, err := json.Marshal(output)
		if err != nil {
			return err
		}
		r.Output = raw
	}
	if compensationInput != nil {
		raw, err := json.Marshal(compensationInput)
		if err != nil {
			return err
		}
		r.CompensationInput = raw
	}
	return nil
}

// DecodeOutput 把步骤输出解码到 v。没有输出时返回 false。
func (r StepRecord) DecodeOutput(v any) (bool, error) {
	if len(r.Output) == 0 {
		return false, nil
	}
	return true, json.Unmarshal(r.Output, v)
}

// HasCompensation 表示该步骤成功后留下了需要撤销的副作用。
func (r StepRecord) HasCompensation() bool { return r.compensate != nil }

// Instance 是一次 saga 执行的状态，只属于发起它的调用方。
type Instance struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Status     Status       `json:"status"`
	Steps      []StepRecord `json:"steps"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at,omitzero"`
}

// Step 按名称查找步骤记录。
func (i *Instance) Step(name string) (StepRecord, bool) {
	for _, r := range i.Steps {
		if r.Name == name {
			return r, true
		}
	}
	return StepRecord{}, false
}

// Clone 返回一个可以安全交给其他 goroutine 或持久化层的副本。
func (i *Instance) Clone() Instance {
	c := *i
	c.Steps = make([]StepRecord, len(i.Steps))
	for idx, r := range i.Steps {
		r.compensate = nil
		c.Steps[idx] = r
	}
	return c
}
