// Package journal 把 saga 实例的状态迁移持久化到 MySQL，供崩溃后排查未完成的实例。
package journal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"marketplace/internal/saga"
)

// SagaInstanceModel 对应数据库中的 saga_instances 表
type SagaInstanceModel struct {
	ID         string `gorm:"primaryKey;size:36"`
	Name       string `gorm:"size:64;index"`
	Status     string `gorm:"size:32;index"`
	Steps      []byte `gorm:"type:json"`
	StartedAt  time.Time
	FinishedAt *time.Time
	UpdatedAt  time.Time
}

// TableName 指定 GORM 应该使用的表名
func (SagaInstanceModel) TableName() string {
	return "saga_instances"
}

// Models 返回需要迁移的全部模型。
func Models() []any {
	return []any{&SagaInstanceModel{}}
}

// GormJournal 是 saga.Journal 的 GORM 实现，每个实例只保留一行最新状态。
type GormJournal struct {
	db *gorm.DB
}

func NewGormJournal(db *gorm.DB) *GormJournal {
	return &GormJournal{db: db}
}

func (j *GormJournal) Save(ctx context.Context, inst saga.Instance) error {
	model, err := fromInstance(inst)
	if err != nil {
		return err
	}
	err = j.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "steps", "finished_at", "updated_at"}),
	}).Create(model).Error
	return errors.Wrapf(err, "save saga instance %s", inst.ID)
}

// Get 读取单个实例，不存在时返回 gorm.ErrRecordNotFound。
func (j *GormJournal) Get(ctx context.Context, id string) (saga.Instance, error) {
	var model SagaInstanceModel
	if err := j.db.WithContext(ctx).Where("id = ?", id).First(&model).Error; err != nil {
		return saga.Instance{}, errors.Wrapf(err, "get saga instance %s", id)
	}
	return toInstance(&model)
}

// ListUnfinished 返回停留在 Running 或 Compensating 的实例，通常意味着进程在执行中途退出。
func (j *GormJournal) ListUnfinished(ctx context.Context) ([]saga.Instance, error) {
	var models []SagaInstanceModel
	err := j.db.WithContext(ctx).
		Where("status IN ?", []string{string(saga.StatusRunning), string(saga.StatusCompensating)}).
		Order("started_at").
		Find(&models).Error
	if err != nil {
		return nil, errors.Wrap(err, "list unfinished sagas")
	}
	out := make([]saga.Instance, 0, len(models))
	for i := range models {
		inst, err := toInstance(&models[i])
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

func fromInstance(inst saga.Instance) (*SagaInstanceModel, error) {
	steps, err := json.Marshal(inst.Steps)
	if err != nil {
		return nil, errors.Wrap(err, "marshal step records")
	}
	model := &SagaInstanceModel{
		ID:        inst.ID,
		Name:      inst.Name,
		Status:    string(inst.Status),
		Steps:     steps,
		StartedAt: inst.StartedAt,
	}
	if !inst.FinishedAt.IsZero() {
		finished := inst.FinishedAt
		model.FinishedAt = &finished
	}
	return model, nil
}

func toInstance(model *SagaInstanceModel) (saga.Instance, error) {
	inst := saga.Instance{
		ID:        model.ID,
		Name:      model.Name,
		Status:    saga.Status(model.Status),
		StartedAt: model.StartedAt,
	}
	if model.FinishedAt != nil {
		inst.FinishedAt = *model.FinishedAt
	}
	if len(model.Steps) > 0 {
		if err := json.Unmarshal(model.Steps, &inst.Steps); err != nil {
			return saga.Instance{}, errors.Wrapf(err, "unmarshal steps of %s", model.ID)
		}
	}
	return inst, nil
}
