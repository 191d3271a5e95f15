package saga

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"marketplace/internal/pkg/logger"
	"marketplace/internal/pkg/metrics"
	"marketplace/internal/pkg/tracing"
)

const defaultCompensationTimeout = 30 * time.Second

// Coordinator 顺序执行 saga 的步骤，失败时按逆序执行补偿。
// Coordinator 本身不保存任何实例状态，可以被多个 goroutine 并发使用。
type Coordinator struct {
	tracer              trace.Tracer
	journal             Journal
	metrics             *metrics.SagaMetrics
	timeout             time.Duration
	compensationTimeout time.Duration
	now                 func() time.Time
}

type Option func(*Coordinator)

func WithTracer(t trace.Tracer) Option { return func(c *Coordinator) { c.tracer = t } }

func WithJournal(j Journal) Option { return func(c *Coordinator) { c.journal = j } }

func WithMetrics(m *metrics.SagaMetrics) Option { return func(c *Coordinator) { c.metrics = m } }

// WithTimeout 为每次运行设置整体截止时间，0 表示只使用调用方 ctx 的截止时间。
func WithTimeout(d time.Duration) Option { return func(c *Coordinator) { c.timeout = d } }

// WithCompensationTimeout 限制补偿阶段的总耗时。补偿不继承原请求的截止时间。
func WithCompensationTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.compensationTimeout = d }
}

func NewCoordinator(opts ...Option) *Coordinator {
	c := &Coordinator{
		tracer:              otel.Tracer("marketplace/saga"),
		compensationTimeout: defaultCompensationTimeout,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run 在调用方 goroutine 上按声明顺序执行 steps，state 在步骤之间传递输出。
// 成功时返回 Completed 实例；任何步骤失败都会先逆序补偿之前成功的步骤，
// 再返回 *Failure（同时返回的实例状态为 Compensated 或 PermanentFailure）。
func Run[S any](ctx context.Context, c *Coordinator, name string, steps []Step[S], state *S) (*Instance, error) {
	if len(steps) == 0 {
		return nil, Validationf("saga %s has no steps", name)
	}
	seen := make(map[string]struct{}, len(steps))
	for _, s := range steps {
		if s.Name == "" || s.Forward == nil {
			return nil, Validationf("saga %s has an unnamed or empty step", name)
		}
		if _, dup := seen[s.Name]; dup {
			return nil, Validationf("saga %s has duplicate step %s", name, s.Name)
		}
		seen[s.Name] = struct{}{}
	}

	inst := &Instance{
		ID:        uuid.NewString(),
		Name:      name,
		Status:    StatusPending,
		Steps:     make([]StepRecord, len(steps)),
		StartedAt: c.now(),
	}
	for i, s := range steps {
		inst.Steps[i] = StepRecord{Name: s.Name, Status: StepPending}
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx, span := c.tracer.Start(ctx, "saga."+name, trace.WithAttributes(
		attribute.String("saga.id", inst.ID),
		attribute.Int("saga.steps", len(steps)),
	))
	defer span.End()

	log := logger.Ctx(ctx).With().Str("saga", name).Str("saga_id", inst.ID).Logger()
	inst.Status = StatusRunning
	log.Info().Msg("saga started")

	failedIdx := -1
	var cause error
	for i, step := range steps {
		rec := &inst.Steps[i]
		if err := ctx.Err(); err != nil {
			rec.Status = StepFailed
			cause = DependencyFailure(err, "deadline reached before step %s", step.Name)
			rec.Error = cause.Error()
			failedIdx = i
			break
		}

		rec.Status = StepRunning
		rec.StartedAt = c.now()
		if err := c.save(ctx, inst); err != nil {
			rec.Status = StepFailed
			rec.FinishedAt = c.now()
			cause = DependencyFailure(err, "journal write before step %s", step.Name)
			rec.Error = cause.Error()
			failedIdx = i
			break
		}

		comp, err := runForward(ctx, c, name, step, state)
		rec.FinishedAt = c.now()
		if err != nil {
			rec.Status = StepFailed
			rec.Error = err.Error()
			cause = err
			failedIdx = i
			log.Warn().Err(err).Str("step", step.Name).Str("kind", KindOf(err).String()).Msg("saga step failed")
			break
		}
		rec.Status = StepSucceeded
		rec.compensate = comp
		if step.Output != nil {
			if err := rec.recordOutput(step.Output(state)); err != nil {
				log.Warn().Err(err).Str("step", step.Name).Msg("step output is not serializable")
			}
		}
		c.saveBestEffort(ctx, inst, log)
		log.Debug().Str("step", step.Name).Msg("saga step succeeded")
	}

	if failedIdx < 0 {
		inst.Status = StatusCompleted
		inst.FinishedAt = c.now()
		c.saveBestEffort(ctx, inst, log)
		c.metrics.ObserveRun(name, string(inst.Status))
		log.Info().Msg("saga completed")
		return inst, nil
	}

	for i := failedIdx + 1; i < len(inst.Steps); i++ {
		inst.Steps[i].Status = StepSkipped
	}
	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())

	failure := c.compensate(ctx, inst, failedIdx, cause, log)
	c.metrics.ObserveRun(name, string(inst.Status))
	return inst, failure
}

// runForward 在独立的 span 中执行一个步骤，并把 panic 转换为普通错误。
func runForward[S any](ctx context.Context, c *Coordinator, sagaName string, step Step[S], state *S) (comp Compensation, err error) {
	ctx, span := c.tracer.Start(ctx, "saga."+sagaName+"."+step.Name)
	start := c.now()
	defer func() {
		if r := recover(); r != nil {
			comp = nil
			err = fmt.Errorf("step %s panicked: %v", step.Name, r)
		}
		c.metrics.ObserveStep(sagaName, step.Name, c.now().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return step.Forward(ctx, state)
}

// compensate 在脱离原请求截止时间的上下文中逆序执行补偿。
// 补偿失败只记录，不会再次触发补偿。
func (c *Coordinator) compensate(ctx context.Context, inst *Instance, failedIdx int, cause error, log zerolog.Logger) *Failure {
	inst.Status = StatusCompensating
	log.Warn().Str("failed_step", inst.Steps[failedIdx].Name).Msg("saga compensating")

	cctx := tracing.DetachedContext(ctx)
	if c.compensationTimeout > 0 {
		var cancel context.CancelFunc
		cctx, cancel = context.WithTimeout(cctx, c.compensationTimeout)
		defer cancel()
	}
	c.saveBestEffort(cctx, inst, log)

	failure := &Failure{
		SagaID:     inst.ID,
		SagaName:   inst.Name,
		FailedStep: inst.Steps[failedIdx].Name,
		Err:        cause,
	}
	for i := failedIdx - 1; i >= 0; i-- {
		rec := &inst.Steps[i]
		if rec.Status != StepSucceeded || rec.compensate == nil {
			continue
		}
		err := c.runCompensation(cctx, inst.Name, rec.Name, rec.compensate)
		rec.compensate = nil
		if err != nil {
			rec.Status = StepCompensationFailed
			rec.CompensationError = err.Error()
			failure.CompensationErrors = append(failure.CompensationErrors, CompensationError{Step: rec.Name, Err: err})
			c.metrics.ObserveCompensationFailure(inst.Name, rec.Name)
			log.Error().Err(err).Str("step", rec.Name).Msg("compensation failed, manual intervention required")
		} else {
			rec.Status = StepCompensated
			failure.Compensated = append(failure.Compensated, rec.Name)
			log.Info().Str("step", rec.Name).Msg("step compensated")
		}
		c.saveBestEffort(cctx, inst, log)
	}

	if failure.FullyCompensated() {
		inst.Status = StatusCompensated
	} else {
		inst.Status = StatusPermanentFailure
	}
	inst.FinishedAt = c.now()
	c.saveBestEffort(cctx, inst, log)
	failure.Steps = inst.Clone().Steps
	for _, rec := range failure.Steps[:failedIdx] {
		if len(rec.Output) == 0 && len(rec.CompensationInput) == 0 {
			continue
		}
		if failure.PartialOutput == nil {
			failure.PartialOutput = make(map[string]StepOutput)
		}
		failure.PartialOutput[rec.Name] = StepOutput{
			Output:            rec.Output,
			CompensationInput: rec.CompensationInput,
			Status:            rec.Status,
		}
	}

	log.Warn().
		Str("status", string(inst.Status)).
		Strs("compensated", failure.Compensated).
		Int("compensation_errors", len(failure.CompensationErrors)).
		Msg("saga finished with failure")
	return failure
}

func (c *Coordinator) runCompensation(ctx context.Context, sagaName, stepName string, comp Compensation) (err error) {
	ctx, span := c.tracer.Start(ctx, "saga.compensation."+stepName, trace.WithAttributes(
		attribute.String("saga.name", sagaName),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation of %s panicked: %v", stepName, r)
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	return comp(ctx)
}

func (c *Coordinator) save(ctx context.Context, inst *Instance) error {
	if c.journal == nil {
		return nil
	}
	return c.journal.Save(ctx, inst.Clone())
}

// saveBestEffort 用于状态迁移之后的写入，失败只记日志，不改变 saga 的结果。
func (c *Coordinator) saveBestEffort(ctx context.Context, inst *Instance, log zerolog.Logger) {
	if err := c.save(ctx, inst); err != nil {
		log.Error().Err(err).Str("status", string(inst.Status)).Msg("saga journal write failed")
	}
}
