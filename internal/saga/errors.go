package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Kind 是失败的分类，决定调用方如何向外部报告错误。
type Kind int

const (
	KindNone Kind = iota
	KindValidation
	KindInsufficientStock
	KindConcurrencyConflict
	KindDependencyFailure
	KindPermanentFailure
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindValidation:
		return "ValidationError"
	case KindInsufficientStock:
		return "InsufficientStock"
	case KindConcurrencyConflict:
		return "ConcurrencyConflict"
	case KindDependencyFailure:
		return "DependencyFailure"
	case KindPermanentFailure:
		return "PermanentFailure"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

var (
	ErrValidation          = errors.New("validation error")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	ErrDependencyFailure   = errors.New("dependency failure")
	ErrPermanentFailure    = errors.New("permanent failure")
)

func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

func InsufficientStockf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInsufficientStock, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConcurrencyConflict, fmt.Sprintf(format, args...))
}

// DependencyFailure 把底层 I/O 错误标记为依赖失败，同时保留原始错误链。
func DependencyFailure(err error, format string, args ...any) error {
	if err == nil {
		return fmt.Errorf("%w: %s", ErrDependencyFailure, fmt.Sprintf(format, args...))
	}
	return fmt.Errorf("%w: %s: %w", ErrDependencyFailure, fmt.Sprintf(format, args...), err)
}

// KindOf 对任意错误分类。无法识别的非 nil 错误一律视为 DependencyFailure。
func KindOf(err error) Kind {
	if err == nil {
		return KindNone
	}
	var failure *Failure
	switch {
	case errors.As(err, &failure):
		return KindPermanentFailure
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrInsufficientStock):
		return KindInsufficientStock
	case errors.Is(err, ErrConcurrencyConflict):
		return KindConcurrencyConflict
	case errors.Is(err, ErrPermanentFailure):
		return KindPermanentFailure
	default:
		return KindDependencyFailure
	}
}

// CompensationError 记录某一步补偿失败的原因，需要人工介入。
type CompensationError struct {
	Step string `json:"step"`
	Err  error  `json:"-"`
}

func (e CompensationError) Error() string {
	return fmt.Sprintf("compensation of %s failed: %v", e.Step, e.Err)
}

// StepOutput 是失败前已经成功的步骤留下的输出，以及撤销它时使用的输入。
type StepOutput struct {
	Status            StepStatus      `json:"status"`
	Output            json.RawMessage `json:"output,omitempty"`
	CompensationInput json.RawMessage `json:"compensation_input,omitempty"`
}

// Failure 是 saga 终止失败时返回给调用方的完整报告。
type Failure struct {
	SagaID             string
	SagaName           string
	FailedStep         string
	Err                error
	Compensated        []string
	CompensationErrors []CompensationError
	Steps              []StepRecord
	// PartialOutput 按步骤名记录失败之前累积的输出，调用方据此说明究竟撤销了什么
	PartialOutput map[string]StepOutput
	// Details 由发起 saga 的业务代码补充，例如已创建又被取消的子订单
	Details map[string]any
}

// SetDetail 附加一项业务层面的失败明细。
func (f *Failure) SetDetail(key string, v any) {
	if f.Details == nil {
		f.Details = make(map[string]any)
	}
	f.Details[key] = v
}

// Step 按名称查找失败时的步骤记录。
func (f *Failure) Step(name string) (StepRecord, bool) {
	for _, r := range f.Steps {
		if r.Name == name {
			return r, true
		}
	}
	return StepRecord{}, false
}

func (f *Failure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "saga %s (%s) failed at step %s: %v", f.SagaName, f.SagaID, f.FailedStep, f.Err)
	if len(f.Compensated) > 0 {
		fmt.Fprintf(&b, "; compensated [%s]", strings.Join(f.Compensated, ", "))
	}
	if len(f.CompensationErrors) > 0 {
		failed := make([]string, 0, len(f.CompensationErrors))
		for _, ce := range f.CompensationErrors {
			failed = append(failed, ce.Step)
		}
		fmt.Fprintf(&b, "; compensation failed for [%s]", strings.Join(failed, ", "))
	}
	return b.String()
}

func (f *Failure) Unwrap() error { return f.Err }

func (f *Failure) Is(target error) bool { return target == ErrPermanentFailure }

// FullyCompensated 表示所有需要撤销的步骤都已成功撤销。
func (f *Failure) FullyCompensated() bool { return len(f.CompensationErrors) == 0 }

// Cause 返回导致失败的原始错误的分类。
func (f *Failure) Cause() Kind { return KindOf(f.Err) }

// IsTimeout 判断错误是否由截止时间或取消引起。
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}
