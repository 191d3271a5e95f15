package saga

import "errors"

// ErrorReport 是失败结果对外（HTTP 响应、日志）的结构化表示。
type ErrorReport struct {
	Kind               string                `json:"kind"`
	Message            string                `json:"message"`
	SagaID             string                `json:"saga_id,omitempty"`
	FailedStep         string                `json:"failed_step,omitempty"`
	Cause              string                `json:"cause,omitempty"`
	Compensated        []string              `json:"compensated,omitempty"`
	CompensationErrors []CompensationIssue   `json:"compensation_errors,omitempty"`
	PartialOutput      map[string]StepOutput `json:"partial_output,omitempty"`
	Details            map[string]any        `json:"details,omitempty"`
}

type CompensationIssue struct {
	Step  string `json:"step"`
	Error string `json:"error"`
}

// Report 把任意错误转换为 ErrorReport；*Failure 会带上补偿明细。
func Report(err error) ErrorReport {
	r := ErrorReport{Kind: KindOf(err).String(), Message: err.Error()}
	var failure *Failure
	if !errors.As(err, &failure) {
		return r
	}
	r.SagaID = failure.SagaID
	r.FailedStep = failure.FailedStep
	r.Cause = KindOf(failure.Err).String()
	r.Compensated = failure.Compensated
	r.PartialOutput = failure.PartialOutput
	r.Details = failure.Details
	for _, ce := range failure.CompensationErrors {
		r.CompensationErrors = append(r.CompensationErrors, CompensationIssue{Step: ce.Step, Error: ce.Err.Error()})
	}
	return r
}
