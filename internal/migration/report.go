package migration

import (
	"errors"
	"time"
)

// Stage names a step of the per-task state machine.
type Stage string

// Task stages in execution order.
const (
	StageValidate  Stage = Stage("validate")
	StageClone     Stage = Stage("clone")
	StageProvision Stage = Stage("provision")
	StagePush      Stage = Stage("push")
	StageCleanup   Stage = Stage("cleanup")
)

// Outcome is the terminal state of a task.
type Outcome string

// Task outcomes.
const (
	OutcomeSuccess Outcome = Outcome("success")
	OutcomeFailed  Outcome = Outcome("failed")
)

// TaskReport describes how a single task ended.
type TaskReport struct {
	Task             Task
	Outcome          Outcome
	FailedStage      Stage
	Error            error
	CleanupError     error
	Workspace        Workspace
	Namespaces       NamespaceResolution
	Project          Project
	ProvisionOutcome ProvisionOutcome
	Duration         time.Duration
}

// Succeeded reports whether the task reached the destination.
func (report TaskReport) Succeeded() bool {
	return report.Outcome == OutcomeSuccess
}

// BatchReport lists task reports in input order.
type BatchReport struct {
	Tasks []TaskReport
}

// SucceededCount returns the number of successful tasks.
func (report BatchReport) SucceededCount() int {
	succeeded := 0
	for _, taskReport := range report.Tasks {
		if taskReport.Succeeded() {
			succeeded++
		}
	}
	return succeeded
}

// FailedCount returns the number of failed tasks.
func (report BatchReport) FailedCount() int {
	return len(report.Tasks) - report.SucceededCount()
}

// CleanupFailureCount returns the number of tasks whose workspace could not be released.
func (report BatchReport) CleanupFailureCount() int {
	failures := 0
	for _, taskReport := range report.Tasks {
		if taskReport.CleanupError != nil {
			failures++
		}
	}
	return failures
}

// Err joins the errors of every failed task, or returns nil when all tasks succeeded.
func (report BatchReport) Err() error {
	var taskErrors []error
	for _, taskReport := range report.Tasks {
		if !taskReport.Succeeded() && taskReport.Error != nil {
			taskErrors = append(taskErrors, taskReport.Error)
		}
	}
	return errors.Join(taskErrors...)
}
