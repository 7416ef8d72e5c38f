package valueobject

import "github.com/ignatzorin/escrow-backend/internal/pkg/apperror"

type ProjectStatus string

const (
	ProjectStatusOpen      ProjectStatus = "open"
	ProjectStatusActive    ProjectStatus = "active"
	ProjectStatusCompleted ProjectStatus = "completed"
	ProjectStatusCancelled ProjectStatus = "cancelled"
	ProjectStatusDisputed  ProjectStatus = "disputed"
	ProjectStatusRefunded  ProjectStatus = "refunded"
)

func (s ProjectStatus) IsValid() bool {
	switch s {
	case ProjectStatusOpen, ProjectStatusActive, ProjectStatusCompleted,
		ProjectStatusCancelled, ProjectStatusDisputed, ProjectStatusRefunded:
		return true
	}
	return false
}

func (s ProjectStatus) IsTerminal() bool {
	return s == ProjectStatusCompleted || s == ProjectStatusCancelled || s == ProjectStatusRefunded
}

func (s ProjectStatus) CanTransitionTo(newStatus ProjectStatus) bool {
	transitions := map[ProjectStatus][]ProjectStatus{
		ProjectStatusOpen:      {ProjectStatusActive, ProjectStatusCancelled},
		ProjectStatusActive:    {ProjectStatusCompleted, ProjectStatusDisputed, ProjectStatusRefunded},
		ProjectStatusDisputed:  {ProjectStatusActive, ProjectStatusRefunded},
		ProjectStatusCompleted: {},
		ProjectStatusCancelled: {},
		ProjectStatusRefunded:  {},
	}
	for _, allowed := range transitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

type MilestoneStatus string

const (
	MilestoneStatusLocked    MilestoneStatus = "locked"
	MilestoneStatusPending   MilestoneStatus = "pending"
	MilestoneStatusSubmitted MilestoneStatus = "submitted"
	MilestoneStatusApproved  MilestoneStatus = "approved"
	MilestoneStatusRefunded  MilestoneStatus = "refunded"
)

func (s MilestoneStatus) IsValid() bool {
	switch s {
	case MilestoneStatusLocked, MilestoneStatusPending, MilestoneStatusSubmitted,
		MilestoneStatusApproved, MilestoneStatusRefunded:
		return true
	}
	return false
}

// IsTerminal: approved и refunded записываются один раз и не меняются.
func (s MilestoneStatus) IsTerminal() bool {
	return s == MilestoneStatusApproved || s == MilestoneStatusRefunded
}

// CanTransitionTo описывает обычный жизненный цикл этапа. Из locked
// нельзя попасть в approved напрямую: только через pending → submitted.
// Административный обход проверяется отдельно через CanForceRelease.
func (s MilestoneStatus) CanTransitionTo(newStatus MilestoneStatus) bool {
	transitions := map[MilestoneStatus][]MilestoneStatus{
		MilestoneStatusLocked:    {MilestoneStatusPending, MilestoneStatusRefunded},
		MilestoneStatusPending:   {MilestoneStatusSubmitted, MilestoneStatusRefunded},
		MilestoneStatusSubmitted: {MilestoneStatusApproved, MilestoneStatusPending, MilestoneStatusRefunded},
		MilestoneStatusApproved:  {},
		MilestoneStatusRefunded:  {},
	}
	for _, allowed := range transitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

// CanForceRelease: принудительная выплата допустима только для этапов,
// по которым средства ещё не двигались.
func (s MilestoneStatus) CanForceRelease() bool {
	return s == MilestoneStatusLocked || s == MilestoneStatusPending || s == MilestoneStatusSubmitted
}

type ProposalStatus string

const (
	ProposalStatusPending   ProposalStatus = "pending"
	ProposalStatusAccepted  ProposalStatus = "accepted"
	ProposalStatusRejected  ProposalStatus = "rejected"
	ProposalStatusWithdrawn ProposalStatus = "withdrawn"
)

func (s ProposalStatus) IsValid() bool {
	switch s {
	case ProposalStatusPending, ProposalStatusAccepted, ProposalStatusRejected, ProposalStatusWithdrawn:
		return true
	}
	return false
}

func (s ProposalStatus) CanTransitionTo(newStatus ProposalStatus) bool {
	if s != ProposalStatusPending {
		return false
	}
	return newStatus == ProposalStatusAccepted || newStatus == ProposalStatusRejected || newStatus == ProposalStatusWithdrawn
}

type SubmissionStatus string

const (
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
	SubmissionStatusApproved  SubmissionStatus = "approved"
	SubmissionStatusRejected  SubmissionStatus = "rejected"
	SubmissionStatusDisputed  SubmissionStatus = "disputed"
)

func (s SubmissionStatus) IsValid() bool {
	switch s {
	case SubmissionStatusSubmitted, SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusDisputed:
		return true
	}
	return false
}

func (s SubmissionStatus) CanTransitionTo(newStatus SubmissionStatus) bool {
	transitions := map[SubmissionStatus][]SubmissionStatus{
		SubmissionStatusSubmitted: {SubmissionStatusApproved, SubmissionStatusRejected, SubmissionStatusDisputed},
		SubmissionStatusDisputed:  {SubmissionStatusApproved, SubmissionStatusRejected},
		SubmissionStatusApproved:  {},
		SubmissionStatusRejected:  {},
	}
	for _, allowed := range transitions[s] {
		if allowed == newStatus {
			return true
		}
	}
	return false
}

type DisputeStatus string

const (
	DisputeStatusOpen     DisputeStatus = "open"
	DisputeStatusResolved DisputeStatus = "resolved"
	DisputeStatusReset    DisputeStatus = "reset"
)

func (s DisputeStatus) IsValid() bool {
	switch s {
	case DisputeStatusOpen, DisputeStatusResolved, DisputeStatusReset:
		return true
	}
	return false
}

// Обе несвободные вершины терминальны для записи спора; reset при этом
// разрешает подать новый спор по тому же этапу.
func (s DisputeStatus) CanTransitionTo(newStatus DisputeStatus) bool {
	if s != DisputeStatusOpen {
		return false
	}
	return newStatus == DisputeStatusResolved || newStatus == DisputeStatusReset
}

func NewProjectStatus(status string) (ProjectStatus, error) {
	s := ProjectStatus(status)
	if !s.IsValid() {
		return "", apperror.New(apperror.ErrCodeValidation, "некорректный статус проекта")
	}
	return s, nil
}
