package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/chain"
	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

func seedDisputedMilestone(t *testing.T, env *testEnv, client, freelancer uuid.UUID) (*models.Project, *models.Dispute) {
	t.Helper()
	ctx := context.Background()

	project := seedActiveProject(t, env, client, freelancer)
	_, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/m1.zip", "")
	require.NoError(t, err)

	dispute, err := env.disputeSvc.File(ctx, client, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Результат не соответствует техническому заданию.",
	})
	require.NoError(t, err)
	return project, dispute
}

func TestFileDispute(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	assert.Equal(t, valueobject.DisputeStatusOpen, dispute.Status)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusDisputed, stored.Status)
	// Escrow-статус этапа спором не меняется.
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, stored.Milestones[0].Status)

	// Спорная сдача заблокирована для приёмки.
	latest, err := env.submissions.LatestByMilestone(ctx, project.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusDisputed, latest.Status)
}

func TestFileDisputeDuplicate(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, _ := seedDisputedMilestone(t, env, client, freelancer)

	_, err := env.disputeSvc.File(context.Background(), freelancer, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Встречный спор по тому же этапу.",
	})
	// Проект уже disputed, второй спор не открывается.
	require.Error(t, err)
}

func TestFileDisputeOnlyParticipants(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)

	_, err := env.disputeSvc.File(context.Background(), uuid.New(), FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Посторонний пытается открыть спор.",
	})
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestFileDisputeTerminalMilestone(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	sub, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/m1.zip", "")
	require.NoError(t, err)
	_, err = env.milestoneSvc.Approve(ctx, sub.ID, client, "0xrel1")
	require.NoError(t, err)

	_, err = env.disputeSvc.File(ctx, client, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Спор по уже оплаченному этапу.",
	})
	assert.True(t, apperror.IsInvalidState(err))
}

func TestResolveFavorFreelancer(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()
	admin := uuid.New()

	txID := "0xresolve"
	resolved, err := env.disputeSvc.Resolve(ctx, dispute.ID, admin, "Работа выполнена, средства исполнителю.", &txID, true)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, admin, *resolved.ResolvedBy)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, stored.Milestones[0].Status)
	require.NotNil(t, stored.Milestones[0].ReleaseTxID)
	assert.Equal(t, txID, *stored.Milestones[0].ReleaseTxID)
	// Проект вернулся в работу, следующий этап открыт.
	assert.Equal(t, valueobject.ProjectStatusActive, stored.Status)
	assert.Equal(t, valueobject.MilestoneStatusPending, stored.Milestones[1].Status)

	// Спорная сдача принята тем же tx.
	latest, err := env.submissions.LatestByMilestone(ctx, project.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusApproved, latest.Status)
}

func TestResolveFavorClient(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	txID := "0xrefund"
	_, err := env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Средства возвращаются клиенту.", &txID, false)
	require.NoError(t, err)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusRefunded, stored.Milestones[0].Status)
	require.NotNil(t, stored.Milestones[0].RefundTxID)
	assert.Equal(t, txID, *stored.Milestones[0].RefundTxID)
	assert.Equal(t, valueobject.ProjectStatusActive, stored.Status)
}

// Без переданного tx id вызов контракта подписывается через мост.
func TestResolveSignsThroughBridge(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	_, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	resolved, err := env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Решение через серверную подпись.", nil, true)
	require.NoError(t, err)
	require.NotNil(t, resolved.ResolutionTxID)
	assert.Equal(t, "0xbridge", *resolved.ResolutionTxID)
	assert.Equal(t, "admin-resolve-dispute-stx", env.bridge.lastCall.Function)
}

func TestResolveCancelledSignature(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	_, dispute := seedDisputedMilestone(t, env, client, freelancer)
	env.bridge.result = chain.SignResult{Outcome: chain.OutcomeCancelled}
	ctx := context.Background()

	_, err := env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Подпись будет отменена.", nil, true)
	assert.True(t, apperror.IsCancelled(err))

	// Спор остался открытым, можно повторить.
	stored, err := env.disputes.GetByID(ctx, dispute.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusOpen, stored.Status)
}

func TestResolveAlreadyClosed(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	_, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	txID := "0xresolve"
	_, err := env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Первое решение.", &txID, true)
	require.NoError(t, err)

	_, err = env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Повторное решение.", &txID, false)
	assert.True(t, apperror.IsInvalidState(err))
}

func TestResetDispute(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	reset, err := env.disputeSvc.Reset(ctx, dispute.ID, uuid.New(), "Стороны договорились сами.")
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusReset, reset.Status)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, stored.Status)
	// Этап снова ждёт работы, средства не двигались.
	assert.Equal(t, valueobject.MilestoneStatusPending, stored.Milestones[0].Status)
	assert.Nil(t, stored.Milestones[0].ReleaseTxID)
	assert.Nil(t, stored.Milestones[0].RefundTxID)

	// Спорная сдача отклонена.
	latest, err := env.submissions.LatestByMilestone(ctx, project.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejected, latest.Status)

	// После сброса можно открыть новый спор.
	_, err = env.disputeSvc.File(ctx, freelancer, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Новый спор после сброса.",
	})
	assert.NoError(t, err)
}

// closeMilestoneOutOfBand переводит этап спора в терминальный статус
// напрямую в хранилище: так выглядит запись после ручной правки или
// внешнего вмешательства, в обход сервисных проверок.
func closeMilestoneOutOfBand(t *testing.T, env *testEnv, projectID int64, milestoneNum int, txID string) {
	t.Helper()
	ctx := context.Background()

	stored, err := env.projects.GetByID(ctx, projectID)
	require.NoError(t, err)
	milestone, ok := stored.Milestone(milestoneNum)
	require.True(t, ok)
	milestone.Status = valueobject.MilestoneStatusApproved
	milestone.ReleaseTxID = &txID
	milestone.Forced = true
	require.NoError(t, env.projects.Update(ctx, stored, stored.Status))
}

func TestResetRefusedForTerminalMilestone(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()

	closeMilestoneOutOfBand(t, env, project.ID, 1, "0xforce")

	_, err := env.disputeSvc.Reset(ctx, dispute.ID, uuid.New(), "Сброс после выплаты.")
	assert.True(t, apperror.IsInvalidState(err))
}

// Решение обязано закрывать спор и выводить проект из disputed, даже
// когда средства по этапу уже двигались: записывать больше нечего, но
// спор без терминального статуса застрял бы навсегда.
func TestResolveClosesDisputeAfterMilestoneAlreadyTerminal(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project, dispute := seedDisputedMilestone(t, env, client, freelancer)
	ctx := context.Background()
	admin := uuid.New()

	closeMilestoneOutOfBand(t, env, project.ID, 1, "0xforce")

	txID := "0xresolve"
	resolved, err := env.disputeSvc.Resolve(ctx, dispute.ID, admin, "Выплата по этапу уже прошла.", &txID, false)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolved, resolved.Status)
	require.NotNil(t, resolved.ResolvedBy)
	assert.Equal(t, admin, *resolved.ResolvedBy)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	// Проект вернулся в работу, а итог этапа не переписан: несмотря на
	// решение в пользу клиента, выплаченный этап не становится refunded.
	assert.Equal(t, valueobject.ProjectStatusActive, stored.Status)
	assert.Equal(t, valueobject.MilestoneStatusApproved, stored.Milestones[0].Status)
	assert.Nil(t, stored.Milestones[0].RefundTxID)
}
