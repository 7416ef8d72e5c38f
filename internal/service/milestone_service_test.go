package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/models"
	"github.com/ignatzorin/escrow-backend/internal/pkg/apperror"
)

// seedActiveProject проводит проект через заявку и фондирование.
func seedActiveProject(t *testing.T, env *testEnv, clientID, freelancerID uuid.UUID) *models.Project {
	t.Helper()
	ctx := context.Background()

	project := seedOpenProject(t, env, clientID)
	proposal, err := env.proposalSvc.Submit(ctx, project.ID, freelancerID, testCoverLetter)
	require.NoError(t, err)
	_, err = env.proposalSvc.Accept(ctx, proposal.ID, clientID)
	require.NoError(t, err)

	project, err = env.milestoneSvc.Activate(ctx, project.ID, clientID, "0xescrow", 7)
	require.NoError(t, err)
	return project
}

func TestCreateProject(t *testing.T) {
	env := newTestEnv("sequential")
	client := uuid.New()

	project := seedOpenProject(t, env, client)
	assert.Equal(t, valueobject.ProjectStatusOpen, project.Status)
	assert.Equal(t, 2, project.NumMilestones)
	// 100 + 150 stx в микро-единицах.
	assert.Equal(t, int64(250_000_000), project.BudgetMicro)
	assert.Equal(t, project.MilestonesSumMicro(), project.BudgetMicro)
	for _, m := range project.Milestones {
		assert.Equal(t, valueobject.MilestoneStatusLocked, m.Status)
	}
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv("sequential")
	ctx := context.Background()
	client := uuid.New()

	base := CreateProjectInput{
		Category:    "backend",
		Token:       valueobject.TokenSTX,
		Title:       "Проект",
		Description: "Описание проекта.",
	}

	noMilestones := base
	noMilestones.Milestones = nil
	_, err := env.milestoneSvc.CreateProject(ctx, client, noMilestones)
	assert.Error(t, err)

	tooMany := base
	for i := 0; i < 5; i++ {
		tooMany.Milestones = append(tooMany.Milestones, MilestoneInput{Title: "Этап", Amount: "1"})
	}
	_, err = env.milestoneSvc.CreateProject(ctx, client, tooMany)
	assert.Error(t, err)

	zeroAmount := base
	zeroAmount.Milestones = []MilestoneInput{{Title: "Этап", Amount: "0"}}
	_, err = env.milestoneSvc.CreateProject(ctx, client, zeroAmount)
	assert.Error(t, err)

	badToken := base
	badToken.Token = "doge"
	badToken.Milestones = []MilestoneInput{{Title: "Этап", Amount: "1"}}
	_, err = env.milestoneSvc.CreateProject(ctx, client, badToken)
	assert.Error(t, err)
}

func TestActivateSequentialUnlocksFirstOnly(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()

	project := seedActiveProject(t, env, client, freelancer)
	assert.Equal(t, valueobject.ProjectStatusActive, project.Status)
	require.NotNil(t, project.FreelancerID)
	assert.Equal(t, freelancer, *project.FreelancerID)
	require.NotNil(t, project.OnChainID)
	assert.Equal(t, int64(7), *project.OnChainID)

	assert.Equal(t, valueobject.MilestoneStatusPending, project.Milestones[0].Status)
	assert.Equal(t, valueobject.MilestoneStatusLocked, project.Milestones[1].Status)
}

func TestActivateIndependentUnlocksAll(t *testing.T) {
	env := newTestEnv("independent")
	project := seedActiveProject(t, env, uuid.New(), uuid.New())

	for _, m := range project.Milestones {
		assert.Equal(t, valueobject.MilestoneStatusPending, m.Status)
	}
}

func TestActivateWithoutAcceptedProposal(t *testing.T) {
	env := newTestEnv("sequential")
	client := uuid.New()
	project := seedOpenProject(t, env, client)

	_, err := env.milestoneSvc.Activate(context.Background(), project.ID, client, "0xescrow", 7)
	require.Error(t, err)

	var appErr *apperror.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, apperror.ErrCodePrecondition, appErr.Code)
}

func TestActivateIdempotentRetry(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)

	// Клиент не получил ответ и повторил запрос с тем же tx id.
	again, err := env.milestoneSvc.Activate(context.Background(), project.ID, client, "0xescrow", 7)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, again.Status)

	// Повтор с другим tx id — уже ошибка состояния.
	_, err = env.milestoneSvc.Activate(context.Background(), project.ID, client, "0xother", 7)
	assert.True(t, apperror.IsInvalidState(err))
}

// Нулевой on-chain индекс — легитимное значение первой записи контракта.
func TestActivateZeroOnChainIndex(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	ctx := context.Background()

	project := seedOpenProject(t, env, client)
	proposal, err := env.proposalSvc.Submit(ctx, project.ID, freelancer, testCoverLetter)
	require.NoError(t, err)
	_, err = env.proposalSvc.Accept(ctx, proposal.ID, client)
	require.NoError(t, err)

	activated, err := env.milestoneSvc.Activate(ctx, project.ID, client, "0xescrow", 0)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, activated.Status)
	require.NotNil(t, activated.OnChainID)
	assert.Equal(t, int64(0), *activated.OnChainID)
}

func TestActivateOrphanedLeavesMarker(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	ctx := context.Background()

	project := seedOpenProject(t, env, client)
	proposal, err := env.proposalSvc.Submit(ctx, project.ID, freelancer, testCoverLetter)
	require.NoError(t, err)
	_, err = env.proposalSvc.Accept(ctx, proposal.ID, client)
	require.NoError(t, err)

	env.projects.failUpdate = errors.New("connection reset")
	_, err = env.milestoneSvc.Activate(ctx, project.ID, client, "0xescrow", 7)
	require.True(t, apperror.IsOrphaned(err))

	txID, ok := apperror.OrphanedTxID(err)
	require.True(t, ok)
	assert.Equal(t, "0xescrow", txID)

	pending, err := env.markers.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.ReconciliationEntityProject, pending[0].EntityKind)

	// Off-chain состояние не изменилось.
	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusOpen, stored.Status)
}

func TestSubmitWork(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "готово")
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusSubmitted, submission.Status)
	require.NotNil(t, submission.Note)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, stored.Milestones[0].Status)

	// Повторная сдача того же этапа до рассмотрения запрещена.
	_, err = env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/v2.zip", "")
	assert.True(t, apperror.IsInvalidState(err))

	// Заблокированный этап сдать нельзя.
	_, err = env.milestoneSvc.SubmitWork(ctx, project.ID, 2, freelancer, "https://example.com/v2.zip", "")
	assert.True(t, apperror.IsInvalidState(err))

	// Чужой исполнитель не сдаёт работу.
	_, err = env.milestoneSvc.SubmitWork(ctx, project.ID, 1, uuid.New(), "https://example.com/x.zip", "")
	assert.ErrorIs(t, err, apperror.ErrForbidden)
}

func TestApproveReleasesAndUnlocksNext(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "")
	require.NoError(t, err)

	updated, err := env.milestoneSvc.Approve(ctx, submission.ID, client, "0xrelease1")
	require.NoError(t, err)

	assert.Equal(t, valueobject.MilestoneStatusApproved, updated.Milestones[0].Status)
	require.NotNil(t, updated.Milestones[0].ReleaseTxID)
	assert.Equal(t, "0xrelease1", *updated.Milestones[0].ReleaseTxID)
	// Следующий этап открылся.
	assert.Equal(t, valueobject.MilestoneStatusPending, updated.Milestones[1].Status)
	assert.Equal(t, valueobject.ProjectStatusActive, updated.Status)

	// Принятую сдачу нельзя принять второй раз.
	_, err = env.milestoneSvc.Approve(ctx, submission.ID, client, "0xrelease1")
	assert.True(t, apperror.IsInvalidState(err))
}

func TestApproveOnlyLatestSubmission(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	first, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/v1.zip", "")
	require.NoError(t, err)
	_, err = env.milestoneSvc.RejectSubmission(ctx, first.ID, client)
	require.NoError(t, err)
	second, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/v2.zip", "")
	require.NoError(t, err)

	// Отклонённая сдача не принимается, авторитетна последняя.
	_, err = env.milestoneSvc.Approve(ctx, first.ID, client, "0xrelease")
	assert.True(t, apperror.IsInvalidState(err))

	_, err = env.milestoneSvc.Approve(ctx, second.ID, client, "0xrelease")
	assert.NoError(t, err)
}

func TestApproveBlockedByOpenDispute(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "")
	require.NoError(t, err)

	_, err = env.disputeSvc.File(ctx, client, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		Reason:       "Результат не соответствует заданию.",
	})
	require.NoError(t, err)

	_, err = env.milestoneSvc.Approve(ctx, submission.ID, client, "0xrelease")
	require.Error(t, err)
	// Сдача помечена disputed, так что приёмка падает ещё на статусе.
	assert.True(t, apperror.IsInvalidState(err) || apperror.IsConflict(err))
}

// Спор, поданный после проверки, но до записи (подпись ждём без
// блокировки проекта), обязан останавливать запись: приёмка и спор по
// одному этапу взаимоисключающи. Повтор по маркеру проверку не
// выполняет — вызов контракта уже прошёл.
func TestApproveRechecksDisputeAtCommit(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "")
	require.NoError(t, err)

	// Спор появляется в хранилище между проверкой и записью — сама
	// запись спора, без пометки сдачи и смены статуса проекта.
	dispute := &models.Dispute{
		ProjectID:    project.ID,
		MilestoneNum: 1,
		FiledBy:      client,
		Reason:       "Спор подан во время ожидания подписи.",
		Status:       valueobject.DisputeStatusOpen,
	}
	require.NoError(t, env.disputes.Create(ctx, dispute))

	err = env.milestoneSvc.commitApprove(ctx, submission.ID, "0xrelease", false)
	assert.True(t, apperror.IsConflict(err))

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusSubmitted, stored.Milestones[0].Status)

	// Повтор по маркеру идёт без проверки и доводит запись до конца.
	require.NoError(t, env.milestoneSvc.commitApprove(ctx, submission.ID, "0xrelease", true))
	stored, err = env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, stored.Milestones[0].Status)
}

func TestRejectSubmissionReturnsMilestoneToPending(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "")
	require.NoError(t, err)

	rejected, err := env.milestoneSvc.RejectSubmission(ctx, submission.ID, client)
	require.NoError(t, err)
	assert.Equal(t, valueobject.SubmissionStatusRejected, rejected.Status)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusPending, stored.Milestones[0].Status)
}

func TestProgressSnapshot(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	project := seedActiveProject(t, env, client, freelancer)
	ctx := context.Background()

	submission, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/result.zip", "")
	require.NoError(t, err)
	_, err = env.milestoneSvc.Approve(ctx, submission.ID, client, "0xrelease1")
	require.NoError(t, err)

	progress, err := env.milestoneSvc.Progress(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(250_000_000), progress.TotalMicro)
	assert.Equal(t, int64(100_000_000), progress.ReleasedMicro)
	assert.Equal(t, int64(0), progress.RefundedMicro)
	assert.Equal(t, 1, progress.ApprovedCount)
	assert.Equal(t, 2, progress.MilestoneCount)
}

// Полный жизненный цикл: заявка, фондирование, приёмка первого этапа,
// спор по второму с возвратом клиенту. Возврат не завершает проект.
func TestFullLifecycleWithDisputeRefund(t *testing.T) {
	env := newTestEnv("sequential")
	client, freelancer := uuid.New(), uuid.New()
	ctx := context.Background()

	project := seedActiveProject(t, env, client, freelancer)
	assert.Equal(t, int64(250_000_000), project.BudgetMicro)

	// Этап 1: сдача и приёмка.
	sub1, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 1, freelancer, "https://example.com/m1.zip", "")
	require.NoError(t, err)
	project, err = env.milestoneSvc.Approve(ctx, sub1.ID, client, "0xrel1")
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusActive, project.Status)

	// Этап 2: сдача, спор клиента, решение в пользу клиента.
	sub2, err := env.milestoneSvc.SubmitWork(ctx, project.ID, 2, freelancer, "https://example.com/m2.zip", "")
	require.NoError(t, err)
	dispute, err := env.disputeSvc.File(ctx, client, FileDisputeInput{
		ProjectID:    project.ID,
		MilestoneNum: 2,
		Reason:       "Работа по второму этапу не принята.",
	})
	require.NoError(t, err)

	stored, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.ProjectStatusDisputed, stored.Status)

	refundTx := "0xresolve2"
	resolved, err := env.disputeSvc.Resolve(ctx, dispute.ID, uuid.New(), "Возврат средств клиенту по этапу 2.", &refundTx, false)
	require.NoError(t, err)
	assert.Equal(t, valueobject.DisputeStatusResolved, resolved.Status)

	final, err := env.projects.GetByID(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, valueobject.MilestoneStatusApproved, final.Milestones[0].Status)
	assert.Equal(t, valueobject.MilestoneStatusRefunded, final.Milestones[1].Status)
	require.NotNil(t, final.Milestones[1].RefundTxID)
	assert.Equal(t, refundTx, *final.Milestones[1].RefundTxID)

	// Этап возвращён — проект активен, но завершиться не может.
	assert.Equal(t, valueobject.ProjectStatusActive, final.Status)
	assert.True(t, final.AllMilestonesResolved())
	assert.False(t, final.AllMilestonesApproved())

	// Сдача по этапу 2 тоже закрыта.
	lastSub, err := env.submissions.GetByID(ctx, sub2.ID)
	require.NoError(t, err)
	assert.NotEqual(t, valueobject.SubmissionStatusApproved, lastSub.Status)

	progress, err := env.milestoneSvc.Progress(ctx, project.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100_000_000), progress.ReleasedMicro)
	assert.Equal(t, int64(150_000_000), progress.RefundedMicro)
}

// Приёмка всех этапов завершает проект.
func TestAllApprovedCompletesProject(t *testing.T) {
	env := newTestEnv("independent")
	client, freelancer := uuid.New(), uuid.New()
	ctx := context.Background()

	project := seedActiveProject(t, env, client, freelancer)

	for num := 1; num <= 2; num++ {
		sub, err := env.milestoneSvc.SubmitWork(ctx, project.ID, num, freelancer, "https://example.com/m.zip", "")
		require.NoError(t, err)
		project, err = env.milestoneSvc.Approve(ctx, sub.ID, client, "0xrel")
		require.NoError(t, err)
	}

	assert.Equal(t, valueobject.ProjectStatusCompleted, project.Status)
}
