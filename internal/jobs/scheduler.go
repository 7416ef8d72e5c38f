package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-backend/internal/domain/valueobject"
	"github.com/ignatzorin/escrow-backend/internal/logger"
	"github.com/ignatzorin/escrow-backend/internal/service"
)

// Scheduler — фоновые задачи: опрос владения контрактом, надзор за
// осиротевшими переходами и за проектами, полностью возвращёнными
// через споры. Задачи только читают и пишут кэш/лог, состояние
// проектов они не меняют.
type Scheduler struct {
	cron      *cron.Cron
	ownership *service.OwnershipService
	admin     *service.AdminService
	projects  service.ProjectStore
}

func NewScheduler(ownership *service.OwnershipService, admin *service.AdminService, projects service.ProjectStore) *Scheduler {
	return &Scheduler{
		cron:      cron.New(),
		ownership: ownership,
		admin:     admin,
		projects:  projects,
	}
}

// Start регистрирует задачи и запускает планировщик.
func (s *Scheduler) Start(ctx context.Context, ownershipSpec, sweepSpec string) error {
	if _, err := s.cron.AddFunc(ownershipSpec, func() { s.pollOwnership(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSpec, func() { s.sweepMarkers(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(sweepSpec, func() { s.sweepStalledProjects(ctx) }); err != nil {
		return err
	}
	s.cron.Start()
	logger.Log.WithFields(logrus.Fields{
		"ownership_spec": ownershipSpec,
		"sweep_spec":     sweepSpec,
	}).Info("jobs: планировщик запущен")
	return nil
}

// Stop останавливает планировщик и дожидается текущих задач.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) pollOwnership(ctx context.Context) {
	if _, err := s.ownership.Poll(ctx); err != nil {
		logger.Log.WithError(err).Warn("jobs: опрос владения контрактом не удался")
	}
}

// sweepMarkers громко напоминает об осиротевших переходах: система
// их не ретраит, замечать и повторять их должен администратор.
func (s *Scheduler) sweepMarkers(ctx context.Context) {
	markers, err := s.admin.ListMarkers(ctx)
	if err != nil {
		logger.Log.WithError(err).Warn("jobs: чтение маркеров сверки не удалось")
		return
	}
	for _, m := range markers {
		logger.Log.WithFields(logrus.Fields{
			"marker_id":  m.ID,
			"project_id": m.ProjectID,
			"entity":     m.EntityKind,
			"entity_id":  m.EntityID,
			"tx_id":      m.TxID,
			"transition": m.IntendedTransition,
			"age":        m.CreatedAt,
		}).Error("jobs: осиротевший переход ждёт ручного повтора")
	}
}

// sweepStalledProjects находит активные проекты, по которым каждый
// этап уже закрыт, но ни один не принят: все средства вернулись через
// споры. Такой проект остаётся активным намеренно, задача лишь
// подсвечивает его в логе.
func (s *Scheduler) sweepStalledProjects(ctx context.Context) {
	const pageSize = 100
	for offset := 0; ; offset += pageSize {
		projects, err := s.projects.List(ctx, valueobject.ProjectStatusActive, "", pageSize, offset)
		if err != nil {
			logger.Log.WithError(err).Warn("jobs: чтение активных проектов не удалось")
			return
		}
		for _, p := range projects {
			if p.AllMilestonesResolved() && !p.AllMilestonesApproved() {
				logger.Log.WithFields(logrus.Fields{
					"project_id": p.ID,
					"status":     p.Status,
				}).Warn("jobs: все этапы проекта закрыты возвратами, проект остаётся активным")
			}
		}
		if len(projects) < pageSize {
			return
		}
	}
}
