package services

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"backend_rentio/models"
)

// MonitorService выполняет периодические проверки парка техники.
// Только добавляет события, состояние не изменяет.
type MonitorService struct {
	db     *gorm.DB
	events *EventService
	logger *log.Logger
}

// NewMonitorService создает новый экземпляр MonitorService
func NewMonitorService(db *gorm.DB, events *EventService, logger *log.Logger) *MonitorService {
	return &MonitorService{
		db:     db,
		events: events,
		logger: logger,
	}
}

// CheckOverdueAssignments ищет открытые назначения с истекшей плановой датой
// окончания под активными договорами и пишет событие asset.assignment_overdue.
// По каждому назначению событие пишется один раз.
func (ms *MonitorService) CheckOverdueAssignments() error {
	var assignments []models.ContractAsset
	err := ms.db.Model(&models.ContractAsset{}).
		Select("contract_assets.*").
		Joins("JOIN rental_contracts ON rental_contracts.id = contract_assets.contract_id").
		Where("contract_assets.actual_end IS NULL AND contract_assets.estimated_end < ?", time.Now()).
		Where("rental_contracts.status = ?", models.ContractStatusActive).
		Find(&assignments).Error
	if err != nil {
		return fmt.Errorf("ошибка при поиске просроченных назначений: %w", err)
	}

	for _, assignment := range assignments {
		tc := TenantContext{TenantID: assignment.TenantID, BusinessUnitID: assignment.BusinessUnitID}

		// Проверяем, не было ли уже события по этому назначению
		count, err := ms.events.CountEventsSince(tc, assignment.AssetID,
			models.EventAssetAssignmentOverdue, assignment.CreatedAt)
		if err != nil {
			if ms.logger != nil {
				ms.logger.Printf("Ошибка при проверке событий просрочки для назначения %d: %v", assignment.ID, err)
			}
			continue
		}
		if count > 0 {
			continue
		}

		err = ms.db.Transaction(func(tx *gorm.DB) error {
			return ms.events.Record(tx, tc, models.EventAssetAssignmentOverdue,
				&assignment.AssetID, &assignment.ContractID, map[string]interface{}{
					"contract_asset_id": assignment.ID,
					"obra":              assignment.Obra,
					"estimated_end":     assignment.EstimatedEnd.Format(time.RFC3339),
				})
		})
		if err != nil {
			if ms.logger != nil {
				ms.logger.Printf("Ошибка при записи события просрочки для назначения %d: %v", assignment.ID, err)
			}
		}
	}

	return nil
}

// RunPeriodicChecks запускает периодические проверки парка
func (ms *MonitorService) RunPeriodicChecks() {
	log.Println("Запуск периодических проверок парка техники...")

	if err := ms.CheckOverdueAssignments(); err != nil {
		log.Printf("Ошибка при проверке просроченных назначений: %v", err)
	}

	log.Println("Периодические проверки парка завершены")
}
