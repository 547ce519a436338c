package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"backend_rentio/models"
)

// FinalizationService завершает договоры аренды: возвращает всю технику на
// базовый склад и закрывает договор.
//
// Политика частичного сбоя: возобновляемая. Возврат каждого актива
// выполняется в отдельной транзакции и идемпотентен (уже закрытые
// назначения пропускаются). Если возврат одного актива не удался, договор
// остается ACTIVE, ошибка называет проблемный актив, а повторный вызов
// завершает оставшиеся возвраты.
type FinalizationService struct {
	db            *gorm.DB
	lifecycle     *LifecycleService
	events        *EventService
	depotLocation string
	logger        *log.Logger
}

// NewFinalizationService создает новый экземпляр FinalizationService
func NewFinalizationService(db *gorm.DB, lifecycle *LifecycleService, events *EventService,
	depotLocation string, logger *log.Logger) *FinalizationService {
	return &FinalizationService{
		db:            db,
		lifecycle:     lifecycle,
		events:        events,
		depotLocation: depotLocation,
		logger:        logger,
	}
}

// FinalizeContract завершает договор: возвращает каждый назначенный актив
// (порядок не важен, возвраты независимы), затем переводит договор в
// FINISHED и пишет итоговое событие contract.finished.
func (fs *FinalizationService) FinalizeContract(tc TenantContext, contractID uint) (int, error) {
	var contract models.RentalContract
	if err := scoped(fs.db, tc).First(&contract, contractID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("%w: договор %d", ErrNotFound, contractID)
		}
		return 0, fmt.Errorf("ошибка при получении договора: %w", err)
	}
	if contract.Status != models.ContractStatusActive {
		return 0, contractStatusError(contract.ID, contract.Status, models.ContractStatusActive)
	}

	var assignments []models.ContractAsset
	if err := scoped(fs.db, tc).Where("contract_id = ?", contractID).Find(&assignments).Error; err != nil {
		return 0, fmt.Errorf("ошибка при получении назначений договора: %w", err)
	}

	returned := 0
	for _, assignment := range assignments {
		// Уже закрытые назначения пропускаются: повторный вызов после
		// частичного сбоя доделывает остаток
		if !assignment.IsOpen() {
			returned++
			continue
		}

		if err := fs.returnAsset(tc, &assignment); err != nil {
			return returned, fmt.Errorf("возврат актива %d не выполнен, договор %d остается активным: %w",
				assignment.AssetID, contractID, err)
		}
		returned++
	}

	// Все активы возвращены, закрываем договор
	err := fs.db.Transaction(func(tx *gorm.DB) error {
		res := scoped(tx.Model(&models.RentalContract{}), tc).
			Where("id = ? AND status = ?", contractID, models.ContractStatusActive).
			Update("status", models.ContractStatusFinished)
		if res.Error != nil {
			return fmt.Errorf("ошибка при закрытии договора: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: договор %d изменился во время завершения", ErrConflict, contractID)
		}

		return fs.events.Record(tx, tc, models.EventContractFinished, nil, &contractID, map[string]interface{}{
			"returned_assets": returned,
		})
	})
	if err != nil {
		return returned, err
	}

	if fs.logger != nil {
		fs.logger.Printf("Договор %d завершен, возвращено активов: %d", contractID, returned)
	}

	return returned, nil
}

// returnAsset возвращает один актив: состояние returned, перемещение на
// базовый склад, отметка actual_end, событие asset.returned. Отдельная
// транзакция на актив делает возврат независимым от остальных.
func (fs *FinalizationService) returnAsset(tc TenantContext, assignment *models.ContractAsset) error {
	err := fs.db.Transaction(func(tx *gorm.DB) error {
		if _, err := fs.lifecycle.transitionTx(tx, tc, assignment.AssetID, models.StateReturned, nil); err != nil {
			return err
		}

		if err := scoped(tx.Model(&models.Asset{}), tc).Where("id = ?", assignment.AssetID).
			Update("current_location", fs.depotLocation).Error; err != nil {
			return fmt.Errorf("ошибка при перемещении актива на склад: %w", err)
		}

		now := time.Now()
		res := scoped(tx.Model(&models.ContractAsset{}), tc).
			Where("id = ? AND actual_end IS NULL", assignment.ID).
			Update("actual_end", now)
		if res.Error != nil {
			return fmt.Errorf("ошибка при закрытии назначения: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// Назначение уже закрыто конкурентным вызовом, возврат идемпотентен
			return nil
		}

		return fs.events.Record(tx, tc, models.EventAssetReturned,
			&assignment.AssetID, &assignment.ContractID, map[string]interface{}{
				"contract_asset_id": assignment.ID,
				"obra":              assignment.Obra,
				"depot":             fs.depotLocation,
			})
	})
	if err != nil {
		return err
	}

	fs.lifecycle.cache.InvalidateProjection(tc, assignment.AssetID)
	return nil
}

// EvaluateAssetPostObra оценивает технику после возврата с объекта работ.
// Решение принимает человек после физического осмотра, поэтому оценка
// отделена от завершения договора: needsMaintenance переводит технику в
// maintenance, иначе она снова available.
func (fs *FinalizationService) EvaluateAssetPostObra(tc TenantContext, assetID uint, needsMaintenance bool) error {
	err := fs.db.Transaction(func(tx *gorm.DB) error {
		state, err := fs.lifecycle.getStateTx(tx, tc, assetID)
		if err != nil {
			return err
		}
		if state.CurrentState != models.StateReturned {
			return invalidStateError(fmt.Sprintf("актив %d", assetID), state.CurrentState, models.StateReturned)
		}

		// Отмечаем результат осмотра в последнем закрытом назначении
		var assignment models.ContractAsset
		err = scoped(tx, tc).
			Where("asset_id = ? AND actual_end IS NOT NULL", assetID).
			Order("actual_end DESC").
			First(&assignment).Error
		if err == nil {
			assignment.NeedsMaintenance = needsMaintenance
			if err := tx.Save(&assignment).Error; err != nil {
				return fmt.Errorf("ошибка при сохранении результата осмотра: %w", err)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("ошибка при поиске назначения: %w", err)
		}

		target := models.StateAvailable
		if needsMaintenance {
			target = models.StateMaintenance
		}
		if _, err := fs.lifecycle.transitionTx(tx, tc, assetID, target, nil); err != nil {
			return err
		}

		return fs.events.Record(tx, tc, models.EventAssetPostObraEvaluated, &assetID, nil, map[string]interface{}{
			"needs_maintenance": needsMaintenance,
			"new_state":         string(target),
		})
	})
	if err != nil {
		return err
	}

	fs.lifecycle.cache.InvalidateProjection(tc, assetID)
	return nil
}
