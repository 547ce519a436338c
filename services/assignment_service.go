package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backend_rentio/models"
)

// AssignmentService назначает технику на договоры аренды.
// Ключевой инвариант: по активу одновременно может существовать не более
// одного открытого назначения под договором в статусе ACTIVE или DRAFT.
type AssignmentService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	events    *EventService
	logger    *log.Logger
}

// NewAssignmentService создает новый экземпляр AssignmentService
func NewAssignmentService(db *gorm.DB, lifecycle *LifecycleService, events *EventService, logger *log.Logger) *AssignmentService {
	return &AssignmentService{
		db:        db,
		lifecycle: lifecycle,
		events:    events,
		logger:    logger,
	}
}

// AssignmentInput параметры назначения актива на договор
type AssignmentInput struct {
	AssetID        uint
	ContractID     uint
	Obra           string
	EstimatedStart *time.Time
	EstimatedEnd   *time.Time
	EstimatedHours decimal.NullDecimal
	EstimatedDays  int
}

// AssignToContract назначает актив на договор: резервирует технику,
// создает запись назначения, активирует (in_use) и перемещает на обру.
// Все предусловия проверяются до изменений; проверка состояния и запись
// выполняются одним атомарным compare-and-set, чтобы два конкурентных
// запроса не забронировали одну машину дважды.
func (as *AssignmentService) AssignToContract(tc TenantContext, input AssignmentInput) (*models.ContractAsset, error) {
	if input.Obra == "" {
		return nil, fmt.Errorf("%w: обра (объект работ) обязательна", ErrInvalidInput)
	}

	var assignment *models.ContractAsset

	err := as.db.Transaction(func(tx *gorm.DB) error {
		// Договор должен существовать и удерживать технику
		var contract models.RentalContract
		if err := scoped(tx, tc).First(&contract, input.ContractID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: договор %d", ErrNotFound, input.ContractID)
			}
			return fmt.Errorf("ошибка при получении договора: %w", err)
		}
		if !contract.HoldsAssets() {
			return contractStatusError(contract.ID, contract.Status, models.ContractStatusActive)
		}

		// Актив должен существовать и иметь запись состояния
		asset, err := as.lifecycle.getAssetTx(tx, tc, input.AssetID)
		if err != nil {
			return err
		}
		state, err := as.lifecycle.getStateTx(tx, tc, input.AssetID)
		if err != nil {
			return err
		}
		if state.CurrentState != models.StateAvailable {
			return invalidStateError(fmt.Sprintf("актив %d", asset.ID), state.CurrentState, models.StateAvailable)
		}

		// Не допускаем второго открытого назначения под активным или
		// черновым договором
		var openCount int64
		err = tx.Model(&models.ContractAsset{}).
			Joins("JOIN rental_contracts ON rental_contracts.id = contract_assets.contract_id").
			Where("contract_assets.tenant_id = ? AND contract_assets.business_unit_id = ?",
				tc.TenantID, tc.BusinessUnitID).
			Where("contract_assets.asset_id = ? AND contract_assets.actual_end IS NULL", input.AssetID).
			Where("rental_contracts.status IN ?", []string{models.ContractStatusActive, models.ContractStatusDraft}).
			Count(&openCount).Error
		if err != nil {
			return fmt.Errorf("ошибка при проверке открытых назначений: %w", err)
		}
		if openCount > 0 {
			return fmt.Errorf("%w: актив %d уже закреплен за другим договором", ErrConflict, input.AssetID)
		}

		// Атомарное резервирование: UPDATE срабатывает только если состояние
		// всё еще available. При конкурентном назначении второй запрос
		// обновит 0 строк и завершится ошибкой.
		res := tx.Model(&models.AssetState{}).
			Where("id = ? AND current_state = ?", state.ID, models.StateAvailable).
			Update("current_state", models.StateReserved)
		if res.Error != nil {
			return fmt.Errorf("ошибка при резервировании актива: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%w: актив %d был занят конкурентным запросом", ErrConflict, input.AssetID)
		}

		if err := as.events.Record(tx, tc, models.EventAssetStateChanged, &input.AssetID, nil, map[string]interface{}{
			"workflow_id":    state.WorkflowID,
			"previous_state": string(models.StateAvailable),
			"new_state":      string(models.StateReserved),
		}); err != nil {
			return err
		}

		// Создаем запись назначения с плановыми показателями
		assignment = &models.ContractAsset{
			TenantID:       tc.TenantID,
			BusinessUnitID: tc.BusinessUnitID,
			ContractID:     input.ContractID,
			AssetID:        input.AssetID,
			Obra:           input.Obra,
			EstimatedStart: input.EstimatedStart,
			EstimatedEnd:   input.EstimatedEnd,
			EstimatedHours: input.EstimatedHours,
			EstimatedDays:  input.EstimatedDays,
		}
		if err := tx.Create(assignment).Error; err != nil {
			return fmt.Errorf("ошибка при создании назначения: %w", err)
		}

		// Активация: reserved -> in_use
		if _, err := as.lifecycle.transitionTx(tx, tc, input.AssetID, models.StateInUse, nil); err != nil {
			return err
		}

		// Перемещаем технику на объект работ
		if err := tx.Model(&models.Asset{}).Where("id = ?", asset.ID).
			Update("current_location", input.Obra).Error; err != nil {
			return fmt.Errorf("ошибка при перемещении актива: %w", err)
		}

		payload := map[string]interface{}{
			"obra":           input.Obra,
			"estimated_days": input.EstimatedDays,
		}
		if input.EstimatedStart != nil {
			payload["estimated_start"] = input.EstimatedStart.Format(time.RFC3339)
		}
		if input.EstimatedEnd != nil {
			payload["estimated_end"] = input.EstimatedEnd.Format(time.RFC3339)
		}
		if input.EstimatedHours.Valid {
			payload["estimated_hours"] = input.EstimatedHours.Decimal.String()
		}

		return as.events.Record(tx, tc, models.EventAssetAssignedToContract,
			&input.AssetID, &input.ContractID, payload)
	})
	if err != nil {
		return nil, err
	}

	if as.logger != nil {
		as.logger.Printf("Актив %d назначен на договор %d (обра: %s)",
			input.AssetID, input.ContractID, input.Obra)
	}

	as.lifecycle.cache.InvalidateProjection(tc, input.AssetID)
	return assignment, nil
}

// GetOpenAssignment возвращает открытое назначение актива, если оно есть
func (as *AssignmentService) GetOpenAssignment(tc TenantContext, assetID uint) (*models.ContractAsset, error) {
	var assignment models.ContractAsset
	err := scoped(as.db, tc).
		Where("asset_id = ? AND actual_end IS NULL", assetID).
		Order("created_at DESC").
		First(&assignment).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: открытое назначение актива %d", ErrNotFound, assetID)
		}
		return nil, fmt.Errorf("ошибка при поиске назначения: %w", err)
	}
	return &assignment, nil
}
