package services

import (
	"errors"
	"fmt"
	"log"

	"gorm.io/gorm"

	"backend_rentio/models"
)

// LifecycleService управляет жизненным циклом техники: это единственная точка,
// которой разрешено изменять AssetState. Примитив перехода сам по себе не
// проверяет легальность перехода в графе workflow: набор допустимых
// предшественников зависит от вызывающего workflow (например, покинуть
// состояние incident можно только через разрешение инцидента).
type LifecycleService struct {
	db     *gorm.DB
	events *EventService
	cache  *CacheService
	logger *log.Logger
}

// NewLifecycleService создает новый экземпляр LifecycleService
func NewLifecycleService(db *gorm.DB, events *EventService, cache *CacheService, logger *log.Logger) *LifecycleService {
	return &LifecycleService{
		db:     db,
		events: events,
		cache:  cache,
		logger: logger,
	}
}

// RegisterAsset регистрирует новый актив: создает Asset и его AssetState
// (начальное состояние available) в одной транзакции. AssetState обязан
// существовать до любых переходов, автосоздания при переходах нет.
func (ls *LifecycleService) RegisterAsset(tc TenantContext, asset *models.Asset) error {
	if asset.Type == "" {
		return fmt.Errorf("%w: тип техники обязателен", ErrInvalidInput)
	}

	asset.TenantID = tc.TenantID
	asset.BusinessUnitID = tc.BusinessUnitID

	tx := ls.db.Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
		}
	}()

	if err := tx.Create(asset).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("ошибка при создании актива: %w", err)
	}

	state := &models.AssetState{
		TenantID:       tc.TenantID,
		BusinessUnitID: tc.BusinessUnitID,
		AssetID:        asset.ID,
		WorkflowID:     models.WorkflowAssetLifecycle,
		CurrentState:   models.StateAvailable,
	}
	if err := tx.Create(state).Error; err != nil {
		tx.Rollback()
		return fmt.Errorf("ошибка при создании состояния актива: %w", err)
	}

	if err := ls.events.Record(tx, tc, models.EventAssetRegistered, &asset.ID, nil, map[string]interface{}{
		"type":     asset.Type,
		"name":     asset.Name,
		"location": asset.CurrentLocation,
	}); err != nil {
		tx.Rollback()
		return err
	}

	if err := tx.Commit().Error; err != nil {
		return fmt.Errorf("ошибка при фиксации транзакции: %w", err)
	}

	return nil
}

// GetAsset возвращает актив в пределах области арендатора
func (ls *LifecycleService) GetAsset(tc TenantContext, assetID uint) (*models.Asset, error) {
	return ls.getAssetTx(ls.db, tc, assetID)
}

// getAssetTx загружает актив в рамках транзакции
func (ls *LifecycleService) getAssetTx(tx *gorm.DB, tc TenantContext, assetID uint) (*models.Asset, error) {
	var asset models.Asset
	if err := scoped(tx, tc).First(&asset, assetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: актив %d", ErrNotFound, assetID)
		}
		return nil, fmt.Errorf("ошибка при получении актива: %w", err)
	}
	return &asset, nil
}

// GetState возвращает текущее состояние актива
func (ls *LifecycleService) GetState(tc TenantContext, assetID uint) (*models.AssetState, error) {
	return ls.getStateTx(ls.db, tc, assetID)
}

// getStateTx загружает AssetState в рамках транзакции. Отсутствие записи
// состояния у существующего актива означает ошибку провижининга, поэтому
// возвращается ErrNotFound, а не неявное available.
func (ls *LifecycleService) getStateTx(tx *gorm.DB, tc TenantContext, assetID uint) (*models.AssetState, error) {
	var state models.AssetState
	err := scoped(tx, tc).Where("asset_id = ?", assetID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: состояние актива %d", ErrNotFound, assetID)
		}
		return nil, fmt.Errorf("ошибка при получении состояния актива: %w", err)
	}
	return &state, nil
}

// Transition переводит актив в целевое состояние в отдельной транзакции
func (ls *LifecycleService) Transition(tc TenantContext, assetID uint, target models.AssetLifecycleState) error {
	err := ls.db.Transaction(func(tx *gorm.DB) error {
		_, err := ls.transitionTx(tx, tc, assetID, target, nil)
		return err
	})
	if err != nil {
		return err
	}

	ls.cache.InvalidateProjection(tc, assetID)
	return nil
}

// transitionTx применяет переход состояния: перезаписывает current_state и
// всегда добавляет событие asset.state_changed с предыдущим и новым
// состоянием. Возвращает предыдущее состояние.
func (ls *LifecycleService) transitionTx(tx *gorm.DB, tc TenantContext, assetID uint,
	target models.AssetLifecycleState, extra map[string]interface{}) (models.AssetLifecycleState, error) {

	if !models.IsKnownLifecycleState(target) {
		return "", fmt.Errorf("%w: неизвестное состояние %q для workflow %s",
			ErrInvalidInput, target, models.WorkflowAssetLifecycle)
	}

	state, err := ls.getStateTx(tx, tc, assetID)
	if err != nil {
		return "", err
	}

	previous := state.CurrentState
	state.CurrentState = target
	if err := tx.Save(state).Error; err != nil {
		return "", fmt.Errorf("ошибка при смене состояния актива: %w", err)
	}

	payload := map[string]interface{}{
		"workflow_id":    state.WorkflowID,
		"previous_state": string(previous),
		"new_state":      string(target),
	}
	for k, v := range extra {
		payload[k] = v
	}

	if err := ls.events.Record(tx, tc, models.EventAssetStateChanged, &assetID, nil, payload); err != nil {
		return "", err
	}

	return previous, nil
}

// Decommission выводит актив из эксплуатации. Причина обязательна; целевое
// состояние всегда out_of_service. Атрибуция клиенту пишется в payload
// события для последующего выставления счета.
func (ls *LifecycleService) Decommission(tc TenantContext, assetID uint, reason string,
	attributableToClient bool, clientID *uint) error {

	if reason == "" {
		return fmt.Errorf("%w: причина вывода из эксплуатации обязательна", ErrInvalidInput)
	}

	err := ls.db.Transaction(func(tx *gorm.DB) error {
		previous, err := ls.transitionTx(tx, tc, assetID, models.StateOutOfService, nil)
		if err != nil {
			return err
		}

		payload := map[string]interface{}{
			"reason":                 reason,
			"previous_state":         string(previous),
			"attributable_to_client": attributableToClient,
		}
		if clientID != nil {
			payload["client_id"] = *clientID
		}

		return ls.events.Record(tx, tc, models.EventAssetDecommissioned, &assetID, nil, payload)
	})
	if err != nil {
		return err
	}

	if ls.logger != nil {
		ls.logger.Printf("Актив %d выведен из эксплуатации: %s", assetID, reason)
	}

	ls.cache.InvalidateProjection(tc, assetID)
	return nil
}

// DeleteAsset удаляет актив (soft delete). Перед удалением обязательно
// пишется событие аудита.
func (ls *LifecycleService) DeleteAsset(tc TenantContext, assetID uint) error {
	err := ls.db.Transaction(func(tx *gorm.DB) error {
		var asset models.Asset
		if err := scoped(tx, tc).First(&asset, assetID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: актив %d", ErrNotFound, assetID)
			}
			return fmt.Errorf("ошибка при получении актива: %w", err)
		}

		// Сначала событие, потом удаление
		if err := ls.events.Record(tx, tc, models.EventAssetDeleted, &assetID, nil, map[string]interface{}{
			"type":          asset.Type,
			"name":          asset.Name,
			"serial_number": asset.SerialNumber,
		}); err != nil {
			return err
		}

		if err := tx.Delete(&asset).Error; err != nil {
			return fmt.Errorf("ошибка при удалении актива: %w", err)
		}

		return nil
	})
	if err != nil {
		return err
	}

	ls.cache.InvalidateProjection(tc, assetID)
	return nil
}
