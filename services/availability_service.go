package services

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"gorm.io/gorm"

	"backend_rentio/models"
)

// Статусы прогноза доступности
const (
	AvailabilityNow           = "AVAILABLE_NOW"
	AvailabilityInUse         = "IN_USE"
	AvailabilityMaintenance   = "MAINTENANCE"
	AvailabilityIndeterminate = "INDETERMINATE"
)

// AvailabilityProjection прогноз, когда актив снова станет доступен
type AvailabilityProjection struct {
	AssetID              uint       `json:"asset_id"`
	Status               string     `json:"status"`
	CurrentState         string     `json:"current_state"`
	EstimatedAvailableAt *time.Time `json:"estimated_available_at,omitempty"`
	Note                 string     `json:"note,omitempty"`
}

// AvailabilityService прогнозирует доступность техники. Только чтение:
// состояние никогда не изменяется.
type AvailabilityService struct {
	db         *gorm.DB
	cache      *CacheService
	marginDays int
	logger     *log.Logger
}

// NewAvailabilityService создает новый экземпляр AvailabilityService.
// marginDays страховой буфер к плановой дате окончания на случай
// поздних возвратов.
func NewAvailabilityService(db *gorm.DB, cache *CacheService, marginDays int, logger *log.Logger) *AvailabilityService {
	return &AvailabilityService{
		db:         db,
		cache:      cache,
		marginDays: marginDays,
		logger:     logger,
	}
}

// ProjectAvailability оценивает, когда актив станет доступен
func (avs *AvailabilityService) ProjectAvailability(tc TenantContext, assetID uint) (*AvailabilityProjection, error) {
	// Пробуем кэш
	var cached AvailabilityProjection
	if err := avs.cache.GetCachedProjection(tc, assetID, &cached); err == nil && cached.AssetID == assetID {
		return &cached, nil
	}

	var state models.AssetState
	err := scoped(avs.db, tc).Where("asset_id = ?", assetID).First(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: состояние актива %d", ErrNotFound, assetID)
		}
		return nil, fmt.Errorf("ошибка при получении состояния актива: %w", err)
	}

	projection := avs.project(tc, &state)

	if err := avs.cache.CacheProjection(tc, assetID, projection); err != nil && avs.logger != nil {
		avs.logger.Printf("Не удалось закэшировать прогноз для актива %d: %v", assetID, err)
	}

	return projection, nil
}

// project вычисляет прогноз по текущему состоянию
func (avs *AvailabilityService) project(tc TenantContext, state *models.AssetState) *AvailabilityProjection {
	projection := &AvailabilityProjection{
		AssetID:      state.AssetID,
		CurrentState: string(state.CurrentState),
	}

	switch state.CurrentState {
	case models.StateAvailable:
		projection.Status = AvailabilityNow

	case models.StateInUse:
		projection.Status = AvailabilityInUse

		var assignment models.ContractAsset
		err := scoped(avs.db, tc).
			Where("asset_id = ? AND actual_end IS NULL", state.AssetID).
			Order("created_at DESC").
			First(&assignment).Error
		if err != nil {
			// Актив in_use без открытого назначения: рассогласование данных.
			// Сообщаем прогноз без даты, а не падаем.
			if avs.logger != nil {
				avs.logger.Printf("Актив %d в состоянии in_use без открытого назначения", state.AssetID)
			}
			return projection
		}

		if assignment.EstimatedEnd != nil {
			available := assignment.EstimatedEnd.AddDate(0, 0, avs.marginDays)
			projection.EstimatedAvailableAt = &available
		}

	case models.StateMaintenance:
		// Доступность зависит от технической оценки человеком, не от времени
		projection.Status = AvailabilityMaintenance

	case models.StateIncident:
		projection.Status = AvailabilityIndeterminate
		projection.Note = "требуется разрешение инцидента"

	default:
		// Неизвестное состояние: возвращаем имя для диагностики
		projection.Status = AvailabilityIndeterminate
		projection.Note = fmt.Sprintf("нераспознанное состояние %q", state.CurrentState)
	}

	return projection
}

// ProjectByType строит прогнозы по всем активам заданного типа и сортирует:
// сначала доступные сейчас, затем по возрастанию прогнозной даты, в конце
// активы без даты.
func (avs *AvailabilityService) ProjectByType(tc TenantContext, assetType string) ([]AvailabilityProjection, error) {
	var assets []models.Asset
	if err := scoped(avs.db, tc).Where("type = ?", assetType).Find(&assets).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении активов типа %s: %w", assetType, err)
	}

	projections := make([]AvailabilityProjection, 0, len(assets))
	for _, asset := range assets {
		var state models.AssetState
		err := scoped(avs.db, tc).Where("asset_id = ?", asset.ID).First(&state).Error
		if err != nil {
			// Актив без записи состояния пропускается в пакетном прогнозе
			if avs.logger != nil {
				avs.logger.Printf("Актив %d без записи состояния пропущен в прогнозе", asset.ID)
			}
			continue
		}
		projections = append(projections, *avs.project(tc, &state))
	}

	sort.SliceStable(projections, func(i, j int) bool {
		a, b := projections[i], projections[j]

		// Доступные сейчас всегда первыми
		if (a.Status == AvailabilityNow) != (b.Status == AvailabilityNow) {
			return a.Status == AvailabilityNow
		}

		// Затем по прогнозной дате, активы без даты в конце
		switch {
		case a.EstimatedAvailableAt != nil && b.EstimatedAvailableAt != nil:
			return a.EstimatedAvailableAt.Before(*b.EstimatedAvailableAt)
		case a.EstimatedAvailableAt != nil:
			return true
		default:
			return false
		}
	})

	return projections, nil
}
