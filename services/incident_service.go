package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"backend_rentio/models"
)

// IncidentService обрабатывает инциденты с техникой: регистрацию и
// трехвариантное разрешение (REPLACE, PAUSE, CONTINUE)
type IncidentService struct {
	db        *gorm.DB
	lifecycle *LifecycleService
	events    *EventService
	logger    *log.Logger

	// Разрешать ли несколько открытых инцидентов по одному активу
	AllowMultipleOpen bool
}

// NewIncidentService создает новый экземпляр IncidentService
func NewIncidentService(db *gorm.DB, lifecycle *LifecycleService, events *EventService,
	allowMultipleOpen bool, logger *log.Logger) *IncidentService {
	return &IncidentService{
		db:                db,
		lifecycle:         lifecycle,
		events:            events,
		logger:            logger,
		AllowMultipleOpen: allowMultipleOpen,
	}
}

// ReportIncident регистрирует инцидент. Договор должен быть ACTIVE.
// Инцидент всегда вытесняет нормальный поток: актив переводится в incident
// независимо от предыдущего состояния.
func (is *IncidentService) ReportIncident(tc TenantContext, assetID, contractID uint, description string) (*models.Incident, error) {
	if description == "" {
		return nil, fmt.Errorf("%w: описание инцидента обязательно", ErrInvalidInput)
	}

	var incident *models.Incident

	err := is.db.Transaction(func(tx *gorm.DB) error {
		// Актив должен существовать
		if _, err := is.lifecycle.getStateTx(tx, tc, assetID); err != nil {
			return err
		}

		var contract models.RentalContract
		if err := scoped(tx, tc).First(&contract, contractID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: договор %d", ErrNotFound, contractID)
			}
			return fmt.Errorf("ошибка при получении договора: %w", err)
		}
		if contract.Status != models.ContractStatusActive {
			return contractStatusError(contract.ID, contract.Status, models.ContractStatusActive)
		}

		// По умолчанию второй открытый инцидент по активу запрещен
		if !is.AllowMultipleOpen {
			var openCount int64
			err := scoped(tx.Model(&models.Incident{}), tc).
				Where("asset_id = ? AND resolved = ?", assetID, false).
				Count(&openCount).Error
			if err != nil {
				return fmt.Errorf("ошибка при проверке открытых инцидентов: %w", err)
			}
			if openCount > 0 {
				return fmt.Errorf("%w: по активу %d уже есть неразрешенный инцидент", ErrConflict, assetID)
			}
		}

		incident = &models.Incident{
			TenantID:       tc.TenantID,
			BusinessUnitID: tc.BusinessUnitID,
			AssetID:        assetID,
			ContractID:     contractID,
			Description:    description,
		}
		if err := tx.Create(incident).Error; err != nil {
			return fmt.Errorf("ошибка при создании инцидента: %w", err)
		}

		// Инцидент вытесняет любое предыдущее состояние
		if _, err := is.lifecycle.transitionTx(tx, tc, assetID, models.StateIncident, nil); err != nil {
			return err
		}

		return is.events.Record(tx, tc, models.EventAssetIncidentReported,
			&assetID, &contractID, map[string]interface{}{
				"incident_id": incident.ID,
				"description": description,
			})
	})
	if err != nil {
		return nil, err
	}

	is.lifecycle.cache.InvalidateProjection(tc, assetID)
	return incident, nil
}

// incidentResolution описывает изменения, которые нужно применить при
// разрешении инцидента. Диспетчеризация по решению отделена от самих
// изменений: каждый вариант лишь формирует описание эффекта.
type incidentResolution struct {
	targetState   *models.AssetLifecycleState // nil: актив остается в incident
	pauseContract bool
	eventType     models.AssetEventType
	payload       map[string]interface{}
}

// resolveReplace техника в ремонт, договор не трогаем, требуется замена
func resolveReplace() incidentResolution {
	target := models.StateMaintenance
	return incidentResolution{
		targetState: &target,
		eventType:   models.EventAssetIncidentResolvedReplace,
		payload:     map[string]interface{}{"requires_replacement": true},
	}
}

// resolvePause актив остается в incident, договор приостанавливается
func resolvePause() incidentResolution {
	return incidentResolution{
		pauseContract: true,
		eventType:     models.EventAssetIncidentResolvedPause,
	}
}

// resolveContinue техника возвращается в работу, договор не трогаем
func resolveContinue() incidentResolution {
	target := models.StateInUse
	return incidentResolution{
		targetState: &target,
		eventType:   models.EventAssetIncidentResolvedContinue,
	}
}

var incidentResolutionHandlers = map[string]func() incidentResolution{
	models.IncidentDecisionReplace:  resolveReplace,
	models.IncidentDecisionPause:    resolvePause,
	models.IncidentDecisionContinue: resolveContinue,
}

// ResolveIncident разрешает инцидент ровно один раз. Решение вне набора
// REPLACE/PAUSE/CONTINUE отклоняется до любых изменений; повторное
// разрешение является жесткой ошибкой, а не no-op.
func (is *IncidentService) ResolveIncident(tc TenantContext, incidentID uint, decision, resolution string) error {
	handler, ok := incidentResolutionHandlers[decision]
	if !ok {
		return fmt.Errorf("%w: недопустимое решение %q, ожидается REPLACE, PAUSE или CONTINUE",
			ErrInvalidInput, decision)
	}

	var assetID uint

	err := is.db.Transaction(func(tx *gorm.DB) error {
		var incident models.Incident
		if err := scoped(tx, tc).First(&incident, incidentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: инцидент %d", ErrNotFound, incidentID)
			}
			return fmt.Errorf("ошибка при получении инцидента: %w", err)
		}
		if incident.Resolved {
			return fmt.Errorf("%w: инцидент %d уже разрешен", ErrInvalidState, incidentID)
		}
		assetID = incident.AssetID

		effect := handler()

		// Эффект для актива
		if effect.targetState != nil {
			if _, err := is.lifecycle.transitionTx(tx, tc, incident.AssetID, *effect.targetState, nil); err != nil {
				return err
			}
		}

		// Эффект для договора
		if effect.pauseContract {
			res := scoped(tx.Model(&models.RentalContract{}), tc).
				Where("id = ?", incident.ContractID).
				Update("status", models.ContractStatusPaused)
			if res.Error != nil {
				return fmt.Errorf("ошибка при приостановке договора: %w", res.Error)
			}
			if res.RowsAffected == 0 {
				return fmt.Errorf("%w: договор %d", ErrNotFound, incident.ContractID)
			}
		}

		// Фиксируем разрешение
		now := time.Now()
		incident.Resolved = true
		incident.Decision = decision
		incident.Resolution = resolution
		incident.ResolvedAt = &now
		if err := tx.Save(&incident).Error; err != nil {
			return fmt.Errorf("ошибка при сохранении инцидента: %w", err)
		}

		payload := map[string]interface{}{
			"incident_id": incident.ID,
			"decision":    decision,
			"resolution":  resolution,
		}
		for k, v := range effect.payload {
			payload[k] = v
		}

		return is.events.Record(tx, tc, effect.eventType,
			&incident.AssetID, &incident.ContractID, payload)
	})
	if err != nil {
		return err
	}

	if is.logger != nil {
		is.logger.Printf("Инцидент %d разрешен с решением %s", incidentID, decision)
	}

	is.lifecycle.cache.InvalidateProjection(tc, assetID)
	return nil
}

// GetOpenIncidents возвращает неразрешенные инциденты по активу
func (is *IncidentService) GetOpenIncidents(tc TenantContext, assetID uint) ([]models.Incident, error) {
	var incidents []models.Incident
	err := scoped(is.db, tc).
		Where("asset_id = ? AND resolved = ?", assetID, false).
		Order("created_at DESC").
		Find(&incidents).Error
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении инцидентов: %w", err)
	}
	return incidents, nil
}
