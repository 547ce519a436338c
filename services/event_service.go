package services

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"backend_rentio/models"
)

// EventService ведет append-only журнал событий техники. Чистый приемник:
// бизнес-логики не содержит, записи не изменяет и не удаляет.
type EventService struct {
	db     *gorm.DB
	source string
	logger *log.Logger
}

// NewEventService создает новый экземпляр EventService
func NewEventService(db *gorm.DB, source string, logger *log.Logger) *EventService {
	return &EventService{
		db:     db,
		source: source,
		logger: logger,
	}
}

// Record добавляет событие в журнал в рамках переданной транзакции.
// Workflow-сервисы передают свой tx, чтобы событие фиксировалось атомарно
// с изменением состояния.
func (es *EventService) Record(tx *gorm.DB, tc TenantContext, eventType models.AssetEventType,
	assetID *uint, contractID *uint, payload map[string]interface{}) error {

	event := &models.AssetEvent{
		TenantID:       tc.TenantID,
		BusinessUnitID: tc.BusinessUnitID,
		AssetID:        assetID,
		ContractID:     contractID,
		Type:           string(eventType),
		Source:         es.source,
		CorrelationID:  uuid.New().String(),
		CreatedAt:      time.Now(),
	}

	// Сериализуем полезную нагрузку
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("ошибка сериализации payload события %s: %w", eventType, err)
		}
		event.Payload = string(data)
	}

	if err := tx.Create(event).Error; err != nil {
		if es.logger != nil {
			es.logger.Printf("Не удалось записать событие %s: %v", eventType, err)
		}
		return fmt.Errorf("ошибка при записи события: %w", err)
	}

	return nil
}

// EventFilters фильтры для выборки событий
type EventFilters struct {
	AssetID    *uint
	ContractID *uint
	Type       string
	StartDate  time.Time
	EndDate    time.Time
	Limit      int
	Offset     int
}

// GetEvents возвращает события с фильтрацией
func (es *EventService) GetEvents(tc TenantContext, filters EventFilters) ([]models.AssetEvent, error) {
	query := scoped(es.db.Model(&models.AssetEvent{}), tc)

	// Применяем фильтры
	if filters.AssetID != nil {
		query = query.Where("asset_id = ?", *filters.AssetID)
	}

	if filters.ContractID != nil {
		query = query.Where("contract_id = ?", *filters.ContractID)
	}

	if filters.Type != "" {
		query = query.Where("type = ?", filters.Type)
	}

	if !filters.StartDate.IsZero() {
		query = query.Where("created_at >= ?", filters.StartDate)
	}

	if !filters.EndDate.IsZero() {
		query = query.Where("created_at <= ?", filters.EndDate)
	}

	// Сортировка и пагинация
	query = query.Order("created_at DESC")

	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}

	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}

	var events []models.AssetEvent
	if err := query.Find(&events).Error; err != nil {
		return nil, fmt.Errorf("ошибка при получении событий: %w", err)
	}

	return events, nil
}

// CountEventsSince возвращает количество событий типа eventType по активу,
// созданных после указанного момента
func (es *EventService) CountEventsSince(tc TenantContext, assetID uint, eventType models.AssetEventType, since time.Time) (int64, error) {
	var count int64
	err := scoped(es.db.Model(&models.AssetEvent{}), tc).
		Where("asset_id = ? AND type = ? AND created_at >= ?", assetID, string(eventType), since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("ошибка при подсчете событий: %w", err)
	}
	return count, nil
}
