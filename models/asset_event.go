package models

import (
	"time"
)

// AssetEventType тип события жизненного цикла техники
type AssetEventType string

// События жизненного цикла и workflow
const (
	// Регистрация и списание
	EventAssetRegistered     AssetEventType = "asset.registered"
	EventAssetDeleted        AssetEventType = "asset.deleted"
	EventAssetDecommissioned AssetEventType = "asset.decommissioned"

	// Переходы состояний
	EventAssetStateChanged AssetEventType = "asset.state_changed"

	// Назначение на договор
	EventAssetAssignedToContract AssetEventType = "asset.assigned_to_contract"

	// Наработка и инциденты
	EventAssetUsageReported            AssetEventType = "asset.usage_reported"
	EventAssetIncidentReported         AssetEventType = "asset.incident_reported"
	EventAssetIncidentResolvedReplace  AssetEventType = "asset.incident_resolved_replace"
	EventAssetIncidentResolvedPause    AssetEventType = "asset.incident_resolved_pause"
	EventAssetIncidentResolvedContinue AssetEventType = "asset.incident_resolved_continue"

	// Завершение договора
	EventAssetReturned          AssetEventType = "asset.returned"
	EventAssetPostObraEvaluated AssetEventType = "asset.post_obra_evaluated"
	EventContractFinished       AssetEventType = "contract.finished"

	// Периодический мониторинг
	EventAssetAssignmentOverdue AssetEventType = "asset.assignment_overdue"
)

// AssetEvent представляет запись аудита: каждое действие, влияющее на состояние
// техники, оставляет событие. Записи никогда не изменяются и не удаляются движком.
type AssetEvent struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at" gorm:"index"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_asset_events_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_asset_events_scope;type:varchar(64)"`

	// Связанный актив (NULL для событий уровня договора)
	AssetID *uint `json:"asset_id" gorm:"index"`

	// Связанный договор, если применимо
	ContractID *uint `json:"contract_id" gorm:"index"`

	// Тип события в dotted-нотации, например "asset.assigned_to_contract"
	Type string `json:"type" gorm:"not null;index;type:varchar(100)"`

	// Источник события (имя сервиса или внешней системы)
	Source string `json:"source" gorm:"type:varchar(100)"`

	// Произвольная полезная нагрузка в JSON
	Payload string `json:"payload" gorm:"type:jsonb"`

	// Идентификатор корреляции для сквозной трассировки
	CorrelationID string `json:"correlation_id" gorm:"type:varchar(64)"`
}

// TableName задает имя таблицы для модели AssetEvent
func (AssetEvent) TableName() string {
	return "asset_events"
}
