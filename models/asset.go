package models

import (
	"time"

	"gorm.io/gorm"
)

// AssetLifecycleState представляет состояние актива в жизненном цикле
type AssetLifecycleState string

// Состояния workflow "asset-lifecycle"
const (
	StateAvailable    AssetLifecycleState = "available"
	StateReserved     AssetLifecycleState = "reserved"
	StateInUse        AssetLifecycleState = "in_use"
	StateMaintenance  AssetLifecycleState = "maintenance"
	StateIncident     AssetLifecycleState = "incident"
	StateReturned     AssetLifecycleState = "returned"
	StateOutOfService AssetLifecycleState = "out_of_service" // терминальное состояние
)

// WorkflowAssetLifecycle идентификатор канонического workflow для арендной техники
const WorkflowAssetLifecycle = "asset-lifecycle"

// IsKnownLifecycleState проверяет, принадлежит ли состояние workflow "asset-lifecycle"
func IsKnownLifecycleState(state AssetLifecycleState) bool {
	switch state {
	case StateAvailable, StateReserved, StateInUse, StateMaintenance,
		StateIncident, StateReturned, StateOutOfService:
		return true
	}
	return false
}

// Asset представляет единицу арендной техники
type Asset struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	// Мультитенантность: все запросы фильтруются по обоим полям
	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_assets_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_assets_scope;type:varchar(64)"`

	// Основные характеристики техники
	Name         string `json:"name" gorm:"not null;type:varchar(200)"`
	Type         string `json:"type" gorm:"not null;type:varchar(50)"` // экскаватор, генератор, компрессор и т.д.
	SerialNumber string `json:"serial_number" gorm:"type:varchar(100)"`

	// Требования к эксплуатации
	RequiresOperator bool `json:"requires_operator" gorm:"default:false"`
	RequiresTracking bool `json:"requires_tracking" gorm:"default:false"`

	// Текущее физическое местоположение (свободный текст)
	CurrentLocation string `json:"current_location" gorm:"type:varchar(200)"`

	// Дополнительная информация
	Notes string `json:"notes" gorm:"type:text"`

	// Связи
	State *AssetState `json:"state,omitempty" gorm:"foreignKey:AssetID"`
}

// TableName задает имя таблицы для модели Asset
func (Asset) TableName() string {
	return "assets"
}

// AssetState хранит текущее состояние жизненного цикла актива (ровно одна запись на актив).
// Создается только при регистрации актива; изменяется только сервисом жизненного цикла.
type AssetState struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_asset_states_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_asset_states_scope;type:varchar(64)"`

	// Связь с активом (1:1)
	AssetID uint   `json:"asset_id" gorm:"not null;uniqueIndex"`
	Asset   *Asset `json:"asset,omitempty" gorm:"foreignKey:AssetID"`

	// Какой workflow управляет этим активом
	WorkflowID string `json:"workflow_id" gorm:"not null;default:'asset-lifecycle';type:varchar(50)"`

	// Текущее состояние в графе workflow
	CurrentState AssetLifecycleState `json:"current_state" gorm:"not null;type:varchar(30)"`
}

// TableName задает имя таблицы для модели AssetState
func (AssetState) TableName() string {
	return "asset_states"
}

// IsTerminal проверяет, находится ли актив в терминальном состоянии
func (as *AssetState) IsTerminal() bool {
	return as.CurrentState == StateOutOfService
}
