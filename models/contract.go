package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Статусы договора аренды (открытое множество, базовый набор фиксирован)
const (
	ContractStatusDraft    = "DRAFT"
	ContractStatusActive   = "ACTIVE"
	ContractStatusPaused   = "PAUSED"
	ContractStatusFinished = "FINISHED"
)

// RentalContract представляет договор аренды техники с клиентом
type RentalContract struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_rental_contracts_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_rental_contracts_scope;type:varchar(64)"`

	// Основные поля договора
	Number string `json:"number" gorm:"type:varchar(50)"`

	// Клиент
	ClientName string `json:"client_name" gorm:"not null;type:varchar(200)"`
	ClientID   *uint  `json:"client_id" gorm:"index"`

	// Статус договора: DRAFT, ACTIVE, PAUSED, FINISHED
	Status string `json:"status" gorm:"default:'DRAFT';type:varchar(20)"`

	// Даты договора
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`

	// Дополнительная информация
	Notes string `json:"notes" gorm:"type:text"`

	// Связи
	Assets []ContractAsset `json:"assets,omitempty" gorm:"foreignKey:ContractID"`
}

// TableName задает имя таблицы для модели RentalContract
func (RentalContract) TableName() string {
	return "rental_contracts"
}

// HoldsAssets проверяет, удерживает ли договор назначенную технику эксклюзивно
func (rc *RentalContract) HoldsAssets() bool {
	return rc.Status == ContractStatusActive || rc.Status == ContractStatusDraft
}

// ContractAsset представляет назначение актива на договор для конкретной обры (объекта работ)
type ContractAsset struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_contract_assets_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_contract_assets_scope;type:varchar(64)"`

	// Связи с договором и активом
	ContractID uint            `json:"contract_id" gorm:"not null;index"`
	Contract   *RentalContract `json:"contract,omitempty" gorm:"foreignKey:ContractID"`
	AssetID    uint            `json:"asset_id" gorm:"not null;index"`
	Asset      *Asset          `json:"asset,omitempty" gorm:"foreignKey:AssetID"`

	// Объект работ, куда направляется техника
	Obra string `json:"obra" gorm:"not null;type:varchar(200)"`

	// Плановые показатели
	EstimatedStart *time.Time          `json:"estimated_start"`
	EstimatedEnd   *time.Time          `json:"estimated_end"`
	EstimatedHours decimal.NullDecimal `json:"estimated_hours" gorm:"type:decimal(10,2)"`
	EstimatedDays  int                 `json:"estimated_days"`

	// Фактические показатели: actual_end IS NULL означает открытое назначение
	ActualEnd   *time.Time          `json:"actual_end"`
	ActualHours decimal.NullDecimal `json:"actual_hours" gorm:"type:decimal(10,2)"`

	// Требуется ли обслуживание после завершения работ
	NeedsMaintenance bool `json:"needs_maintenance" gorm:"default:false"`
}

// TableName задает имя таблицы для модели ContractAsset
func (ContractAsset) TableName() string {
	return "contract_assets"
}

// IsOpen проверяет, открыто ли назначение (техника еще не возвращена)
func (ca *ContractAsset) IsOpen() bool {
	return ca.ActualEnd == nil
}
