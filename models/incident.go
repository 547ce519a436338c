package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Решения по инциденту
const (
	IncidentDecisionReplace  = "REPLACE"  // техника в ремонт, требуется замена
	IncidentDecisionPause    = "PAUSE"    // договор приостанавливается
	IncidentDecisionContinue = "CONTINUE" // работа продолжается
)

// IsValidIncidentDecision проверяет, входит ли решение в допустимый набор
func IsValidIncidentDecision(decision string) bool {
	switch decision {
	case IncidentDecisionReplace, IncidentDecisionPause, IncidentDecisionContinue:
		return true
	}
	return false
}

// Incident представляет инцидент с техникой на объекте работ
type Incident struct {
	ID        uint           `json:"id" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at" gorm:"index"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_incidents_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_incidents_scope;type:varchar(64)"`

	// Связи с активом и договором
	AssetID    uint            `json:"asset_id" gorm:"not null;index"`
	Asset      *Asset          `json:"asset,omitempty" gorm:"foreignKey:AssetID"`
	ContractID uint            `json:"contract_id" gorm:"not null;index"`
	Contract   *RentalContract `json:"contract,omitempty" gorm:"foreignKey:ContractID"`

	// Описание проблемы
	Description string `json:"description" gorm:"not null;type:text"`

	// Разрешение: инцидент разрешается ровно один раз
	Resolved   bool       `json:"resolved" gorm:"default:false;index"`
	Decision   string     `json:"decision" gorm:"type:varchar(20)"` // REPLACE, PAUSE, CONTINUE
	Resolution string     `json:"resolution" gorm:"type:text"`
	ResolvedAt *time.Time `json:"resolved_at"`
}

// TableName задает имя таблицы для модели Incident
func (Incident) TableName() string {
	return "incidents"
}

// UsageReport представляет точечное показание наработки техники (часы, км и т.д.).
// Записи только добавляются и никогда не обновляются.
type UsageReport struct {
	ID        uint      `json:"id" gorm:"primarykey"`
	CreatedAt time.Time `json:"created_at"`

	TenantID       string `json:"tenant_id" gorm:"not null;index:idx_usage_reports_scope;type:varchar(64)"`
	BusinessUnitID string `json:"business_unit_id" gorm:"not null;index:idx_usage_reports_scope;type:varchar(64)"`

	// Связи с активом и договором
	AssetID    uint `json:"asset_id" gorm:"not null;index"`
	ContractID uint `json:"contract_id" gorm:"not null;index"`

	// Показание
	Metric     string          `json:"metric" gorm:"not null;type:varchar(30)"` // hours, km
	Value      decimal.Decimal `json:"value" gorm:"type:decimal(10,2)"`
	ReportedAt time.Time       `json:"reported_at" gorm:"not null"`

	// Кто сообщил показание
	Source string `json:"source" gorm:"type:varchar(100)"`
}

// TableName задает имя таблицы для модели UsageReport
func (UsageReport) TableName() string {
	return "usage_reports"
}
