package services

import (
	"gorm.io/gorm"
)

// TenantContext определяет область действия арендатора для всех операций движка.
// Значения приходят из контроллерного слоя уже аутентифицированными.
type TenantContext struct {
	TenantID       string
	BusinessUnitID string
}

// scoped применяет фильтр мультитенантности к запросу.
// Каждый запрос к данным обязан проходить через этот фильтр: промах по
// арендатору неотличим от отсутствия записи.
func scoped(db *gorm.DB, tc TenantContext) *gorm.DB {
	return db.Where("tenant_id = ? AND business_unit_id = ?", tc.TenantID, tc.BusinessUnitID)
}
