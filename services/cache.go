package services

import (
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"backend_rentio/database"
)

// CacheService предоставляет методы для кэширования прогнозов доступности
type CacheService struct {
	redis  *redis.Client
	logger *log.Logger
}

// NewCacheService создает новый экземпляр CacheService
func NewCacheService(redisClient *redis.Client, logger *log.Logger) *CacheService {
	return &CacheService{
		redis:  redisClient,
		logger: logger,
	}
}

// Константы для TTL кэша
const (
	// Прогноз доступности пересчитывается дешево, кэш короткоживущий
	CacheTTLProjection = 5 * time.Minute
)

// CacheProjection кэширует прогноз доступности актива
func (cs *CacheService) CacheProjection(tc TenantContext, assetID uint, projection interface{}) error {
	if cs.redis == nil {
		// Redis не подключен, просто пропускаем кэширование
		return nil
	}

	key := database.GenerateAssetCacheKey(tc.TenantID, tc.BusinessUnitID, assetID, "availability")
	return database.CacheSetJSON(key, projection, CacheTTLProjection)
}

// GetCachedProjection получает прогноз доступности из кэша
func (cs *CacheService) GetCachedProjection(tc TenantContext, assetID uint, dest interface{}) error {
	if cs.redis == nil {
		return fmt.Errorf("Redis не подключен")
	}

	key := database.GenerateAssetCacheKey(tc.TenantID, tc.BusinessUnitID, assetID, "availability")
	return database.CacheGetJSON(key, dest)
}

// InvalidateProjection инвалидирует кэш прогноза после смены состояния актива
func (cs *CacheService) InvalidateProjection(tc TenantContext, assetID uint) {
	if cs.redis == nil {
		return
	}

	key := database.GenerateAssetCacheKey(tc.TenantID, tc.BusinessUnitID, assetID, "availability")
	if err := database.CacheDel(key); err != nil && cs.logger != nil {
		cs.logger.Printf("Не удалось инвалидировать кэш прогноза для актива %d: %v", assetID, err)
	}
}
