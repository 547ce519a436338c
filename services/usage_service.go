package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"backend_rentio/models"
)

// UsageService фиксирует наработку техники и сравнивает план с фактом
type UsageService struct {
	db     *gorm.DB
	events *EventService
	logger *log.Logger
}

// NewUsageService создает новый экземпляр UsageService
func NewUsageService(db *gorm.DB, events *EventService, logger *log.Logger) *UsageService {
	return &UsageService{
		db:     db,
		events: events,
		logger: logger,
	}
}

// UsageInput параметры показания наработки
type UsageInput struct {
	AssetID    uint
	ContractID uint
	Metric     string // hours, km
	Value      decimal.Decimal
	ReportedAt time.Time
	Source     string
}

// RecordUsage записывает показание наработки. Требуется, чтобы актив был
// in_use, а договор ACTIVE: наработка по неактивной технике отклоняется,
// а не ставится в очередь.
func (us *UsageService) RecordUsage(tc TenantContext, input UsageInput) (*models.UsageReport, error) {
	if input.Metric == "" {
		return nil, fmt.Errorf("%w: метрика наработки обязательна", ErrInvalidInput)
	}
	if input.ReportedAt.IsZero() {
		input.ReportedAt = time.Now()
	}

	var report *models.UsageReport

	err := us.db.Transaction(func(tx *gorm.DB) error {
		var state models.AssetState
		err := scoped(tx, tc).Where("asset_id = ?", input.AssetID).First(&state).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: состояние актива %d", ErrNotFound, input.AssetID)
			}
			return fmt.Errorf("ошибка при получении состояния актива: %w", err)
		}
		if state.CurrentState != models.StateInUse {
			return invalidStateError(fmt.Sprintf("актив %d", input.AssetID), state.CurrentState, models.StateInUse)
		}

		var contract models.RentalContract
		if err := scoped(tx, tc).First(&contract, input.ContractID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: договор %d", ErrNotFound, input.ContractID)
			}
			return fmt.Errorf("ошибка при получении договора: %w", err)
		}
		if contract.Status != models.ContractStatusActive {
			return contractStatusError(contract.ID, contract.Status, models.ContractStatusActive)
		}

		report = &models.UsageReport{
			TenantID:       tc.TenantID,
			BusinessUnitID: tc.BusinessUnitID,
			AssetID:        input.AssetID,
			ContractID:     input.ContractID,
			Metric:         input.Metric,
			Value:          input.Value,
			ReportedAt:     input.ReportedAt,
			Source:         input.Source,
		}
		if err := tx.Create(report).Error; err != nil {
			return fmt.Errorf("ошибка при создании показания наработки: %w", err)
		}

		return us.events.Record(tx, tc, models.EventAssetUsageReported,
			&input.AssetID, &input.ContractID, map[string]interface{}{
				"metric":      input.Metric,
				"value":       input.Value.String(),
				"reported_at": input.ReportedAt.Format(time.RFC3339),
			})
	})
	if err != nil {
		return nil, err
	}

	return report, nil
}

// Статусы отклонения факта от плана
const (
	VarianceOverEstimate  = "OVER_ESTIMATE"
	VarianceUnderEstimate = "UNDER_ESTIMATE"
	VarianceOnTarget      = "ON_TARGET"
	VarianceNoEstimate    = "NO_ESTIMATE"
)

// UsageVariance результат сравнения плановой и фактической наработки
type UsageVariance struct {
	ContractAssetID uint                `json:"contract_asset_id"`
	EstimatedHours  decimal.NullDecimal `json:"estimated_hours"`
	ActualHours     decimal.Decimal     `json:"actual_hours"`
	Variance        decimal.NullDecimal `json:"variance"`
	VariancePercent decimal.NullDecimal `json:"variance_percent"`
	Status          string              `json:"status"`
}

// AnalyzeVariance сравнивает плановую наработку с фактической для назначения.
// Факт: сохраненные actual_hours, иначе сумма показаний наработки по паре
// актив-договор. Без плановой оценки статус NO_ESTIMATE, а не нулевое
// отклонение.
func (us *UsageService) AnalyzeVariance(tc TenantContext, contractAssetID uint) (*UsageVariance, error) {
	var assignment models.ContractAsset
	if err := scoped(us.db, tc).First(&assignment, contractAssetID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: назначение %d", ErrNotFound, contractAssetID)
		}
		return nil, fmt.Errorf("ошибка при получении назначения: %w", err)
	}

	actual, err := us.actualHours(tc, &assignment)
	if err != nil {
		return nil, err
	}

	result := &UsageVariance{
		ContractAssetID: assignment.ID,
		EstimatedHours:  assignment.EstimatedHours,
		ActualHours:     actual,
	}

	if !assignment.EstimatedHours.Valid {
		result.Status = VarianceNoEstimate
		return result, nil
	}

	estimated := assignment.EstimatedHours.Decimal
	variance := actual.Sub(estimated)
	result.Variance = decimal.NewNullDecimal(variance)

	// Процент отклонения считается только при положительной оценке
	if estimated.GreaterThan(decimal.Zero) {
		percent := variance.Div(estimated).Mul(decimal.NewFromInt(100)).Round(2)
		result.VariancePercent = decimal.NewNullDecimal(percent)
	}

	switch {
	case variance.GreaterThan(decimal.Zero):
		result.Status = VarianceOverEstimate
	case variance.LessThan(decimal.Zero):
		result.Status = VarianceUnderEstimate
	default:
		result.Status = VarianceOnTarget
	}

	return result, nil
}

// actualHours возвращает фактическую наработку назначения
func (us *UsageService) actualHours(tc TenantContext, assignment *models.ContractAsset) (decimal.Decimal, error) {
	if assignment.ActualHours.Valid {
		return assignment.ActualHours.Decimal, nil
	}

	// Суммируем показания наработки по паре актив-договор
	var reports []models.UsageReport
	err := scoped(us.db, tc).
		Where("asset_id = ? AND contract_id = ?", assignment.AssetID, assignment.ContractID).
		Find(&reports).Error
	if err != nil {
		return decimal.Zero, fmt.Errorf("ошибка при получении показаний наработки: %w", err)
	}

	total := decimal.Zero
	for _, report := range reports {
		total = total.Add(report.Value)
	}
	return total, nil
}
