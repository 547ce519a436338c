package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"backend_rentio/models"
)

func TestMonitorService_CheckOverdueAssignments(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusActive)

	// Плановая дата окончания уже в прошлом
	overdueEnd := time.Now().Add(-48 * time.Hour)
	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:      asset.ID,
		ContractID:   contract.ID,
		Obra:         "Стройплощадка Север",
		EstimatedEnd: &overdueEnd,
	})
	assert.NoError(t, err)

	assert.NoError(t, env.monitor.CheckOverdueAssignments())

	events := findEvents(t, env, &asset.ID, models.EventAssetAssignmentOverdue)
	assert.Len(t, events, 1)
	payload := decodePayload(t, events[0])
	assert.Equal(t, "Стройплощадка Север", payload["obra"])

	// Повторный запуск не дублирует событие
	assert.NoError(t, env.monitor.CheckOverdueAssignments())
	events = findEvents(t, env, &asset.ID, models.EventAssetAssignmentOverdue)
	assert.Len(t, events, 1)
}

func TestMonitorService_IgnoresFutureAndClosedAssignments(t *testing.T) {
	env := setupEngineTest(t)
	contract := createTestContract(t, env, models.ContractStatusActive)

	// Назначение с плановой датой в будущем
	futureAsset := createTestAsset(t, env, models.StateAvailable)
	futureEnd := time.Now().Add(72 * time.Hour)
	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:      futureAsset.ID,
		ContractID:   contract.ID,
		Obra:         "Стройплощадка Север",
		EstimatedEnd: &futureEnd,
	})
	assert.NoError(t, err)

	// Просроченное, но уже закрытое назначение
	closedAsset := createTestAsset(t, env, models.StateReturned)
	pastEnd := time.Now().Add(-48 * time.Hour)
	closedAt := time.Now().Add(-24 * time.Hour)
	closed := &models.ContractAsset{
		TenantID:       env.tc.TenantID,
		BusinessUnitID: env.tc.BusinessUnitID,
		ContractID:     contract.ID,
		AssetID:        closedAsset.ID,
		Obra:           "Стройплощадка Юг",
		EstimatedEnd:   &pastEnd,
		ActualEnd:      &closedAt,
	}
	assert.NoError(t, env.db.Create(closed).Error)

	assert.NoError(t, env.monitor.CheckOverdueAssignments())

	assert.Len(t, findEvents(t, env, &futureAsset.ID, models.EventAssetAssignmentOverdue), 0)
	assert.Len(t, findEvents(t, env, &closedAsset.ID, models.EventAssetAssignmentOverdue), 0)
}

func TestMonitorService_IgnoresPausedContracts(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusActive)

	overdueEnd := time.Now().Add(-48 * time.Hour)
	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:      asset.ID,
		ContractID:   contract.ID,
		Obra:         "Стройплощадка Север",
		EstimatedEnd: &overdueEnd,
	})
	assert.NoError(t, err)

	// Приостановленный договор не мониторится
	assert.NoError(t, env.db.Model(&models.RentalContract{}).
		Where("id = ?", contract.ID).Update("status", models.ContractStatusPaused).Error)

	assert.NoError(t, env.monitor.CheckOverdueAssignments())
	assert.Len(t, findEvents(t, env, &asset.ID, models.EventAssetAssignmentOverdue), 0)
}
