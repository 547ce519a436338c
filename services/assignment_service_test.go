package services

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"backend_rentio/models"
)

func TestAssignmentService_AssignToContract(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusActive)

	start := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	end := time.Date(2025, 1, 10, 18, 0, 0, 0, time.UTC)

	assignment, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:        asset.ID,
		ContractID:     contract.ID,
		Obra:           "Стройплощадка Север",
		EstimatedStart: &start,
		EstimatedEnd:   &end,
		EstimatedHours: decimal.NewNullDecimal(decimal.NewFromInt(100)),
		EstimatedDays:  10,
	})
	assert.NoError(t, err)
	assert.NotNil(t, assignment)
	assert.NotZero(t, assignment.ID)
	assert.True(t, assignment.IsOpen())

	// Актив активирован и перемещен на обру
	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateInUse, state.CurrentState)

	var reloaded models.Asset
	assert.NoError(t, env.db.First(&reloaded, asset.ID).Error)
	assert.Equal(t, "Стройплощадка Север", reloaded.CurrentLocation)

	// Событие назначения с плановыми показателями
	events := findEvents(t, env, &asset.ID, models.EventAssetAssignedToContract)
	assert.Len(t, events, 1)
	payload := decodePayload(t, events[0])
	assert.Equal(t, "Стройплощадка Север", payload["obra"])
	assert.Equal(t, "100", payload["estimated_hours"])

	// Два перехода состояния: available->reserved, reserved->in_use
	changes := findEvents(t, env, &asset.ID, models.EventAssetStateChanged)
	assert.Len(t, changes, 2)
}

func TestAssignmentService_AssignRequiresObra(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusActive)

	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: contract.ID,
	})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestAssignmentService_AssignContractNotFound(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)

	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: 9999,
		Obra:       "Стройплощадка Север",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAssignmentService_AssignContractFinished(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusFinished)

	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: contract.ID,
		Obra:       "Стройплощадка Север",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestAssignmentService_AssignNotAvailable(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateInUse)
	contract := createTestContract(t, env, models.ContractStatusActive)

	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: contract.ID,
		Obra:       "Стройплощадка Юг",
	})
	assert.ErrorIs(t, err, ErrInvalidState)
	// Ошибка называет фактическое состояние
	assert.True(t, strings.Contains(err.Error(), "in_use"))
	assert.True(t, strings.Contains(err.Error(), "available"))
}

func TestAssignmentService_AssignDoubleBooking(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	active := createTestContract(t, env, models.ContractStatusActive)
	draft := createTestContract(t, env, models.ContractStatusDraft)

	// Открытое назначение под черновым договором уже удерживает актив,
	// даже если состояние рассинхронизировалось и осталось available
	existing := &models.ContractAsset{
		TenantID:       env.tc.TenantID,
		BusinessUnitID: env.tc.BusinessUnitID,
		ContractID:     draft.ID,
		AssetID:        asset.ID,
		Obra:           "Стройплощадка Запад",
	}
	assert.NoError(t, env.db.Create(existing).Error)

	_, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: active.ID,
		Obra:       "Стройплощадка Север",
	})
	assert.ErrorIs(t, err, ErrConflict)

	// Состояние не изменилось, второе назначение не создано
	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateAvailable, state.CurrentState)

	var count int64
	env.db.Model(&models.ContractAsset{}).Where("asset_id = ?", asset.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestAssignmentService_GetOpenAssignment(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)
	contract := createTestContract(t, env, models.ContractStatusActive)

	created, err := env.assignments.AssignToContract(env.tc, AssignmentInput{
		AssetID:    asset.ID,
		ContractID: contract.ID,
		Obra:       "Стройплощадка Север",
	})
	assert.NoError(t, err)

	found, err := env.assignments.GetOpenAssignment(env.tc, asset.ID)
	assert.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)

	// У актива без назначений открытого назначения нет
	other := createTestAsset(t, env, models.StateAvailable)
	_, err = env.assignments.GetOpenAssignment(env.tc, other.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
