package services

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"backend_rentio/models"
)

// engineTestEnv собирает все сервисы движка поверх in-memory базы
type engineTestEnv struct {
	db           *gorm.DB
	tc           TenantContext
	events       *EventService
	lifecycle    *LifecycleService
	assignments  *AssignmentService
	usage        *UsageService
	incidents    *IncidentService
	finalization *FinalizationService
	availability *AvailabilityService
	monitor      *MonitorService
}

func setupEngineTest(t *testing.T) *engineTestEnv {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)

	// Автомиграция моделей
	err = db.AutoMigrate(
		&models.Asset{},
		&models.AssetState{},
		&models.RentalContract{},
		&models.ContractAsset{},
		&models.Incident{},
		&models.UsageReport{},
		&models.AssetEvent{},
	)
	assert.NoError(t, err)

	cache := NewCacheService(nil, nil) // Без Redis в тестах
	events := NewEventService(db, "test", nil)
	lifecycle := NewLifecycleService(db, events, cache, nil)

	return &engineTestEnv{
		db: db,
		tc: TenantContext{
			TenantID:       uuid.NewString(),
			BusinessUnitID: uuid.NewString(),
		},
		events:       events,
		lifecycle:    lifecycle,
		assignments:  NewAssignmentService(db, lifecycle, events, nil),
		usage:        NewUsageService(db, events, nil),
		incidents:    NewIncidentService(db, lifecycle, events, false, nil),
		finalization: NewFinalizationService(db, lifecycle, events, "Центральный склад", nil),
		availability: NewAvailabilityService(db, cache, 2, nil),
		monitor:      NewMonitorService(db, events, nil),
	}
}

// createTestAsset создает актив с записью состояния напрямую в БД
func createTestAsset(t *testing.T, env *engineTestEnv, state models.AssetLifecycleState) *models.Asset {
	asset := &models.Asset{
		TenantID:        env.tc.TenantID,
		BusinessUnitID:  env.tc.BusinessUnitID,
		Name:            "Экскаватор JCB 3CX",
		Type:            "экскаватор",
		SerialNumber:    "JCB" + uuid.NewString()[:8],
		CurrentLocation: "Центральный склад",
	}
	assert.NoError(t, env.db.Create(asset).Error)

	assetState := &models.AssetState{
		TenantID:       env.tc.TenantID,
		BusinessUnitID: env.tc.BusinessUnitID,
		AssetID:        asset.ID,
		WorkflowID:     models.WorkflowAssetLifecycle,
		CurrentState:   state,
	}
	assert.NoError(t, env.db.Create(assetState).Error)

	return asset
}

// createTestContract создает договор аренды в заданном статусе
func createTestContract(t *testing.T, env *engineTestEnv, status string) *models.RentalContract {
	contract := &models.RentalContract{
		TenantID:       env.tc.TenantID,
		BusinessUnitID: env.tc.BusinessUnitID,
		Number:         "Д-2025/" + uuid.NewString()[:4],
		ClientName:     "ООО СтройТрест",
		Status:         status,
	}
	assert.NoError(t, env.db.Create(contract).Error)
	return contract
}

// getAssetState перечитывает состояние актива из БД
func getAssetState(t *testing.T, env *engineTestEnv, assetID uint) models.AssetState {
	var state models.AssetState
	err := env.db.Where("asset_id = ?", assetID).First(&state).Error
	assert.NoError(t, err)
	return state
}

// findEvents возвращает события заданного типа по активу
func findEvents(t *testing.T, env *engineTestEnv, assetID *uint, eventType models.AssetEventType) []models.AssetEvent {
	events, err := env.events.GetEvents(env.tc, EventFilters{AssetID: assetID, Type: string(eventType)})
	assert.NoError(t, err)
	return events
}

// decodePayload разбирает полезную нагрузку события
func decodePayload(t *testing.T, event models.AssetEvent) map[string]interface{} {
	payload := make(map[string]interface{})
	assert.NoError(t, json.Unmarshal([]byte(event.Payload), &payload))
	return payload
}

func TestLifecycleService_RegisterAsset(t *testing.T) {
	env := setupEngineTest(t)

	asset := &models.Asset{
		Name:            "Генератор Atlas Copco",
		Type:            "генератор",
		CurrentLocation: "Центральный склад",
	}
	err := env.lifecycle.RegisterAsset(env.tc, asset)
	assert.NoError(t, err)
	assert.NotZero(t, asset.ID)

	// Состояние создано вместе с активом
	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateAvailable, state.CurrentState)
	assert.Equal(t, models.WorkflowAssetLifecycle, state.WorkflowID)

	// Событие регистрации записано
	events := findEvents(t, env, &asset.ID, models.EventAssetRegistered)
	assert.Len(t, events, 1)
}

func TestLifecycleService_RegisterAssetRequiresType(t *testing.T) {
	env := setupEngineTest(t)

	err := env.lifecycle.RegisterAsset(env.tc, &models.Asset{Name: "Без типа"})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestLifecycleService_TransitionMissingStateRow(t *testing.T) {
	env := setupEngineTest(t)

	// Актив без записи состояния: ошибка провижининга, а не неявное available
	asset := &models.Asset{
		TenantID:       env.tc.TenantID,
		BusinessUnitID: env.tc.BusinessUnitID,
		Name:           "Компрессор",
		Type:           "компрессор",
	}
	assert.NoError(t, env.db.Create(asset).Error)

	err := env.lifecycle.Transition(env.tc, asset.ID, models.StateReserved)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleService_TransitionRecordsEvent(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)

	err := env.lifecycle.Transition(env.tc, asset.ID, models.StateMaintenance)
	assert.NoError(t, err)

	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateMaintenance, state.CurrentState)

	// Событие перехода содержит предыдущее и новое состояние
	events := findEvents(t, env, &asset.ID, models.EventAssetStateChanged)
	assert.Len(t, events, 1)
	payload := decodePayload(t, events[0])
	assert.Equal(t, "available", payload["previous_state"])
	assert.Equal(t, "maintenance", payload["new_state"])
	assert.Equal(t, models.WorkflowAssetLifecycle, payload["workflow_id"])
}

func TestLifecycleService_TransitionUnknownState(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)

	err := env.lifecycle.Transition(env.tc, asset.ID, models.AssetLifecycleState("teleported"))
	assert.ErrorIs(t, err, ErrInvalidInput)

	// Состояние не изменилось
	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateAvailable, state.CurrentState)
}

func TestLifecycleService_TransitionCrossTenant(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)

	// Чужой арендатор не должен узнать о существовании актива
	foreign := TenantContext{TenantID: uuid.NewString(), BusinessUnitID: uuid.NewString()}
	err := env.lifecycle.Transition(foreign, asset.ID, models.StateMaintenance)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLifecycleService_DecommissionRequiresReason(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateMaintenance)

	err := env.lifecycle.Decommission(env.tc, asset.ID, "", false, nil)
	assert.ErrorIs(t, err, ErrInvalidInput)

	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateMaintenance, state.CurrentState)
}

func TestLifecycleService_Decommission(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateMaintenance)

	clientID := uint(42)
	err := env.lifecycle.Decommission(env.tc, asset.ID, "разрушен гидравлический контур", true, &clientID)
	assert.NoError(t, err)

	state := getAssetState(t, env, asset.ID)
	assert.Equal(t, models.StateOutOfService, state.CurrentState)

	// Атрибуция клиенту в payload события для биллинга
	events := findEvents(t, env, &asset.ID, models.EventAssetDecommissioned)
	assert.Len(t, events, 1)
	payload := decodePayload(t, events[0])
	assert.Equal(t, "разрушен гидравлический контур", payload["reason"])
	assert.Equal(t, true, payload["attributable_to_client"])
	assert.Equal(t, float64(42), payload["client_id"])
}

func TestLifecycleService_DeleteAssetEmitsEventFirst(t *testing.T) {
	env := setupEngineTest(t)
	asset := createTestAsset(t, env, models.StateAvailable)

	err := env.lifecycle.DeleteAsset(env.tc, asset.ID)
	assert.NoError(t, err)

	// Актив удален (soft delete)
	var deleted models.Asset
	err = env.db.First(&deleted, asset.ID).Error
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	// Событие аудита записано до удаления
	events := findEvents(t, env, &asset.ID, models.EventAssetDeleted)
	assert.Len(t, events, 1)
}
