package services

import (
	"errors"
	"fmt"

	"backend_rentio/models"
)

// Таксономия ошибок движка. Все ошибки предусловий обнаруживаются до любых
// изменений данных; вызывающая сторона различает их через errors.Is.
var (
	// ErrNotFound запись отсутствует или принадлежит другому арендатору.
	// Сообщение намеренно не различает эти случаи.
	ErrNotFound = errors.New("запись не найдена")

	// ErrInvalidState операция недопустима в текущем состоянии
	ErrInvalidState = errors.New("недопустимое состояние")

	// ErrInvalidInput некорректные входные данные
	ErrInvalidInput = errors.New("некорректные входные данные")

	// ErrConflict конфликт с существующими данными (например, двойное назначение)
	ErrConflict = errors.New("конфликт данных")
)

// invalidStateError формирует ошибку с фактическим состоянием актива,
// чтобы UI мог объяснить, почему действие заблокировано
func invalidStateError(entity string, actual models.AssetLifecycleState, expected models.AssetLifecycleState) error {
	return fmt.Errorf("%w: %s находится в состоянии %q, ожидалось %q", ErrInvalidState, entity, actual, expected)
}

// contractStatusError формирует ошибку по статусу договора
func contractStatusError(contractID uint, actual string, expected string) error {
	return fmt.Errorf("%w: договор %d имеет статус %q, ожидался %q", ErrInvalidState, contractID, actual, expected)
}
