package domain

import "errors"

// Таксономия ошибок ядра. Обработчики сопоставляют их через errors.Is,
// поэтому все слои оборачивают ошибки с %w, не подменяя тип.
var (
	// ErrNotFound возвращается, если пользователь, контент или ребро не существуют.
	ErrNotFound = errors.New("объект не найден")
	// ErrInvalidOperation возвращается при недопустимой операции, например подписке на себя.
	ErrInvalidOperation = errors.New("недопустимая операция")
	// ErrAlreadyInState сигнализирует о повторном переходе в уже достигнутое состояние.
	// Поглощается на уровне юзкейсов и не видна вызывающему как ошибка.
	ErrAlreadyInState = errors.New("состояние уже установлено")
	// ErrStoreUnavailable возвращается, если хранилище недоступно. Ядро не делает ретраев.
	ErrStoreUnavailable = errors.New("хранилище недоступно")
)
