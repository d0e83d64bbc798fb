package domain

// BadgeTier — уровень значка автора, производный от числа подписчиков.
// Значок нигде не хранится и пересчитывается при каждом чтении.
type BadgeTier string

const (
	BadgeNone   BadgeTier = "none"
	BadgeYellow BadgeTier = "yellow"
	BadgeRed    BadgeTier = "red"
	BadgeWhite  BadgeTier = "white"
)

// Пороги уровней значка по числу подписчиков.
const (
	BadgeYellowThreshold = 500_000
	BadgeRedThreshold    = 1_000_000
	BadgeWhiteThreshold  = 10_000_000
)

// TierForFollowers возвращает уровень значка для данного числа подписчиков.
// Автор всегда имеет ровно один уровень — старший из достигнутых.
func TierForFollowers(followers int64) BadgeTier {
	switch {
	case followers >= BadgeWhiteThreshold:
		return BadgeWhite
	case followers >= BadgeRedThreshold:
		return BadgeRed
	case followers >= BadgeYellowThreshold:
		return BadgeYellow
	default:
		return BadgeNone
	}
}
