package domain

// UntitledTrackName is used when neither artist nor title is known.
const UntitledTrackName = "Без названия"

// DefaultQueueViewLimit caps queue_state payloads.
const DefaultQueueViewLimit = 100

// DefaultCriteria are the scoring axes used when no criteria file is configured.
var DefaultCriteria = []Criterion{
	{Key: "rhyme", Label: "Текст + Рифмы"},
	{Key: "structure", Label: "Структура + Ритмика"},
	{Key: "style", Label: "Реализация стиля + Жанра"},
	{Key: "quality", Label: "Качество + Сведение"},
	{Key: "vibe", Label: "Вайб + Общее впечатление"},
}

// MySubmissionsLimit caps the submitter's own queue listing.
const MySubmissionsLimit = 50

// AllowedSubmissionExts are the audio containers accepted from the bot.
var AllowedSubmissionExts = []string{"mp3", "wav", "flac", "aiff", "aif", "ogg", "m4a"}

// Payment providers accepted by the intake API.
const (
	ProviderDonationAlerts = "donationalerts"
	ProviderTelegramStars  = "telegram_stars"
)

// KnownPaymentProvider reports whether p is an accepted provider.
func KnownPaymentProvider(p string) bool {
	return p == ProviderDonationAlerts || p == ProviderTelegramStars
}
