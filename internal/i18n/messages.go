package i18n

import "astro_bot/internal/domain"

// Message keys.
const (
	ChooseLanguage      = "choose_language"
	LanguageSet         = "language_set"
	AskBirthDate        = "ask_birth_date"
	InvalidBirthDate    = "invalid_birth_date"
	AskBirthTime        = "ask_birth_time"
	InvalidBirthTime    = "invalid_birth_time"
	AskBirthPlace       = "ask_birth_place"
	InvalidBirthPlace   = "invalid_birth_place"
	OnboardingDone      = "onboarding_done"
	FinishOnboarding    = "finish_onboarding"
	MainMenu            = "main_menu"
	Help                = "help"
	StateReset          = "state_reset"
	ChooseSpread        = "choose_spread"
	HoroscopeTitle      = "horoscope_title"
	DailyHoroscopeTitle = "daily_horoscope_title"
	TarotTitle          = "tarot_title"
	NumerologyTitle     = "numerology_title"
	NatalTitle          = "natal_title"
	BirthDataMissing    = "birth_data_missing"
	QuotaExceeded       = "quota_exceeded"
	PremiumOnly         = "premium_only"
	AIUnavailable       = "ai_unavailable"
	RetryLater          = "retry_later"
	ChoosePlan          = "choose_plan"
	PlanMonthly         = "plan_monthly"
	PlanYearly          = "plan_yearly"
	InvoiceTitle        = "invoice_title"
	InvoiceDescription  = "invoice_description"
	PaymentSuccess      = "payment_success"
	PaymentInvalid      = "payment_invalid"
	AlreadyLifetime     = "already_lifetime"
	ProfileSummary      = "profile_summary"
	TierFree            = "tier_free"
	TierPremiumUntil    = "tier_premium_until"
	TierLifetime        = "tier_lifetime"
	NotSet              = "not_set"
	Off                 = "off"
	SettingsMenu        = "settings_menu"
	ChooseDeliveryTime  = "choose_delivery_time"
	DeliveryTimeSet     = "delivery_time_set"
	DeliveryDisabled    = "delivery_disabled"
	GrantUsage          = "grant_usage"
	GrantDone           = "grant_done"
	GrantNotFound       = "grant_not_found"
	StatsSummary        = "stats_summary"

	ButtonHoroscope  = "button_horoscope"
	ButtonTarot      = "button_tarot"
	ButtonPremium    = "button_premium"
	ButtonProfile    = "button_profile"
	ButtonSettings   = "button_settings"
	ButtonNumerology = "button_numerology"
	ButtonNatal      = "button_natal"
	ButtonLanguage   = "button_language"
	ButtonTime       = "button_time"

	FeatureHoroscope  = "feature_horoscope"
	FeatureTarot      = "feature_tarot"
	FeatureChat       = "feature_chat"
	FeatureNumerology = "feature_numerology"
	FeatureNatal      = "feature_natal"

	NumberLifePath    = "number_life_path"
	NumberExpression  = "number_expression"
	NumberSoulUrge    = "number_soul_urge"
	NumberPersonality = "number_personality"
	NumberBirthDay    = "number_birth_day"
	NumberAttitude    = "number_attitude"

	SpreadSingle       = "spread_single"
	SpreadThreeCard    = "spread_three_card"
	SpreadRelationship = "spread_relationship"
	SpreadCareer       = "spread_career"
	SpreadCelticCross  = "spread_celtic_cross"
)

type byLanguage = map[domain.Language]string

const (
	en = domain.LanguageEnglish
	ru = domain.LanguageRussian
	es = domain.LanguageSpanish
)

var messages = map[string]byLanguage{
	ChooseLanguage: {
		en: "✨ Welcome to Astro Bot!\nPlease choose your language:\nПожалуйста, выберите язык:\nPor favor, elige tu idioma:",
	},
	LanguageSet: {
		en: "Language set to English.",
		ru: "Язык установлен: русский.",
		es: "Idioma configurado: español.",
	},
	AskBirthDate: {
		en: "Please send your birth date, for example 15.03.1990.",
		ru: "Пожалуйста, отправьте дату рождения, например 15.03.1990.",
		es: "Por favor, envía tu fecha de nacimiento, por ejemplo 15.03.1990.",
	},
	InvalidBirthDate: {
		en: "I couldn't read that date. Please use DD.MM.YYYY, for example 15.03.1990.",
		ru: "Не удалось распознать дату. Используйте формат ДД.ММ.ГГГГ, например 15.03.1990.",
		es: "No pude leer esa fecha. Usa el formato DD.MM.AAAA, por ejemplo 15.03.1990.",
	},
	AskBirthTime: {
		en: "Now send your birth time as HH:MM, or type \"skip\" if you don't know it.",
		ru: "Теперь отправьте время рождения в формате ЧЧ:ММ или напишите «пропустить», если не знаете.",
		es: "Ahora envía tu hora de nacimiento como HH:MM, o escribe \"saltar\" si no la sabes.",
	},
	InvalidBirthTime: {
		en: "Please send the time as HH:MM, for example 14:30, or type \"skip\".",
		ru: "Отправьте время в формате ЧЧ:ММ, например 14:30, или напишите «пропустить».",
		es: "Envía la hora como HH:MM, por ejemplo 14:30, o escribe \"saltar\".",
	},
	AskBirthPlace: {
		en: "Finally, send your birth place (city) or share a location.",
		ru: "И наконец, отправьте место рождения (город) или поделитесь геопозицией.",
		es: "Por último, envía tu lugar de nacimiento (ciudad) o comparte una ubicación.",
	},
	InvalidBirthPlace: {
		en: "Please send the name of a city.",
		ru: "Пожалуйста, отправьте название города.",
		es: "Por favor, envía el nombre de una ciudad.",
	},
	OnboardingDone: {
		en: "All set, %s! Your daily horoscope arrives at %s UTC. What would you like to do?",
		ru: "Готово, %s! Ежедневный гороскоп будет приходить в %s UTC. Что хотите сделать?",
		es: "¡Listo, %s! Tu horóscopo diario llegará a las %s UTC. ¿Qué quieres hacer?",
	},
	FinishOnboarding: {
		en: "Let's finish setting up your profile first.",
		ru: "Сначала давайте закончим настройку профиля.",
		es: "Primero terminemos de configurar tu perfil.",
	},
	MainMenu: {
		en: "What would you like to do?",
		ru: "Что хотите сделать?",
		es: "¿Qué quieres hacer?",
	},
	Help: {
		en: "Commands:\n/horoscope - today's horoscope\n/tarot [question] - tarot reading\n/numerology - numerology reading\n/natal - natal chart\n/subscribe - premium plans\n/profile - your profile\n/settings - language and delivery time\n/help - this message\nAny other message is answered by the astrologer (premium).",
		ru: "Команды:\n/horoscope - гороскоп на сегодня\n/tarot [вопрос] - расклад таро\n/numerology - нумерология\n/natal - натальная карта\n/subscribe - премиум\n/profile - ваш профиль\n/settings - язык и время рассылки\n/help - это сообщение\nНа любые другие сообщения отвечает астролог (премиум).",
		es: "Comandos:\n/horoscope - horóscopo de hoy\n/tarot [pregunta] - lectura de tarot\n/numerology - numerología\n/natal - carta natal\n/subscribe - planes premium\n/profile - tu perfil\n/settings - idioma y hora de envío\n/help - este mensaje\nCualquier otro mensaje lo responde el astrólogo (premium).",
	},
	StateReset: {
		en: "Your profile needed a reset. Please choose your language again.",
		ru: "Профиль пришлось сбросить. Пожалуйста, выберите язык ещё раз.",
		es: "Tu perfil necesitaba reiniciarse. Por favor, elige tu idioma de nuevo.",
	},
	ChooseSpread: {
		en: "Choose a spread:",
		ru: "Выберите расклад:",
		es: "Elige una tirada:",
	},
	HoroscopeTitle: {
		en: "🔮 Your horoscope for %s\n\n%s",
		ru: "🔮 Ваш гороскоп на %s\n\n%s",
		es: "🔮 Tu horóscopo para %s\n\n%s",
	},
	DailyHoroscopeTitle: {
		en: "🌅 Good morning! Your daily horoscope for %s\n\n%s",
		ru: "🌅 Доброе утро! Ваш гороскоп на %s\n\n%s",
		es: "🌅 ¡Buenos días! Tu horóscopo diario para %s\n\n%s",
	},
	TarotTitle: {
		en: "🃏 %s\n%s\n\n%s",
		ru: "🃏 %s\n%s\n\n%s",
		es: "🃏 %s\n%s\n\n%s",
	},
	NumerologyTitle: {
		en: "🔢 Numerology reading for %s\n📅 %s\n\n%s\n\n%s",
		ru: "🔢 Нумерологический разбор для %s\n📅 %s\n\n%s\n\n%s",
		es: "🔢 Lectura numerológica para %s\n📅 %s\n\n%s\n\n%s",
	},
	NatalTitle: {
		en: "🪐 Your natal chart\n📅 %s, %s, %s\n\n%s",
		ru: "🪐 Ваша натальная карта\n📅 %s, %s, %s\n\n%s",
		es: "🪐 Tu carta natal\n📅 %s, %s, %s\n\n%s",
	},
	BirthDataMissing: {
		en: "This reading needs your birth date, time and place, and your profile does not have them yet.",
		ru: "Для этого разбора нужны дата, время и место рождения, а в вашем профиле их пока нет.",
		es: "Esta lectura necesita tu fecha, hora y lugar de nacimiento, y tu perfil aún no los tiene.",
	},
	QuotaExceeded: {
		en: "You've used your free %s for now. It renews at %s UTC. Use /subscribe for unlimited access.",
		ru: "Бесплатный лимит (%s) исчерпан. Он обновится %s UTC. Оформите /subscribe для безлимитного доступа.",
		es: "Ya usaste tu %s gratis. Se renueva el %s UTC. Usa /subscribe para acceso ilimitado.",
	},
	PremiumOnly: {
		en: "%s is available with premium. Use /subscribe to unlock it.",
		ru: "%s доступен с премиумом. Оформите /subscribe.",
		es: "%s está disponible con premium. Usa /subscribe para desbloquearlo.",
	},
	AIUnavailable: {
		en: "The stars are quiet right now. Please try again a little later.",
		ru: "Звёзды сейчас молчат. Пожалуйста, попробуйте чуть позже.",
		es: "Las estrellas están en silencio ahora. Inténtalo un poco más tarde.",
	},
	RetryLater: {
		en: "Something went wrong on our side. Please try again later.",
		ru: "Что-то пошло не так. Пожалуйста, попробуйте позже.",
		es: "Algo salió mal. Por favor, inténtalo más tarde.",
	},
	ChoosePlan: {
		en: "⭐ Premium gives you unlimited horoscopes, tarot readings and chat with the astrologer.\nChoose a plan:",
		ru: "⭐ Премиум: безлимитные гороскопы, расклады таро и чат с астрологом.\nВыберите тариф:",
		es: "⭐ Premium te da horóscopos, tarot y chat con el astrólogo sin límites.\nElige un plan:",
	},
	PlanMonthly: {
		en: "Monthly: %s ⭐",
		ru: "Месяц: %s ⭐",
		es: "Mensual: %s ⭐",
	},
	PlanYearly: {
		en: "Yearly: %s ⭐",
		ru: "Год: %s ⭐",
		es: "Anual: %s ⭐",
	},
	InvoiceTitle: {
		en: "Astro Bot Premium",
		ru: "Astro Bot Премиум",
		es: "Astro Bot Premium",
	},
	InvoiceDescription: {
		en: "Premium access for %s days.",
		ru: "Премиум-доступ на %s дней.",
		es: "Acceso premium por %s días.",
	},
	PaymentSuccess: {
		en: "Thank you! Premium is active until %s.",
		ru: "Спасибо! Премиум активен до %s.",
		es: "¡Gracias! Premium activo hasta %s.",
	},
	PaymentInvalid: {
		en: "This payment could not be matched to a plan. Please contact support.",
		ru: "Платёж не удалось сопоставить с тарифом. Обратитесь в поддержку.",
		es: "No se pudo asociar este pago a un plan. Contacta con soporte.",
	},
	AlreadyLifetime: {
		en: "You already have lifetime premium. ✨",
		ru: "У вас уже бессрочный премиум. ✨",
		es: "Ya tienes premium de por vida. ✨",
	},
	ProfileSummary: {
		en: "👤 Your profile\nLanguage: %s\nBirth date: %s\nBirth time: %s\nBirth place: %s\nPlan: %s\nDaily horoscope: %s",
		ru: "👤 Ваш профиль\nЯзык: %s\nДата рождения: %s\nВремя рождения: %s\nМесто рождения: %s\nТариф: %s\nЕжедневный гороскоп: %s",
		es: "👤 Tu perfil\nIdioma: %s\nFecha de nacimiento: %s\nHora de nacimiento: %s\nLugar de nacimiento: %s\nPlan: %s\nHoróscopo diario: %s",
	},
	TierFree: {
		en: "Free",
		ru: "Бесплатный",
		es: "Gratis",
	},
	TierPremiumUntil: {
		en: "Premium until %s",
		ru: "Премиум до %s",
		es: "Premium hasta %s",
	},
	TierLifetime: {
		en: "Premium (lifetime)",
		ru: "Премиум (бессрочно)",
		es: "Premium (de por vida)",
	},
	NotSet: {
		en: "not set",
		ru: "не указано",
		es: "sin definir",
	},
	Off: {
		en: "off",
		ru: "выкл.",
		es: "desactivado",
	},
	SettingsMenu: {
		en: "⚙️ Settings",
		ru: "⚙️ Настройки",
		es: "⚙️ Ajustes",
	},
	ChooseDeliveryTime: {
		en: "When should your daily horoscope arrive? Times are UTC.",
		ru: "Когда присылать ежедневный гороскоп? Время указано в UTC.",
		es: "¿Cuándo debe llegar tu horóscopo diario? Las horas son UTC.",
	},
	DeliveryTimeSet: {
		en: "Your daily horoscope will arrive at %s UTC.",
		ru: "Ежедневный гороскоп будет приходить в %s UTC.",
		es: "Tu horóscopo diario llegará a las %s UTC.",
	},
	DeliveryDisabled: {
		en: "Daily horoscope turned off.",
		ru: "Ежедневный гороскоп отключён.",
		es: "Horóscopo diario desactivado.",
	},
	GrantUsage: {
		en: "Usage: /grant <user_id> <days>",
	},
	GrantDone: {
		en: "Premium for %s extended until %s.",
	},
	GrantNotFound: {
		en: "User %s has no profile yet.",
	},
	StatsSummary: {
		en: "📊 Profiles: %s\nReady: %s\nPremium: %s",
	},

	ButtonHoroscope: {
		en: "🔮 Horoscope",
		ru: "🔮 Гороскоп",
		es: "🔮 Horóscopo",
	},
	ButtonTarot: {
		en: "🃏 Tarot",
		ru: "🃏 Таро",
		es: "🃏 Tarot",
	},
	ButtonPremium: {
		en: "⭐ Premium",
		ru: "⭐ Премиум",
		es: "⭐ Premium",
	},
	ButtonProfile: {
		en: "👤 Profile",
		ru: "👤 Профиль",
		es: "👤 Perfil",
	},
	ButtonSettings: {
		en: "⚙️ Settings",
		ru: "⚙️ Настройки",
		es: "⚙️ Ajustes",
	},
	ButtonNumerology: {
		en: "🔢 Numerology",
		ru: "🔢 Нумерология",
		es: "🔢 Numerología",
	},
	ButtonNatal: {
		en: "🪐 Natal chart",
		ru: "🪐 Натальная карта",
		es: "🪐 Carta natal",
	},
	ButtonLanguage: {
		en: "🌐 Language",
		ru: "🌐 Язык",
		es: "🌐 Idioma",
	},
	ButtonTime: {
		en: "⏰ Delivery time",
		ru: "⏰ Время рассылки",
		es: "⏰ Hora de envío",
	},

	FeatureHoroscope: {
		en: "horoscope",
		ru: "гороскоп",
		es: "horóscopo",
	},
	FeatureTarot: {
		en: "tarot reading",
		ru: "расклад таро",
		es: "lectura de tarot",
	},
	FeatureChat: {
		en: "Chat with the astrologer",
		ru: "Чат с астрологом",
		es: "El chat con el astrólogo",
	},

	FeatureNumerology: {
		en: "Numerology",
		ru: "Нумерологический разбор",
		es: "La numerología",
	},
	FeatureNatal: {
		en: "The natal chart",
		ru: "Разбор натальной карты",
		es: "La carta natal",
	},

	NumberLifePath: {
		en: "Life path",
		ru: "Число жизненного пути",
		es: "Camino de vida",
	},
	NumberExpression: {
		en: "Expression",
		ru: "Число выражения",
		es: "Expresión",
	},
	NumberSoulUrge: {
		en: "Soul urge",
		ru: "Число души",
		es: "Impulso del alma",
	},
	NumberPersonality: {
		en: "Personality",
		ru: "Число личности",
		es: "Personalidad",
	},
	NumberBirthDay: {
		en: "Birth day",
		ru: "Число дня рождения",
		es: "Día de nacimiento",
	},
	NumberAttitude: {
		en: "Attitude",
		ru: "Число отношения",
		es: "Actitud",
	},

	SpreadSingle: {
		en: "Single card",
		ru: "Одна карта",
		es: "Una carta",
	},
	SpreadThreeCard: {
		en: "Past, present, future",
		ru: "Прошлое, настоящее, будущее",
		es: "Pasado, presente, futuro",
	},
	SpreadRelationship: {
		en: "Relationship",
		ru: "Отношения",
		es: "Relación",
	},
	SpreadCareer: {
		en: "Career",
		ru: "Карьера",
		es: "Carrera",
	},
	SpreadCelticCross: {
		en: "Celtic cross",
		ru: "Кельтский крест",
		es: "Cruz celta",
	},
}

// FeatureName is the localized display name of f.
func FeatureName(lang domain.Language, f domain.Feature) string {
	switch f {
	case domain.FeatureTarot:
		return T(lang, FeatureTarot)
	case domain.FeatureChat:
		return T(lang, FeatureChat)
	case domain.FeatureNumerology:
		return T(lang, FeatureNumerology)
	case domain.FeatureNatal:
		return T(lang, FeatureNatal)
	default:
		return T(lang, FeatureHoroscope)
	}
}

// NumberName is the localized label of a numerology number kind.
func NumberName(lang domain.Language, kind string) string {
	key := "number_" + kind
	if _, ok := messages[key]; !ok {
		return kind
	}
	return T(lang, key)
}

// SpreadName is the localized display name of a tarot spread.
func SpreadName(lang domain.Language, spreadID string) string {
	key := "spread_" + spreadID
	if _, ok := messages[key]; !ok {
		return spreadID
	}
	return T(lang, key)
}
