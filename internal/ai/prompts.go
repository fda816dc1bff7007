package ai

import (
	"fmt"
	"strings"
	"time"

	"astro_bot/internal/domain"
	"astro_bot/internal/natal"
	"astro_bot/internal/numerology"
	"astro_bot/internal/tarot"
)

const unknown = "Unknown"

var horoscopeSystem = map[domain.Language]string{
	domain.LanguageEnglish: "You are a professional astrologer creating personalized horoscopes. " +
		"Use the provided birth data to create accurate, insightful and positive horoscopes. " +
		"Focus on practical advice and emotional guidance. Keep the tone warm and encouraging. " +
		"Avoid overly dramatic predictions. Length should be 3-4 paragraphs.",
	domain.LanguageRussian: "Вы профессиональный астролог, создающий персонализированные гороскопы. " +
		"Используйте данные о рождении, чтобы составить точный, проницательный и позитивный гороскоп. " +
		"Сосредоточьтесь на практических советах и эмоциональной поддержке. Тон тёплый и ободряющий. " +
		"Избегайте драматичных предсказаний. Длина 3-4 абзаца.",
	domain.LanguageSpanish: "Eres un astrólogo profesional que crea horóscopos personalizados. " +
		"Usa los datos de nacimiento para crear horóscopos precisos, perspicaces y positivos. " +
		"Enfócate en consejos prácticos y orientación emocional. Mantén un tono cálido y alentador. " +
		"Evita predicciones dramáticas. La longitud debe ser de 3-4 párrafos.",
}

var tarotSystem = map[domain.Language]string{
	domain.LanguageEnglish: "You are an experienced tarot reader providing insightful interpretations. " +
		"Focus on the symbolic meanings of the cards and their positions in the spread. " +
		"Provide practical guidance and emotional insight. Be encouraging but honest. " +
		"Connect the cards to the user's question when one is given.",
	domain.LanguageRussian: "Вы опытный таролог, дающий глубокие толкования. " +
		"Опирайтесь на символическое значение карт и их позиции в раскладе. " +
		"Давайте практические советы. Будьте ободряющими, но честными. " +
		"Связывайте карты с вопросом пользователя, если он задан.",
	domain.LanguageSpanish: "Eres un lector de tarot experimentado que ofrece interpretaciones profundas. " +
		"Enfócate en el significado simbólico de las cartas y su posición en la tirada. " +
		"Ofrece orientación práctica. Sé alentador pero honesto. " +
		"Conecta las cartas con la pregunta del usuario cuando la haya.",
}

var chatSystem = map[domain.Language]string{
	domain.LanguageEnglish: "You are a wise and compassionate astrologer assistant. " +
		"Answer questions about astrology, spirituality and life guidance. " +
		"Use the user's birth data when relevant. Be supportive and insightful.",
	domain.LanguageRussian: "Вы мудрый и чуткий помощник-астролог. " +
		"Отвечайте на вопросы об астрологии, духовности и жизненном пути. " +
		"Используйте данные о рождении пользователя, когда это уместно. Будьте доброжелательны.",
	domain.LanguageSpanish: "Eres un asistente astrólogo sabio y compasivo. " +
		"Responde preguntas sobre astrología, espiritualidad y orientación de vida. " +
		"Usa los datos de nacimiento del usuario cuando sea relevante. Sé solidario y perspicaz.",
}

var numerologySystem = map[domain.Language]string{
	domain.LanguageEnglish: "You are a numerology expert providing insights based on calculated numbers. " +
		"Explain the significance of each number and how they influence the person's life. " +
		"Focus on personality traits, life purpose and guidance for personal growth.",
	domain.LanguageRussian: "Вы эксперт по нумерологии, толкующий вычисленные числа. " +
		"Объясните значение каждого числа и его влияние на жизнь человека. " +
		"Сосредоточьтесь на чертах личности, жизненной цели и советах для роста.",
	domain.LanguageSpanish: "Eres un experto en numerología que interpreta números calculados. " +
		"Explica el significado de cada número y cómo influye en la vida de la persona. " +
		"Enfócate en rasgos de personalidad, propósito de vida y orientación para crecer.",
}

var natalSystem = map[domain.Language]string{
	domain.LanguageEnglish: "You are a professional astrologer interpreting natal charts. " +
		"Work from the birth date, time and place and the facts given. " +
		"Cover personality, life path, strengths, challenges and guidance. Be comprehensive but accessible.",
	domain.LanguageRussian: "Вы профессиональный астролог, толкующий натальные карты. " +
		"Опирайтесь на дату, время и место рождения и приведённые факты. " +
		"Опишите личность, жизненный путь, сильные стороны, трудности и советы. Пишите понятно.",
	domain.LanguageSpanish: "Eres un astrólogo profesional que interpreta cartas natales. " +
		"Trabaja con la fecha, hora y lugar de nacimiento y los datos dados. " +
		"Cubre personalidad, camino de vida, fortalezas, desafíos y orientación. Sé completo pero accesible.",
}

func system(prompts map[domain.Language]string, lang domain.Language) string {
	if text, ok := prompts[lang]; ok {
		return text
	}
	return prompts[domain.LanguageEnglish]
}

func answerIn(lang domain.Language) string {
	return fmt.Sprintf("Answer in %s.", lang.NativeName())
}

func birthInfo(p domain.Profile) string {
	date, clock, place := unknown, unknown, unknown
	if p.BirthDate != nil {
		date = p.BirthDate.Format(domain.DateLayout)
	}
	if p.BirthTime != nil && *p.BirthTime != "" {
		clock = *p.BirthTime
	}
	if p.BirthPlace != nil && *p.BirthPlace != "" {
		place = *p.BirthPlace
	}
	return fmt.Sprintf("Birth Date: %s\nBirth Time: %s\nBirth Place: %s", date, clock, place)
}

// HoroscopeRequest asks for the daily horoscope of day.
func HoroscopeRequest(p domain.Profile, day time.Time) Request {
	lang := p.Lang()
	prompt := fmt.Sprintf(
		"Create a daily horoscope for %s for a person with this birth data:\n%s\n\n"+
			"Please provide a personalized daily horoscope that takes their astrological profile into account. %s",
		day.UTC().Format(domain.DateLayout), birthInfo(p), answerIn(lang),
	)

	return Request{
		System:      system(horoscopeSystem, lang),
		Prompt:      prompt,
		MaxTokens:   800,
		Temperature: 0.8,
		Language:    lang,
	}
}

// TarotRequest asks for an interpretation of reading, optionally focused on
// question.
func TarotRequest(lang domain.Language, reading tarot.Reading, question string) Request {
	var cards strings.Builder
	for i, card := range reading.Cards {
		fmt.Fprintf(&cards, "%d. %s - Position: %s\n", i+1, card.DisplayName(), card.Position)
	}

	prompt := fmt.Sprintf("Interpret this %s tarot reading:\n\nCards drawn:\n%s", reading.Spread.Name, cards.String())
	if q := strings.TrimSpace(question); q != "" {
		prompt += "\nUser's question: " + q + "\n"
	}
	prompt += "\nPlease interpret these cards and their meanings in relation to each other. " + answerIn(lang)

	return Request{
		System:      system(tarotSystem, lang),
		Prompt:      prompt,
		MaxTokens:   1200,
		Temperature: 0.9,
		Language:    lang,
	}
}

// ChatRequest answers a free-form question with the profile's birth data as
// context.
func ChatRequest(p domain.Profile, message string) Request {
	lang := p.Lang()
	prompt := "User's question: " + strings.TrimSpace(message) + "\n"
	if p.BirthDate != nil {
		prompt += "\nUser's birth info:\n" + birthInfo(p) + "\n"
	}
	prompt += "\nPlease provide a helpful and insightful response as an astrologer. " + answerIn(lang)

	return Request{
		System:      system(chatSystem, lang),
		Prompt:      prompt,
		MaxTokens:   600,
		Temperature: 0.8,
		Language:    lang,
	}
}

// NumerologyRequest asks for an interpretation of reading.
func NumerologyRequest(lang domain.Language, reading numerology.Reading) Request {
	var numbers strings.Builder
	for _, kind := range numerology.Kinds() {
		if kind.NameBased() && !reading.HasName() {
			continue
		}
		fmt.Fprintf(&numbers, "%s: %d\n", kind, reading.Numbers[kind])
	}

	name := reading.Name
	if !reading.HasName() {
		name = unknown
	}
	prompt := fmt.Sprintf(
		"Provide a numerology reading for:\n\nName: %s\nBirth Date: %s\n\nCalculated numbers:\n%s\n"+
			"Please interpret these numbers and their significance in this person's life. %s",
		name, reading.BirthDate.Format(domain.DateLayout), numbers.String(), answerIn(lang),
	)

	return Request{
		System:      system(numerologySystem, lang),
		Prompt:      prompt,
		MaxTokens:   1000,
		Temperature: 0.8,
		Language:    lang,
	}
}

// NatalRequest asks for a natal chart interpretation of the profile's birth
// data. Only the Sun sign is computed here.
func NatalRequest(p domain.Profile) Request {
	lang := p.Lang()
	prompt := "Interpret the natal chart of a person with this birth data:\n" + birthInfo(p) + "\n"
	if p.BirthDate != nil {
		sun := natal.SunSign(*p.BirthDate)
		prompt += fmt.Sprintf("Sun sign: %s (%s, %s)\n", sun.Name, sun.Element, sun.Modality)
	}
	prompt += "\nPlease provide a comprehensive interpretation covering personality, life path, " +
		"strengths, challenges and guidance. " + answerIn(lang)

	return Request{
		System:      system(natalSystem, lang),
		Prompt:      prompt,
		MaxTokens:   1500,
		Temperature: 0.7,
		Language:    lang,
	}
}
