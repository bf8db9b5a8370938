// Пакет i18n — переводы консольных сообщений и текстов PDF-документов.
// Предоставляет функции T(key) и Tf(key, args...) для получения строк
// на языке, выбранном параметром конфигурации scriptlang.
// Поддерживаемые языки: English (en), Deutsch (de), Русский (ru).
// При отсутствии перевода выполняется fallback на английский.
package i18n

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/text/language"
)

// Поддерживаемые языки
var (
	// SupportedLanguages — список поддерживаемых тегов языков.
	SupportedLanguages = []language.Tag{
		language.English,
		language.German,
		language.Russian,
	}

	// matcher — языковой matcher для нормализации произвольных значений.
	matcher = language.NewMatcher(SupportedLanguages)
)

// Bundle — хранилище переводов для всех языков.
// Загружается один раз при старте приложения.
type Bundle struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string // lang → key → translation
	lang     string
	logger   *slog.Logger
}

// NewBundle создаёт пустой Bundle с языком по умолчанию en.
func NewBundle(logger *slog.Logger) *Bundle {
	return &Bundle{
		catalogs: make(map[string]map[string]string),
		lang:     "en",
		logger:   logger,
	}
}

// LoadMessages загружает JSON-каталог переводов для указанного языка.
// JSON формат: {"key": "translation", ...} (плоский).
func (b *Bundle) LoadMessages(lang string, data []byte) error {
	var messages map[string]string
	if err := json.Unmarshal(data, &messages); err != nil {
		return fmt.Errorf("i18n: ошибка разбора каталога %s: %w", lang, err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalogs[lang] = messages

	if b.logger != nil {
		b.logger.Debug("i18n каталог загружен",
			slog.String("lang", lang),
			slog.Int("keys", len(messages)),
		)
	}
	return nil
}

// SetLanguage выбирает текущий язык. Неизвестные значения
// нормализуются matcher'ом к ближайшему поддерживаемому.
func (b *Bundle) SetLanguage(lang string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lang = MatchLanguage(lang)
}

// Language возвращает текущий язык.
func (b *Bundle) Language() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lang
}

// Translate возвращает перевод по ключу для текущего языка.
// Если ключ не найден — возвращает ключ как есть (для отладки).
func (b *Bundle) Translate(key string) string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	// Ищем в текущем языке
	if catalog, ok := b.catalogs[b.lang]; ok {
		if msg, ok := catalog[key]; ok {
			return msg
		}
	}

	// Fallback на английский
	if b.lang != "en" {
		if catalog, ok := b.catalogs["en"]; ok {
			if msg, ok := catalog[key]; ok {
				return msg
			}
		}
	}

	return key
}

// Translatef возвращает перевод по ключу с подстановкой аргументов.
func (b *Bundle) Translatef(key string, args ...any) string {
	template := b.Translate(key)
	if len(args) == 0 {
		return template
	}
	return formatFunc(template, args...)
}

// --- Глобальный Bundle (singleton) ---

var (
	globalBundle *Bundle
	globalOnce   sync.Once
)

// Init инициализирует глобальный Bundle, загружает встроенные каталоги
// и выбирает язык. Вызывается один раз при старте.
func Init(lang string, logger *slog.Logger) (*Bundle, error) {
	var loadErr error
	globalOnce.Do(func() {
		globalBundle = NewBundle(logger)
		loadErr = loadEmbedded(globalBundle)
	})
	if loadErr != nil {
		return nil, loadErr
	}
	globalBundle.SetLanguage(lang)
	return globalBundle, nil
}

// T возвращает перевод по ключу из глобального Bundle.
func T(key string) string {
	if globalBundle == nil {
		return key
	}
	return globalBundle.Translate(key)
}

// Tf возвращает перевод по ключу с аргументами (fmt.Sprintf).
// Формат-строка загружается из JSON-каталога во время выполнения,
// поэтому go vet printf-проверка не применяется — используется
// обёртка formatFunc.
func Tf(key string, args ...any) string {
	if globalBundle == nil {
		if len(args) == 0 {
			return key
		}
		return formatFunc(key, args...)
	}
	return globalBundle.Translatef(key, args...)
}

// formatFunc — ссылка на fmt.Sprintf через переменную для обхода
// go vet printf-анализатора: формат-строки приходят из JSON-каталогов
// во время выполнения, статическая проверка невозможна.
//
//nolint:govet // обход go vet printf-анализатора
var formatFunc = fmt.Sprintf

// MatchLanguage нормализует произвольное значение языка
// к одному из поддерживаемых: en, de, ru.
func MatchLanguage(lang string) string {
	tag, _ := language.MatchStrings(matcher, lang)
	base, _ := tag.Base()

	switch {
	case strings.HasPrefix(base.String(), "de"):
		return "de"
	case strings.HasPrefix(base.String(), "ru"):
		return "ru"
	default:
		return "en"
	}
}
