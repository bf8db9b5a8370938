// Пакет config — загрузка и валидация конфигурации nc-userimporter
// из файла config.xml с необязательными переопределениями из
// переменных окружения (NC_ADMINNAME, NC_ADMINPASS).
package config

import (
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации nc-userimporter.
type Config struct {
	// --- Nextcloud ---

	// URL сервера Nextcloud (https:// добавляется автоматически)
	CloudURL string
	// Имя администратора
	AdminName string
	// Пароль администратора
	AdminPass string
	// Проверка TLS-сертификата сервера
	SSLVerify bool

	// --- CSV ---

	// Путь к CSV-файлу с пользователями
	CSVFile string
	// Разделитель колонок CSV
	CSVDelimiter string
	// Разделитель значений внутри полей groups/subadmin
	GroupDelimiter string

	// --- Политика создания пользователей ---

	// Генерировать пароль при пустом поле password
	GeneratePassword bool
	// Длина генерируемого пароля
	PasswordLength int
	// Квота по умолчанию при пустом поле quota
	DefaultQuota string
	// Язык интерфейса создаваемых пользователей (поле language API)
	UserLanguage string
	// Группы, участники которых никогда не предлагаются к удалению
	ProtectedGroups []string

	// --- Вывод ---

	// Генерировать один общий PDF на весь импорт
	PDFOneFile bool
	// Генерировать отдельный PDF на каждого пользователя
	PDFSingleFiles bool

	// --- Служебные ---

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Язык сообщений самой программы (en, de, ru)
	ScriptLang string
}

// xmlConfig — плоская структура файла config.xml.
// Все значения читаются как строки и конвертируются при валидации.
type xmlConfig struct {
	XMLName          xml.Name `xml:"config"`
	CloudURL         string   `xml:"cloudurl"`
	AdminName        string   `xml:"adminname"`
	AdminPass        string   `xml:"adminpass"`
	CSVFile          string   `xml:"csvfile"`
	CSVDelimiter     string   `xml:"csvdelimiter"`
	GroupDelimiter   string   `xml:"csvdelimitergroups"`
	GeneratePassword string   `xml:"generatepassword"`
	PasswordLength   string   `xml:"passwordlength"`
	DefaultQuota     string   `xml:"defaultquota"`
	SSLVerify        string   `xml:"sslverify"`
	UserLanguage     string   `xml:"language"`
	ProtectedGroups  string   `xml:"protectedgroups"`
	PDFOneFile       string   `xml:"pdf_one_file"`
	PDFSingleFiles   string   `xml:"pdf_single_files"`
	LogLevel         string   `xml:"loglevel"`
	ScriptLang       string   `xml:"scriptlang"`
}

// Load читает config.xml по указанному пути, валидирует обязательные
// поля и возвращает Config или ошибку. Ошибка конфигурации фатальна:
// вызывающий код завершает программу до первого обращения к серверу.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение файла конфигурации %s: %w", path, err)
	}

	var raw xmlConfig
	if err := xml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("разбор файла конфигурации %s: %w", path, err)
	}

	cfg := &Config{}

	// --- Nextcloud ---

	// cloudurl — обязательный
	cfg.CloudURL, err = required("cloudurl", raw.CloudURL)
	if err != nil {
		return nil, err
	}
	cfg.CloudURL = strings.TrimRight(cfg.CloudURL, "/")
	if !strings.HasPrefix(cfg.CloudURL, "https://") {
		cfg.CloudURL = "https://" + cfg.CloudURL
	}

	// adminname — обязательный, переопределяется NC_ADMINNAME
	cfg.AdminName, err = required("adminname", envOverride("NC_ADMINNAME", raw.AdminName))
	if err != nil {
		return nil, err
	}

	// adminpass — обязательный, переопределяется NC_ADMINPASS
	cfg.AdminPass, err = required("adminpass", envOverride("NC_ADMINPASS", raw.AdminPass))
	if err != nil {
		return nil, err
	}

	// sslverify — по умолчанию true
	cfg.SSLVerify, err = parseBool("sslverify", withDefault(raw.SSLVerify, "true"))
	if err != nil {
		return nil, err
	}

	// --- CSV ---

	// csvfile — обязательный
	cfg.CSVFile, err = required("csvfile", raw.CSVFile)
	if err != nil {
		return nil, err
	}

	// csvdelimiter — по умолчанию ";"
	cfg.CSVDelimiter = withDefault(raw.CSVDelimiter, ";")
	if len([]rune(cfg.CSVDelimiter)) != 1 {
		return nil, fmt.Errorf("csvdelimiter: ожидался один символ, получено %q", cfg.CSVDelimiter)
	}

	// csvdelimitergroups — по умолчанию ","
	cfg.GroupDelimiter = withDefault(raw.GroupDelimiter, ",")

	// --- Политика создания пользователей ---

	// generatepassword — по умолчанию yes
	cfg.GeneratePassword, err = parseBool("generatepassword", withDefault(raw.GeneratePassword, "yes"))
	if err != nil {
		return nil, err
	}

	// passwordlength — по умолчанию 12
	cfg.PasswordLength, err = parseInt("passwordlength", withDefault(raw.PasswordLength, "12"))
	if err != nil {
		return nil, err
	}
	if cfg.PasswordLength < 4 {
		return nil, fmt.Errorf("passwordlength: значение %d меньше минимального (4)", cfg.PasswordLength)
	}

	cfg.DefaultQuota = withDefault(raw.DefaultQuota, "1GB")
	cfg.UserLanguage = withDefault(raw.UserLanguage, "en")
	cfg.ProtectedGroups = splitList(withDefault(raw.ProtectedGroups, "admin"))

	// --- Вывод ---

	cfg.PDFOneFile, err = parseBool("pdf_one_file", withDefault(raw.PDFOneFile, "yes"))
	if err != nil {
		return nil, err
	}
	cfg.PDFSingleFiles, err = parseBool("pdf_single_files", withDefault(raw.PDFSingleFiles, "yes"))
	if err != nil {
		return nil, err
	}

	// --- Служебные ---

	cfg.LogLevel, err = parseLogLevel(withDefault(raw.LogLevel, "info"))
	if err != nil {
		return nil, fmt.Errorf("loglevel: %w", err)
	}

	cfg.ScriptLang = strings.ToLower(withDefault(raw.ScriptLang, "en"))

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер: текстовый handler,
// вывод одновременно в консоль и в постоянный файл logs/output.log.
// Возвращает логгер и функцию закрытия файла.
func SetupLogger(cfg *Config) (*slog.Logger, func() error, error) {
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return nil, nil, fmt.Errorf("создание каталога логов: %w", err)
	}

	logPath := filepath.Join("logs", "output.log")
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("открытие файла лога %s: %w", logPath, err)
	}

	handler := slog.NewTextHandler(io.MultiWriter(os.Stderr, logFile), &slog.HandlerOptions{
		Level: cfg.LogLevel,
	})

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger, logFile.Close, nil
}

// --- Вспомогательные функции ---

// required возвращает значение или ошибку, если оно пустое.
func required(key, val string) (string, error) {
	val = strings.TrimSpace(val)
	if val == "" {
		return "", fmt.Errorf("%s: обязательный параметр конфигурации не задан", key)
	}
	return val, nil
}

// withDefault возвращает значение или значение по умолчанию, если оно пустое.
func withDefault(val, defaultVal string) string {
	val = strings.TrimSpace(val)
	if val == "" {
		return defaultVal
	}
	return val
}

// envOverride возвращает значение переменной окружения, если она задана.
func envOverride(key, val string) string {
	if env := os.Getenv(key); env != "" {
		return env
	}
	return val
}

// parseBool разбирает булево значение конфигурации.
// Принимаются yes/no и формы, понятные strconv.ParseBool.
func parseBool(key, val string) (bool, error) {
	switch strings.ToLower(val) {
	case "yes":
		return true, nil
	case "no":
		return false, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s: недопустимое булево значение %q (используйте yes/no)", key, val)
	}
	return b, nil
}

// parseInt разбирает целочисленное значение конфигурации.
func parseInt(key, val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s: некорректное целое число %q", key, val)
	}
	return n, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}

// splitList разбирает строку, разделённую запятыми, на срез строк.
// Пробелы вокруг элементов убираются, пустые элементы игнорируются.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
