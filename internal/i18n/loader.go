// loader.go — загрузка каталогов переводов из embed.FS.
package i18n

import "fmt"

// loadEmbedded загружает все каталоги переводов из встроенной файловой
// системы. Ожидаемые файлы: locales/en.json, locales/de.json, locales/ru.json.
func loadEmbedded(bundle *Bundle) error {
	langs := []string{"en", "de", "ru"}

	for _, lang := range langs {
		path := fmt.Sprintf("locales/%s.json", lang)
		data, err := LocaleFS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("i18n: не удалось прочитать %s: %w", path, err)
		}

		if err := bundle.LoadMessages(lang, data); err != nil {
			return err
		}
	}

	return nil
}
