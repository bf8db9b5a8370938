// Пакет mapping — транслитерация имён пользователей в ASCII.
// Фиксированная таблица замен: немецкие умляуты, скандинавские и
// французские буквы, исландские Þ/þ, чешские/словацкие Š/Č.
// Неизвестные символы проходят без изменений.
package mapping

import "strings"

// table — таблица замен символ → ASCII-эквивалент.
var table = map[rune]string{
	// Немецкие умляуты
	'Ä': "Ae", 'ä': "ae",
	'Ö': "Oe", 'ö': "oe",
	'Ü': "Ue", 'ü': "ue",
	'ß': "ss",

	// Скандинавские буквы
	'Å': "A", 'å': "a",
	'Ø': "Oe", 'ø': "oe",
	'Æ': "Ae", 'æ': "ae",

	// Французские буквы с диакритикой
	'À': "A", 'à': "a",
	'Á': "A", 'á': "a",
	'Â': "A", 'â': "a",
	'Ã': "A", 'ã': "a",
	'Ç': "C", 'ç': "c",
	'È': "E", 'è': "e",
	'É': "E", 'é': "e",
	'Ê': "E", 'ê': "e",
	'Ë': "E", 'ë': "e",
	'Ì': "I", 'ì': "i",
	'Í': "I", 'í': "i",
	'Î': "I", 'î': "i",
	'Ï': "I", 'ï': "i",
	'Ð': "D", 'ð': "d",
	'Ñ': "N", 'ñ': "n",
	'Ò': "O", 'ò': "o",
	'Ó': "O", 'ó': "o",
	'Ô': "O", 'ô': "o",
	'Õ': "O", 'õ': "o",
	'Œ': "Oe", 'œ': "oe",
	'Ù': "U", 'ù': "u",
	'Ú': "U", 'ú': "u",
	'Û': "U", 'û': "u",
	'Ý': "Y", 'ý': "y",
	'Ÿ': "Y", 'ÿ': "y",

	// Исландские буквы
	'Þ': "Th", 'þ': "Th",

	// Чешские/словацкие буквы
	'Š': "S", 'š': "s",
	'Č': "C", 'č': "c",
}

// Apply транслитерирует строку по таблице замен.
// Функция тотальна, детерминирована и идемпотентна на собственном
// результате: замены дают только ASCII, которых нет среди ключей таблицы.
func Apply(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if repl, ok := table[r]; ok {
			b.WriteString(repl)
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}
