// Пакет password — генерация случайных паролей для новых пользователей.
// Гарантии: минимум одна заглавная и одна строчная буква, одна цифра
// и один знак пунктуации; остальные позиции — равномерно из полного
// алфавита; итоговый порядок символов перемешан равномерно.
// Источник случайности — crypto/rand.
package password

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	upper       = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	lower       = "abcdefghijklmnopqrstuvwxyz"
	digits      = "0123456789"
	punctuation = "!\"#$%&'()*+,-./:;<=>?@[\\]^_`{|}~"
)

// allCharacters — полный алфавит для свободных позиций.
const allCharacters = upper + lower + digits + punctuation

// Generator генерирует пароли фиксированной длины.
type Generator struct {
	length int
}

// New создаёт генератор паролей длины length.
// Длина меньше 4 недопустима: четыре обязательных класса символов
// иначе не разместить.
func New(length int) (*Generator, error) {
	if length < 4 {
		return nil, fmt.Errorf("password: длина %d меньше минимальной (4)", length)
	}
	return &Generator{length: length}, nil
}

// Generate возвращает новый случайный пароль.
func (g *Generator) Generate() (string, error) {
	chars := make([]byte, 0, g.length)

	// По одному символу из каждого обязательного класса
	for _, class := range []string{upper, lower, digits, punctuation} {
		c, err := randomFrom(class)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Остальные позиции — из полного алфавита
	for i := 4; i < g.length; i++ {
		c, err := randomFrom(allCharacters)
		if err != nil {
			return "", err
		}
		chars = append(chars, c)
	}

	// Перемешивание Фишера-Йетса
	for i := len(chars) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return "", err
		}
		chars[i], chars[j] = chars[j], chars[i]
	}

	return string(chars), nil
}

// randomFrom возвращает случайный символ строки alphabet.
func randomFrom(alphabet string) (byte, error) {
	i, err := randomInt(len(alphabet))
	if err != nil {
		return 0, err
	}
	return alphabet[i], nil
}

// randomInt возвращает равномерное случайное число в [0, max).
func randomInt(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, fmt.Errorf("password: источник случайности: %w", err)
	}
	return int(n.Int64()), nil
}
