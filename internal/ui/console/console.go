// Пакет console — интерактивный консольный ввод-вывод: запросы
// подтверждения и табличный вывод. Подтверждение выделено в интерфейс
// Confirmer, чтобы движок синхронизации можно было детерминированно
// тестировать скриптованным источником ответов.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Confirmer — способность запросить у оператора подтверждение.
// Любой ответ, кроме явного согласия, трактуется как отказ.
type Confirmer interface {
	Confirm(prompt string) bool
}

// Prompter — консольный ввод. Реализует Confirmer поверх произвольных
// потоков ввода-вывода (в боевом режиме — stdin/stdout).
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter создаёт Prompter над указанными потоками.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Confirm выводит prompt и читает одну строку ответа.
// Только явное "y" (без учёта регистра) означает согласие;
// любой другой ввод и ошибка чтения — отказ.
func (p *Prompter) Confirm(prompt string) bool {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

// ReadLine выводит prompt и возвращает введённую строку без пробелов
// по краям. Ошибка возвращается только при закрытом вводе: строка
// без завершающего перевода строки читается как обычная.
func (p *Prompter) ReadLine(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && line == "" {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// RenderTable выводит таблицу с заголовком и строками.
func RenderTable(out io.Writer, header []string, rows [][]string) {
	table := tablewriter.NewWriter(out)
	table.SetHeader(header)
	table.AppendBulk(rows)
	table.Render()
}

// MaskPassword скрывает пароль звёздочками той же длины.
// Для пустого пароля возвращается подстановка notSet.
func MaskPassword(password, notSet string) string {
	if password == "" {
		return notSet
	}
	return strings.Repeat("*", len(password))
}
