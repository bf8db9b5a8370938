// Пакет csvsource — чтение CSV-файла с желаемым состоянием пользователей.
// Одна строка заголовка, обязательные колонки: username, displayname,
// password, email, groups, subadmin, quota. Неверное количество колонок
// в строке — фатальная ошибка для всего файла с указанием строки.
package csvsource

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// requiredColumns — колонки, которые обязаны присутствовать в заголовке.
var requiredColumns = []string{
	"username", "displayname", "password", "email", "groups", "subadmin", "quota",
}

// Row — одна строка CSV. Поля groups и subadmin хранятся как есть;
// разбор по внутреннему разделителю выполняется потребителем.
type Row struct {
	Username    string
	DisplayName string
	Password    string
	Email       string
	Groups      string
	Subadmin    string
	Quota       string
	// Line — номер строки в файле (заголовок — строка 1).
	Line int
}

// ReadFile читает CSV-файл по указанному пути.
func ReadFile(path string, delimiter rune) ([]Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("чтение CSV-файла %s: %w", path, err)
	}
	rows, err := Read(bytes.NewReader(data), delimiter)
	if err != nil {
		return nil, fmt.Errorf("CSV-файл %s: %w", path, err)
	}
	return rows, nil
}

// Read читает CSV из r. UTF-8 BOM в начале файла допускается.
func Read(r io.Reader, delimiter rune) ([]Row, error) {
	reader := csv.NewReader(stripBOM(r))
	reader.Comma = delimiter
	// Количество колонок фиксируется по заголовку; csv.Reader сам
	// сообщает номер строки при расхождении.
	reader.FieldsPerRecord = 0

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("файл пуст, отсутствует строка заголовка")
		}
		return nil, fmt.Errorf("чтение заголовка: %w", err)
	}

	index, err := columnIndex(header)
	if err != nil {
		return nil, err
	}

	var rows []Row
	line := 1
	for {
		record, err := reader.Read()
		line++
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("строка %d: %w", line, err)
		}

		rows = append(rows, Row{
			Username:    strings.TrimSpace(record[index["username"]]),
			DisplayName: strings.TrimSpace(record[index["displayname"]]),
			Password:    record[index["password"]],
			Email:       strings.TrimSpace(record[index["email"]]),
			Groups:      record[index["groups"]],
			Subadmin:    record[index["subadmin"]],
			Quota:       strings.TrimSpace(record[index["quota"]]),
			Line:        line,
		})
	}

	return rows, nil
}

// columnIndex строит отображение имени колонки в её позицию
// и проверяет наличие всех обязательных колонок.
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("в заголовке отсутствуют колонки: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

// stripBOM убирает UTF-8 BOM из начала потока.
func stripBOM(r io.Reader) io.Reader {
	buf := make([]byte, 3)
	n, _ := io.ReadFull(r, buf)
	if n == 3 && bytes.Equal(buf, []byte{0xEF, 0xBB, 0xBF}) {
		return r
	}
	return io.MultiReader(bytes.NewReader(buf[:n]), r)
}
