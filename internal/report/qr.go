// Package report формирует материалы для передачи учётных данных
// новым пользователям: QR-коды для мобильного приложения Nextcloud
// и PDF-листы с данными для входа.
package report

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/t-markmann/nc-userimporter/internal/domain/model"
)

// qrSize — размер QR-изображения в пикселях.
const qrSize = 300

// Generator формирует QR-коды и PDF-документы для пакета
// импортированных пользователей. Промежуточные PNG-файлы живут
// во временном каталоге и удаляются методом Close.
type Generator struct {
	serverURL string
	outputDir string
	tempDir   string
	logger    *slog.Logger
}

// NewGenerator создаёт Generator. outputDir создаётся при
// необходимости, временный каталог получает уникальное имя
// и существует до вызова Close.
func NewGenerator(serverURL, outputDir string, logger *slog.Logger) (*Generator, error) {
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("создание каталога %s: %w", outputDir, err)
	}

	tempDir := filepath.Join(os.TempDir(), "nc-userimporter-"+uuid.NewString())
	if err := os.MkdirAll(tempDir, 0o700); err != nil {
		return nil, fmt.Errorf("создание временного каталога: %w", err)
	}

	return &Generator{
		serverURL: serverURL,
		outputDir: outputDir,
		tempDir:   tempDir,
		logger:    logger.With(slog.String("component", "report")),
	}, nil
}

// Close удаляет временный каталог с PNG-файлами QR-кодов.
// Пароли пользователей закодированы в этих файлах, поэтому
// Close обязателен на всех путях завершения.
func (g *Generator) Close() error {
	return os.RemoveAll(g.tempDir)
}

// LoginURI собирает nc://-ссылку мгновенного входа для мобильного
// приложения Nextcloud.
func (g *Generator) LoginURI(user model.ImportedUser) string {
	return fmt.Sprintf("nc://login/user:%s&password:%s&server:%s",
		user.Username, user.Password, g.serverURL)
}

// qrFile пишет QR-код входа пользователя в PNG во временном каталоге
// и возвращает путь к файлу.
func (g *Generator) qrFile(user model.ImportedUser) (string, error) {
	path := filepath.Join(g.tempDir, user.Username+".png")
	if err := qrcode.WriteFile(g.LoginURI(user), qrcode.Medium, qrSize, path); err != nil {
		return "", fmt.Errorf("QR-код для %s: %w", user.Username, err)
	}
	return path, nil
}
