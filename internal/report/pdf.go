// PDF-листы с учётными данными: один общий документ и/или
// отдельный файл на пользователя.
package report

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/t-markmann/nc-userimporter/internal/domain/model"
	"github.com/t-markmann/nc-userimporter/internal/i18n"
)

// timestampLayout — формат отметки времени в именах файлов.
const timestampLayout = "20060102-150405"

// CombinedPDF пишет один документ со страницей на каждого
// пользователя и возвращает путь к файлу.
func (g *Generator) CombinedPDF(users []model.ImportedUser) (string, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	for _, user := range users {
		if err := g.userPage(pdf, tr, user); err != nil {
			return "", err
		}
	}

	path := filepath.Join(g.outputDir,
		fmt.Sprintf("nextcloud-users-%s.pdf", time.Now().Format(timestampLayout)))
	if err := pdf.OutputFileAndClose(path); err != nil {
		return "", fmt.Errorf("запись PDF %s: %w", path, err)
	}

	g.logger.Info("Общий PDF-документ создан",
		slog.String("path", path),
		slog.Int("users", len(users)),
	)
	return path, nil
}

// SinglePDFs пишет отдельный документ на каждого пользователя
// и возвращает пути ко всем файлам.
func (g *Generator) SinglePDFs(users []model.ImportedUser) ([]string, error) {
	timestamp := time.Now().Format(timestampLayout)
	paths := make([]string, 0, len(users))

	for _, user := range users {
		pdf := fpdf.New("P", "mm", "A4", "")
		tr := pdf.UnicodeTranslatorFromDescriptor("")

		if err := g.userPage(pdf, tr, user); err != nil {
			return paths, err
		}

		path := filepath.Join(g.outputDir,
			fmt.Sprintf("nextcloud-user-%s-%s.pdf", user.Username, timestamp))
		if err := pdf.OutputFileAndClose(path); err != nil {
			return paths, fmt.Errorf("запись PDF %s: %w", path, err)
		}
		paths = append(paths, path)
	}

	g.logger.Info("Отдельные PDF-документы созданы",
		slog.Int("files", len(paths)),
	)
	return paths, nil
}

// userPage добавляет страницу с учётными данными и QR-кодом входа.
// tr транслирует UTF-8 в кодировку встроенного шрифта (умляуты
// в displayname и паролях).
func (g *Generator) userPage(pdf *fpdf.Fpdf, tr func(string) string, user model.ImportedUser) error {
	pdf.AddPage()

	pdf.SetFont("Helvetica", "", 14)
	pdf.CellFormat(0, 10, tr(i18n.Tf("pdf.greeting", user.DisplayName)), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, tr(i18n.T("pdf.account_created")), "", "L", false)
	pdf.MultiCell(0, 6, tr(i18n.T("pdf.login_instructions")), "", "L", false)
	pdf.Ln(6)

	g.credentialRow(pdf, tr, i18n.T("pdf.server_url"), g.serverURL)
	g.credentialRow(pdf, tr, i18n.T("pdf.username"), user.Username)
	g.credentialRow(pdf, tr, i18n.T("pdf.password"), user.Password)
	pdf.Ln(8)

	pdf.MultiCell(0, 6, tr(i18n.T("pdf.qr_alternative")), "", "L", false)
	pdf.Ln(2)

	qrPath, err := g.qrFile(user)
	if err != nil {
		return err
	}
	pdf.ImageOptions(qrPath, pdf.GetX(), pdf.GetY(), 60, 60, false,
		fpdf.ImageOptions{ImageType: "PNG"}, 0, "")

	return nil
}

// credentialRow пишет строку "метка: значение" моноширинным значением.
func (g *Generator) credentialRow(pdf *fpdf.Fpdf, tr func(string) string, label, value string) {
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(45, 7, tr(label)+":", "", 0, "L", false, 0, "")
	pdf.SetFont("Courier", "", 11)
	pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
}
