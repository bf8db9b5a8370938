// Точка входа nc-userimporter — пакетное создание и синхронизация
// учётных записей Nextcloud из CSV-файла через OCS Provisioning API.
// Загружает config.xml, настраивает логирование и переводы, создаёт
// API-клиент и запускает выбранный режим: import, sync или
// интерактивное меню.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/t-markmann/nc-userimporter/internal/config"
	"github.com/t-markmann/nc-userimporter/internal/csvsource"
	"github.com/t-markmann/nc-userimporter/internal/domain/model"
	"github.com/t-markmann/nc-userimporter/internal/i18n"
	"github.com/t-markmann/nc-userimporter/internal/importer"
	"github.com/t-markmann/nc-userimporter/internal/nextcloud"
	"github.com/t-markmann/nc-userimporter/internal/password"
	"github.com/t-markmann/nc-userimporter/internal/report"
	"github.com/t-markmann/nc-userimporter/internal/sync"
	"github.com/t-markmann/nc-userimporter/internal/ui/console"
)

// outputDir — каталог для PDF-документов с учётными данными.
const outputDir = "output"

var configPath string

var rootCmd = &cobra.Command{
	Use:     "nc-userimporter",
	Short:   "Пакетный импорт и синхронизация пользователей Nextcloud из CSV",
	Version: config.Version,
	RunE:    runMenu,
}

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Создать новых пользователей из CSV-файла",
	RunE:  runImport,
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Синхронизировать существующих пользователей с CSV-файлом",
	RunE:  runSync,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать версию",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("nc-userimporter %s\n", config.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.xml",
		"путь к файлу конфигурации")
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// --- Инициализация приложения ---

// app — собранные зависимости одного запуска.
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	client   *nextcloud.Client
	prompter *console.Prompter
	closeLog func() error
}

// setup загружает конфигурацию и собирает все зависимости.
// Ошибка конфигурации фатальна: до сервера дело не доходит.
func setup() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, closeLog, err := config.SetupLogger(cfg)
	if err != nil {
		return nil, err
	}

	if _, err := i18n.Init(cfg.ScriptLang, logger); err != nil {
		closeLog()
		return nil, err
	}

	// Идентификатор запуска связывает записи одного прогона в logs/output.log
	logger = logger.With(slog.String("run_id", uuid.NewString()))

	client := nextcloud.New(cfg.CloudURL, cfg.AdminName, cfg.AdminPass, cfg.SSLVerify, logger)

	logger.Info("nc-userimporter запускается",
		slog.String("version", config.Version),
		slog.String("server", cfg.CloudURL),
		slog.String("csv", cfg.CSVFile),
	)

	return &app{
		cfg:      cfg,
		logger:   logger,
		client:   client,
		prompter: console.NewPrompter(os.Stdin, os.Stdout),
		closeLog: closeLog,
	}, nil
}

// signalContext возвращает контекст, отменяемый по SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// readRows читает и разбирает CSV-файл из конфигурации.
func (a *app) readRows() ([]csvsource.Row, error) {
	delimiter := []rune(a.cfg.CSVDelimiter)[0]
	return csvsource.ReadFile(a.cfg.CSVFile, delimiter)
}

// --- Режим import ---

func runImport(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.closeLog()

	ctx, stop := signalContext()
	defer stop()

	return a.importUsers(ctx)
}

// importUsers выполняет полный цикл импорта: чтение CSV, предпросмотр,
// подтверждение, создание учётных записей и генерация PDF-отчётов.
func (a *app) importUsers(ctx context.Context) error {
	rows, err := a.readRows()
	if err != nil {
		return err
	}

	var generator *password.Generator
	if a.cfg.GeneratePassword {
		generator, err = password.New(a.cfg.PasswordLength)
		if err != nil {
			return err
		}
	}

	imp := importer.New(a.client, generator, os.Stdout, a.logger)
	users, err := imp.Prepare(rows, a.cfg.GroupDelimiter, a.cfg.DefaultQuota)
	if err != nil {
		return err
	}

	fmt.Println(i18n.T("import.welcome"))
	fmt.Println(i18n.T("import.preview_notice"))
	fmt.Println()
	a.previewTable(users)

	if !a.prompter.Confirm(i18n.T("import.confirm_start")) {
		fmt.Println(i18n.T("import.aborted"))
		return nil
	}

	result, err := imp.Run(ctx, users, a.cfg.UserLanguage)
	if err != nil {
		return err
	}

	if len(result.Users) == 0 {
		return nil
	}
	return a.writeReports(result.Users)
}

// previewTable выводит таблицу записей перед импортом.
// Пароли маскируются, отсутствующие помечаются отдельно.
func (a *app) previewTable(users []model.DesiredUser) {
	header := []string{
		i18n.T("table.username"), i18n.T("table.displayname"),
		i18n.T("table.password"), i18n.T("table.email"),
		i18n.T("table.groups"), i18n.T("table.subadmin"),
		i18n.T("table.quota"),
	}

	rows := make([][]string, 0, len(users))
	for _, u := range users {
		rows = append(rows, []string{
			u.UsernameMapped,
			u.DisplayName,
			console.MaskPassword(u.Password, i18n.T("import.password_not_set")),
			u.Email,
			strings.Join(model.SortedStrings(u.Groups), ", "),
			strings.Join(model.SortedStrings(u.SubadminGroups), ", "),
			u.Quota,
		})
	}

	console.RenderTable(os.Stdout, header, rows)
}

// writeReports генерирует PDF-документы с учётными данными
// созданных пользователей. Временные QR-файлы удаляются на всех
// путях выхода.
func (a *app) writeReports(users []model.ImportedUser) error {
	if !a.cfg.PDFOneFile && !a.cfg.PDFSingleFiles {
		return nil
	}

	generator, err := report.NewGenerator(a.cfg.CloudURL, outputDir, a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := generator.Close(); closeErr != nil {
			a.logger.Warn("Не удалось удалить временный каталог QR-кодов",
				slog.String("error", closeErr.Error()),
			)
		}
	}()

	if a.cfg.PDFOneFile {
		path, err := generator.CombinedPDF(users)
		if err != nil {
			return err
		}
		fmt.Println(path)
	}
	if a.cfg.PDFSingleFiles {
		paths, err := generator.SinglePDFs(users)
		if err != nil {
			return err
		}
		for _, path := range paths {
			fmt.Println(path)
		}
	}
	return nil
}

// --- Режим sync ---

func runSync(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.closeLog()

	ctx, stop := signalContext()
	defer stop()

	return a.syncUsers(ctx)
}

// syncUsers выполняет сверку сервера с CSV: предпросмотр, общее
// подтверждение запуска, затем пошаговая сверка с индивидуальными
// подтверждениями внутри движка.
func (a *app) syncUsers(ctx context.Context) error {
	rows, err := a.readRows()
	if err != nil {
		return err
	}

	engine := sync.NewEngine(a.client, a.prompter, os.Stdout, a.cfg.ProtectedGroups, a.logger)
	desired := engine.BuildDesired(rows, a.cfg.GroupDelimiter, a.cfg.DefaultQuota)

	fmt.Println(i18n.T("sync.welcome"))
	fmt.Println(i18n.T("sync.preview_notice"))
	fmt.Println()
	a.previewTable(desired)

	if !a.prompter.Confirm(i18n.T("sync.confirm_start")) {
		fmt.Println(i18n.T("sync.aborted"))
		return nil
	}

	fmt.Println(i18n.T("sync.started"))
	result, err := engine.Run(ctx, desired)
	if err != nil {
		return err
	}

	fmt.Println(i18n.T("sync.completed"))
	fmt.Println(i18n.Tf("sync.summary",
		result.Updated, result.Deleted, result.Declined, result.Protected, result.Failed))
	return nil
}

// --- Интерактивное меню ---

// runMenu — режим без подкоманды: цикл выбора действия.
func runMenu(cmd *cobra.Command, args []string) error {
	a, err := setup()
	if err != nil {
		return err
	}
	defer a.closeLog()

	ctx, stop := signalContext()
	defer stop()

	for {
		fmt.Println()
		fmt.Println(i18n.T("menu.select_option"))
		fmt.Println("  1. " + i18n.T("menu.option_import"))
		fmt.Println("  2. " + i18n.T("menu.option_sync"))
		fmt.Println("  3. " + i18n.T("menu.option_exit"))

		choice, err := a.prompter.ReadLine(i18n.T("menu.enter_choice"))
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			if err := a.importUsers(ctx); err != nil {
				a.logger.Error("Импорт завершился с ошибкой", slog.String("error", err.Error()))
			}
		case "2":
			if err := a.syncUsers(ctx); err != nil {
				a.logger.Error("Синхронизация завершилась с ошибкой", slog.String("error", err.Error()))
			}
		case "3":
			fmt.Println(i18n.T("menu.exit_program"))
			return nil
		default:
			fmt.Println(i18n.T("menu.invalid_choice"))
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}
