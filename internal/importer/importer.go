// Package importer реализует пакетный импорт пользователей из CSV:
// нормализация строк, генерация паролей, создание учётных записей
// и назначение групп. Одна сбойная строка никогда не прерывает пакет.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/t-markmann/nc-userimporter/internal/csvsource"
	"github.com/t-markmann/nc-userimporter/internal/domain/model"
	"github.com/t-markmann/nc-userimporter/internal/i18n"
	"github.com/t-markmann/nc-userimporter/internal/mapping"
	"github.com/t-markmann/nc-userimporter/internal/nextcloud"
	"github.com/t-markmann/nc-userimporter/internal/password"
)

// Importer выполняет импорт подготовленных записей на сервер.
type Importer struct {
	client    *nextcloud.Client
	generator *password.Generator // nil — генерация выключена
	out       io.Writer
	logger    *slog.Logger
}

// New создаёт Importer. generator может быть nil, тогда строки
// без пароля импортируются как есть.
func New(client *nextcloud.Client, generator *password.Generator, out io.Writer, logger *slog.Logger) *Importer {
	return &Importer{
		client:    client,
		generator: generator,
		out:       out,
		logger:    logger.With(slog.String("component", "importer")),
	}
}

// Result — итог импорта одного пакета.
type Result struct {
	Created int
	Skipped int
	Failed  int
	// Users — успешно созданные учётные записи с их паролями,
	// источник данных для отчётов и QR-кодов.
	Users []model.ImportedUser
}

// Prepare нормализует CSV-строки в записи для импорта: транслитерация
// имени и displayname, квота по умолчанию, генерация пароля для строк
// с пустым полем password. Строки с пустым username пропускаются.
func (imp *Importer) Prepare(rows []csvsource.Row, groupDelimiter, defaultQuota string) ([]model.DesiredUser, error) {
	users := make([]model.DesiredUser, 0, len(rows))

	for _, row := range rows {
		if row.Username == "" {
			imp.logger.Error("Пропуск строки CSV: пустое поле username",
				slog.Int("line", row.Line),
			)
			continue
		}

		u := model.DesiredUser{
			Username:       row.Username,
			UsernameMapped: mapping.Apply(row.Username),
			DisplayName:    mapping.Apply(strings.TrimSpace(row.DisplayName)),
			Email:          row.Email,
			Password:       row.Password,
			Groups:         model.SplitGroupField(row.Groups, groupDelimiter),
			SubadminGroups: model.SplitGroupField(row.Subadmin, groupDelimiter),
			Quota:          row.Quota,
		}
		if u.DisplayName == "" {
			u.DisplayName = u.UsernameMapped
		}
		if u.Quota == "" {
			u.Quota = defaultQuota
		}

		if u.Password == "" && imp.generator != nil {
			generated, err := imp.generator.Generate()
			if err != nil {
				return nil, fmt.Errorf("генерация пароля для %s: %w", u.UsernameMapped, err)
			}
			u.Password = generated
		}
		if u.Password == "" {
			imp.logger.Warn("Строка без пароля: сервер отправит приглашение на email",
				slog.String("username", u.UsernameMapped),
			)
		}

		users = append(users, u)
	}

	return users, nil
}

// Run импортирует записи по одной. Существующие пользователи
// пропускаются, сбойные строки учитываются в Failed. Ошибка
// возвращается только при отмене контекста.
func (imp *Importer) Run(ctx context.Context, users []model.DesiredUser, language string) (*Result, error) {
	result := &Result{}

	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		exists, err := imp.client.UserExists(ctx, u.UsernameMapped)
		if err != nil {
			imp.logger.Error("Не удалось проверить существование пользователя",
				slog.String("username", u.UsernameMapped),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}
		if exists {
			imp.logger.Info("Пользователь уже существует, пропуск",
				slog.String("username", u.UsernameMapped),
			)
			result.Skipped++
			continue
		}

		if err := imp.createOne(ctx, u, language); err != nil {
			imp.logger.Error("Не удалось создать пользователя",
				slog.String("username", u.UsernameMapped),
				slog.String("error", err.Error()),
			)
			result.Failed++
			continue
		}

		result.Users = append(result.Users, model.ImportedUser{
			Username:    u.UsernameMapped,
			Password:    u.Password,
			DisplayName: u.DisplayName,
		})
		result.Created++

		imp.logger.Info("Пользователь создан",
			slog.String("username", u.UsernameMapped),
		)
	}

	fmt.Fprintln(imp.out, i18n.T("import.completed"))
	fmt.Fprintln(imp.out, i18n.Tf("import.summary", result.Created, result.Skipped, result.Failed))
	return result, nil
}

// createOne создаёт учётную запись и назначает ей группы.
// Ошибки назначения групп не откатывают создание: учётная запись
// остаётся, проблемные группы можно досоздать повторным запуском sync.
func (imp *Importer) createOne(ctx context.Context, u model.DesiredUser, language string) error {
	req := nextcloud.CreateUserRequest{
		UserID:      u.UsernameMapped,
		Password:    u.Password,
		DisplayName: u.DisplayName,
		Email:       u.Email,
		Quota:       u.Quota,
		Language:    language,
	}
	if err := imp.client.CreateUser(ctx, req); err != nil {
		return err
	}

	if len(u.Groups) > 0 {
		if err := imp.client.SyncUserGroups(ctx, u.UsernameMapped, nil, u.Groups); err != nil {
			imp.logger.Error("Не удалось назначить группы",
				slog.String("username", u.UsernameMapped),
				slog.String("error", err.Error()),
			)
		}
	}
	if len(u.SubadminGroups) > 0 {
		if err := imp.client.SyncSubadminGroups(ctx, u.UsernameMapped, nil, u.SubadminGroups); err != nil {
			imp.logger.Error("Не удалось назначить subadmin-группы",
				slog.String("username", u.UsernameMapped),
				slog.String("error", err.Error()),
			)
		}
	}

	// Без пароля, но с email: повторная отправка приглашения,
	// пользователь сам задаст пароль по ссылке
	if u.Password == "" && u.Email != "" {
		if err := imp.client.ResendWelcomeMail(ctx, u.UsernameMapped); err != nil {
			imp.logger.Warn("Не удалось отправить приглашение",
				slog.String("username", u.UsernameMapped),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}
