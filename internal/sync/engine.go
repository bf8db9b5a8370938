// Пакет sync — движок сверки желаемого состояния из CSV с фактическим
// состоянием сервера Nextcloud.
//
// Один запуск:
//  1. Загрузить оба множества: CSV-пользователей и пользователей сервера
//     (листинг даёт только ID; детали, группы и subadmin-роли
//     дозапрашиваются по каждому пользователю отдельно).
//  2. Обнаружение удалений: remote − desired по транслитерированному
//     имени. Участники защищённых групп пропускаются безусловно,
//     остальные удаляются только после явного подтверждения оператора.
//  3. Обнаружение изменений: пополевое сравнение (email без учёта
//     регистра, displayname точное, groups/subadmin как множества),
//     таблица сравнения и подтверждение перед применением.
//  4. Применение: по одному полю, best-effort — ошибка поля логируется,
//     остальные поля всё равно применяются.
//
// Удаления разрешаются до вычисления изменений, поэтому пользователь
// не может одновременно оказаться и удаляемым, и изменяемым. Повторный
// запуск над неизменным состоянием не производит ни одной мутации.
package sync

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
	"github.com/t-markmann/nc-userimporter/internal/ui/console"
)

// Engine — движок синхронизации пользователей.
type Engine struct {
	client    *nextcloud.Client
	confirm   console.Confirmer
	out       io.Writer
	protected model.Set[string]
	logger    *slog.Logger
}

// NewEngine создаёт движок синхронизации.
// confirm — источник подтверждений оператора (в тестах — скриптованный).
// protectedGroups — группы, участники которых никогда не удаляются.
func NewEngine(
	client *nextcloud.Client,
	confirm console.Confirmer,
	out io.Writer,
	protectedGroups []string,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		client:    client,
		confirm:   confirm,
		out:       out,
		protected: model.MakeSet(protectedGroups),
		logger:    logger.With(slog.String("component", "user_sync")),
	}
}

// BuildDesired превращает CSV-строки в желаемое состояние: применяет
// транслитерацию к имени и displayname, подставляет displayname при
// пустом значении и разбирает поля групп. Строки с пустым именем
// пропускаются с ошибкой в логе: для них невозможно построить ключ
// сопоставления.
func (e *Engine) BuildDesired(rows []csvsource.Row, groupDelimiter, defaultQuota string) []model.DesiredUser {
	desired := make([]model.DesiredUser, 0, len(rows))

	for _, row := range rows {
		if row.Username == "" {
			e.logger.Error("Пропуск строки CSV: пустое поле username",
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
			e.logger.Info("Пустой displayname, используется имя пользователя",
				slog.String("username", u.UsernameMapped),
			)
			u.DisplayName = u.UsernameMapped
		}
		if u.Quota == "" {
			u.Quota = defaultQuota
		}

		desired = append(desired, u)
	}

	return desired
}

// Run выполняет один проход синхронизации.
// Ошибка возвращается только при невозможности получить листинг
// пользователей; все прочие сбои обрабатываются по месту и не
// прерывают запуск.
func (e *Engine) Run(ctx context.Context, desired []model.DesiredUser) (*model.SyncResult, error) {
	result := &model.SyncResult{TotalDesired: len(desired)}

	ids, err := e.client.ListUserIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("получение пользователей Nextcloud: %w", err)
	}
	result.TotalRemote = len(ids)

	// Загрузка полного состояния каждого пользователя. Пользователь
	// пригоден для диффа только после успешных detail + groups +
	// subadmins: дифф по частичным данным дал бы ложные мутации.
	remote := make([]*model.RemoteUser, 0, len(ids))
	for _, id := range ids {
		user, err := e.populate(ctx, id)
		if err != nil {
			e.logger.Error("Пользователь исключён из сверки: не удалось загрузить состояние",
				slog.String("user", id),
				slog.String("error", err.Error()),
			)
			result.Excluded++
			continue
		}
		remote = append(remote, user)
	}

	desiredByID := make(map[string]*model.DesiredUser, len(desired))
	for i := range desired {
		desiredByID[desired[i].UsernameMapped] = &desired[i]
	}

	// Сначала удаления, затем изменения
	e.checkDeleted(ctx, desiredByID, remote, result)
	e.checkModified(ctx, desiredByID, remote, result)

	return result, nil
}

// populate загружает детали, группы и subadmin-роли пользователя.
func (e *Engine) populate(ctx context.Context, id string) (*model.RemoteUser, error) {
	detail, err := e.client.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	groups, err := e.client.UserGroups(ctx, id)
	if err != nil {
		return nil, err
	}

	subadmins, err := e.client.UserSubadminGroups(ctx, id)
	if err != nil {
		return nil, err
	}

	return &model.RemoteUser{
		ID:             id,
		DisplayName:    detail.DisplayName,
		Email:          detail.Email,
		Groups:         model.MakeSet(groups),
		SubadminGroups: model.MakeSet(subadmins),
		Populated:      true,
	}, nil
}

// --- Обнаружение удалений ---

// checkDeleted находит пользователей сервера, отсутствующих в CSV,
// и предлагает их удалить. Участники защищённых групп пропускаются
// безусловно, независимо от ответов оператора.
func (e *Engine) checkDeleted(ctx context.Context, desired map[string]*model.DesiredUser, remote []*model.RemoteUser, result *model.SyncResult) {
	for _, user := range remote {
		if _, ok := desired[user.ID]; ok {
			continue
		}

		if group, isProtected := e.protectedGroup(user); isProtected {
			e.logger.Info("Пропуск кандидата на удаление: защищённая группа",
				slog.String("user", user.ID),
				slog.String("group", group),
			)
			result.Protected++
			continue
		}

		if ctx.Err() != nil {
			e.logger.Warn("Запуск прерван, удаления остановлены")
			return
		}

		e.promptDeletion(ctx, user, result)
	}
}

// protectedGroup возвращает первую защищённую группу пользователя.
func (e *Engine) protectedGroup(user *model.RemoteUser) (string, bool) {
	for _, group := range model.SortedStrings(user.Groups) {
		if e.protected.Has(group) {
			return group, true
		}
	}
	return "", false
}

// promptDeletion показывает полную запись пользователя и удаляет его
// только после явного согласия. Любой другой ответ — отказ без мутации.
func (e *Engine) promptDeletion(ctx context.Context, user *model.RemoteUser, result *model.SyncResult) {
	fmt.Fprintln(e.out)
	fmt.Fprintln(e.out, i18n.T("sync.delete_candidate"))
	console.RenderTable(e.out,
		[]string{
			i18n.T("table.id"), i18n.T("table.displayname"), i18n.T("table.email"),
			i18n.T("table.groups"), i18n.T("table.subadmin"),
		},
		[][]string{{
			user.ID, user.DisplayName, user.Email,
			strings.Join(model.SortedStrings(user.Groups), ", "),
			strings.Join(model.SortedStrings(user.SubadminGroups), ", "),
		}},
	)

	if !e.confirm.Confirm(i18n.T("sync.prompt_deletion")) {
		e.logger.Info("Удаление отклонено оператором",
			slog.String("user", user.ID),
		)
		result.Declined++
		return
	}

	if err := e.client.DeleteUser(ctx, user.ID); err != nil {
		e.logger.Error("Ошибка удаления пользователя",
			slog.String("user", user.ID),
			slog.String("error", err.Error()),
		)
		result.Failed++
		return
	}

	e.logger.Info(i18n.T("sync.user_deleted"), slog.String("user", user.ID))
	result.Deleted++
}

// --- Обнаружение и применение изменений ---

// checkModified сравнивает каждого пользователя сервера с его
// CSV-записью и применяет подтверждённые изменения.
func (e *Engine) checkModified(ctx context.Context, desired map[string]*model.DesiredUser, remote []*model.RemoteUser, result *model.SyncResult) {
	for _, user := range remote {
		want, ok := desired[user.ID]
		if !ok {
			continue
		}

		changes := model.Detect(want, user)
		if changes.Empty() {
			continue
		}

		e.displayChanges(want, user)
		if !e.confirm.Confirm(i18n.T("sync.prompt_changes")) {
			e.logger.Info("Изменения отклонены оператором",
				slog.String("user", user.ID),
			)
			result.Declined++
			continue
		}

		if ctx.Err() != nil {
			e.logger.Warn("Запуск прерван, изменения остановлены")
			return
		}

		if e.applyChanges(ctx, user, changes) {
			result.Updated++
		} else {
			result.Failed++
		}
	}
}

// displayChanges выводит таблицу сравнения CSV-записи и записи сервера.
func (e *Engine) displayChanges(want *model.DesiredUser, user *model.RemoteUser) {
	fmt.Fprintln(e.out)
	fmt.Fprintln(e.out, i18n.T("sync.changes_detected"))
	console.RenderTable(e.out,
		[]string{i18n.T("table.field"), i18n.T("table.csv_user"), i18n.T("table.nc_user")},
		[][]string{
			{i18n.T("table.username"), want.UsernameMapped, user.ID},
			{i18n.T("table.displayname"), want.DisplayName, user.DisplayName},
			{i18n.T("table.email"), want.Email, user.Email},
			{i18n.T("table.groups"),
				strings.Join(model.SortedStrings(want.Groups), ", "),
				strings.Join(model.SortedStrings(user.Groups), ", ")},
			{i18n.T("table.subadmin"),
				strings.Join(model.SortedStrings(want.SubadminGroups), ", "),
				strings.Join(model.SortedStrings(user.SubadminGroups), ", ")},
		},
	)
}

// applyChanges применяет ChangeSet по одному полю. Ошибка одного поля
// логируется, остальные поля применяются дальше. Возвращает true,
// если все поля применились без ошибок.
func (e *Engine) applyChanges(ctx context.Context, user *model.RemoteUser, changes *model.ChangeSet) bool {
	allOK := true

	apply := func(field string, fn func() error) {
		if ctx.Err() != nil {
			e.logger.Warn("Запуск прерван, поле не применено",
				slog.String("user", user.ID),
				slog.String("field", field),
			)
			allOK = false
			return
		}
		if err := fn(); err != nil {
			e.logger.Error("Ошибка применения поля",
				slog.String("user", user.ID),
				slog.String("field", field),
				slog.String("error", err.Error()),
			)
			allOK = false
			return
		}
		e.logger.Info("Поле обновлено",
			slog.String("user", user.ID),
			slog.String("field", field),
		)
	}

	if changes.Email != nil {
		apply("email", func() error {
			return e.client.EditUser(ctx, user.ID, "email", *changes.Email)
		})
	}
	if changes.DisplayName != nil {
		apply("displayname", func() error {
			return e.client.EditUser(ctx, user.ID, "displayname", *changes.DisplayName)
		})
	}
	if changes.Groups != nil {
		apply("groups", func() error {
			return e.client.SyncUserGroups(ctx, user.ID, user.Groups, changes.Groups)
		})
	}
	if changes.Subadmin != nil {
		apply("subadmin", func() error {
			return e.client.SyncSubadminGroups(ctx, user.ID, user.SubadminGroups, changes.Subadmin)
		})
	}

	return allOK
}
