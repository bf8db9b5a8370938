// user.go — модели пользователей: желаемое состояние из CSV,
// фактическое состояние из Nextcloud и вычисленная дельта (ChangeSet).
package model

import "strings"

// DesiredUser — пользователь из CSV после нормализации.
// Пересоздаётся при каждом запуске, нигде не кэшируется.
type DesiredUser struct {
	// Username — имя из CSV как есть.
	Username string
	// UsernameMapped — ASCII-транслитерированное имя.
	// Единственный ключ сопоставления с Nextcloud.
	UsernameMapped string
	// DisplayName — отображаемое имя; при пустом значении в CSV
	// заполняется значением UsernameMapped.
	DisplayName string
	// Email — адрес электронной почты.
	Email string
	// Password — пароль из CSV; пустой, если пароль будет сгенерирован.
	Password string
	// Groups — группы пользователя.
	Groups Set[string]
	// SubadminGroups — группы, в которых пользователь является subadmin.
	SubadminGroups Set[string]
	// Quota — квота хранилища (например, "1GB").
	Quota string
}

// RemoteUser — пользователь Nextcloud. Листинг возвращает только ID;
// остальные поля заполняются отдельными запросами (detail, groups,
// subadmins). Для диффа пригоден только полностью заполненный пользователь.
type RemoteUser struct {
	// ID — уникальный идентификатор в Nextcloud (совпадает по форме
	// с UsernameMapped).
	ID string
	// DisplayName — отображаемое имя.
	DisplayName string
	// Email — адрес электронной почты.
	Email string
	// Groups — текущие группы.
	Groups Set[string]
	// SubadminGroups — группы, где пользователь subadmin.
	SubadminGroups Set[string]
	// Populated — true после успешного заполнения detail + groups + subadmins.
	Populated bool
}

// ChangeSet — пополевая дельта одного пользователя: желаемое значение
// для каждого расходящегося поля. Пустой ChangeSet означает отсутствие дрейфа.
type ChangeSet struct {
	// Email — новый email (nil, если совпадает).
	Email *string
	// DisplayName — новое отображаемое имя (nil, если совпадает).
	DisplayName *string
	// Groups — желаемое множество групп (nil, если совпадает).
	Groups Set[string]
	// Subadmin — желаемое множество subadmin-групп (nil, если совпадает).
	Subadmin Set[string]
}

// Empty сообщает, что расхождений нет.
func (c *ChangeSet) Empty() bool {
	return c.Email == nil && c.DisplayName == nil && c.Groups == nil && c.Subadmin == nil
}

// Detect вычисляет ChangeSet между желаемым и фактическим состоянием.
// Правила сравнения: email — без учёта регистра, displayname — точное,
// groups и subadmin — сравнение множеств. Все строки обрезаются.
func Detect(desired *DesiredUser, remote *RemoteUser) *ChangeSet {
	cs := &ChangeSet{}

	desiredEmail := strings.ToLower(strings.TrimSpace(desired.Email))
	remoteEmail := strings.ToLower(strings.TrimSpace(remote.Email))
	if desiredEmail != remoteEmail {
		cs.Email = &desiredEmail
	}

	desiredName := strings.TrimSpace(desired.DisplayName)
	remoteName := strings.TrimSpace(remote.DisplayName)
	if desiredName != remoteName {
		cs.DisplayName = &desiredName
	}

	if !desired.Groups.Equal(remote.Groups) {
		cs.Groups = desired.Groups
	}

	if !desired.SubadminGroups.Equal(remote.SubadminGroups) {
		cs.Subadmin = desired.SubadminGroups
	}

	return cs
}

// SplitGroupField разбирает поле групп из CSV по разделителю,
// обрезая пробелы и отбрасывая пустые токены.
func SplitGroupField(field, delimiter string) Set[string] {
	s := NewSet[string]()
	for _, token := range strings.Split(field, delimiter) {
		token = strings.TrimSpace(token)
		if token != "" {
			s.Add(token)
		}
	}
	return s
}

// ImportedUser — результат успешного создания пользователя.
// Пароль хранится только до генерации артефактов.
type ImportedUser struct {
	Username    string
	Password    string
	DisplayName string
}

// SyncResult — итоги одного запуска синхронизации.
type SyncResult struct {
	// TotalDesired — количество пользователей в CSV.
	TotalDesired int
	// TotalRemote — количество пользователей в Nextcloud.
	TotalRemote int
	// Excluded — пользователи, исключённые из диффа из-за ошибок загрузки.
	Excluded int
	// Deleted — удалённые пользователи.
	Deleted int
	// Updated — пользователи с применёнными изменениями.
	Updated int
	// Declined — отклонённые оператором изменения и удаления.
	Declined int
	// Protected — кандидаты на удаление, пропущенные из-за защищённой группы.
	Protected int
	// Failed — пользователи, у которых применение хотя бы одного поля завершилось ошибкой.
	Failed int
}
