// Пакет nextcloud — HTTP-клиент к OCS Provisioning API Nextcloud.
// models.go — модели данных и разбор XML-конверта OCS.
package nextcloud

import "fmt"

// Успешные статусы OCS.
const (
	// StatusOK — успешное выполнение операции.
	StatusOK = 100
	// StatusInformational — мягкое информационное состояние,
	// не считается ошибкой и не прерывает выполнение.
	StatusInformational = 102
)

// OCSError — ошибка уровня API Nextcloud: сервер ответил корректным
// конвертом с неуспешным статусом. Код и сообщение сохраняются.
type OCSError struct {
	Status     string
	StatusCode int
	Message    string
}

// Error реализует интерфейс error.
func (e *OCSError) Error() string {
	return fmt.Sprintf("nextcloud API: статус %q, код %d: %s", e.Status, e.StatusCode, e.Message)
}

// UserDetail — детальная информация о пользователе из GET users/{id}.
type UserDetail struct {
	ID          string
	DisplayName string
	Email       string
}

// CreateUserRequest — параметры создания пользователя.
type CreateUserRequest struct {
	UserID      string
	Password    string
	DisplayName string
	Email       string
	Quota       string
	Language    string
}

// --- Внутренние структуры разбора XML ---

// ocsMeta — блок <meta> конверта OCS.
type ocsMeta struct {
	Status     string `xml:"status"`
	StatusCode int    `xml:"statuscode"`
	Message    string `xml:"message"`
}

// ocsListEnvelope — конверт ответов-списков. Nextcloud кладёт элементы
// либо прямо в <data>, либо во вложенные <users>/<groups>.
type ocsListEnvelope struct {
	Meta     ocsMeta  `xml:"meta"`
	Elements []string `xml:"data>element"`
	Users    []string `xml:"data>users>element"`
	Groups   []string `xml:"data>groups>element"`
}

// elements возвращает первый непустой список конверта.
func (e *ocsListEnvelope) elements() []string {
	switch {
	case len(e.Users) > 0:
		return e.Users
	case len(e.Groups) > 0:
		return e.Groups
	default:
		return e.Elements
	}
}

// ocsUserEnvelope — конверт ответа GET users/{id}.
type ocsUserEnvelope struct {
	Meta        ocsMeta `xml:"meta"`
	ID          string  `xml:"data>id"`
	DisplayName string  `xml:"data>displayname"`
	Email       string  `xml:"data>email"`
}

// ocsStatusEnvelope — конверт ответов без полезной нагрузки.
type ocsStatusEnvelope struct {
	Meta ocsMeta `xml:"meta"`
}
