// client.go — HTTP-клиент к OCS Provisioning API Nextcloud.
// Basic-аутентификация администратора на каждом запросе, заголовок
// OCS-APIRequest, form-encoded тела мутаций, разбор XML-конверта
// (status/statuscode/message). Код 100 — успех, 102 — информационный.
// Операции: пользователи, группы, subadmin-роли, circles, welcome-mail.
package nextcloud

import (
	"context"
	"crypto/tls"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client — клиент OCS Provisioning API.
type Client struct {
	baseURL   string // Базовый URL Nextcloud (https://, без trailing slash)
	adminName string // Имя администратора
	adminPass string // Пароль администратора

	httpClient *http.Client
	logger     *slog.Logger
}

// New создаёт клиент Nextcloud.
// baseURL — адрес сервера; https:// добавляется при отсутствии схемы.
// sslVerify=false отключает проверку TLS-сертификата (по умолчанию
// проверка ведётся по системному пулу доверенных корней).
func New(baseURL, adminName, adminPass string, sslVerify bool, logger *slog.Logger) *Client {
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		baseURL = "https://" + baseURL
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}
	if !sslVerify {
		httpClient.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // осознанное отключение через sslverify=no
		}
		logger.Info("Проверка TLS-сертификата отключена конфигурацией")
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		adminName:  adminName,
		adminPass:  adminPass,
		httpClient: httpClient,
		logger:     logger.With(slog.String("component", "nextcloud_client")),
	}
}

// BaseURL возвращает нормализованный адрес сервера.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// --- HTTP helpers ---

// do выполняет запрос к OCS API и возвращает тело ответа.
// form кодируется в тело для POST/PUT и игнорируется для остальных методов.
func (c *Client) do(ctx context.Context, method, endpoint string, form url.Values) ([]byte, error) {
	reqURL := c.baseURL + "/" + endpoint

	var body io.Reader
	if form != nil && (method == http.MethodPost || method == http.MethodPut) {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("создание запроса: %w", err)
	}

	req.SetBasicAuth(c.adminName, c.adminPass)
	req.Header.Set("OCS-APIRequest", "true")
	req.Header.Set("Accept-Language", "en")
	if body != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	c.logger.Debug("Запрос к Nextcloud",
		slog.String("method", method),
		slog.String("endpoint", endpoint),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("запрос %s %s: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение ответа %s %s: %w", method, endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("Nextcloud вернул HTTP %d для %s %s: %s",
			resp.StatusCode, method, endpoint, strings.TrimSpace(string(data)))
	}

	return data, nil
}

// checkMeta преобразует блок meta в ошибку.
// Код 102 — информационный, ошибкой не считается.
func (c *Client) checkMeta(meta ocsMeta) error {
	if meta.StatusCode == StatusOK {
		return nil
	}
	if meta.StatusCode == StatusInformational {
		c.logger.Debug("Nextcloud вернул информационный статус 102",
			slog.String("message", meta.Message),
		)
		return nil
	}
	return &OCSError{Status: meta.Status, StatusCode: meta.StatusCode, Message: meta.Message}
}

// doStatus выполняет запрос, у которого важен только статус конверта.
func (c *Client) doStatus(ctx context.Context, method, endpoint string, form url.Values) error {
	data, err := c.do(ctx, method, endpoint, form)
	if err != nil {
		return err
	}

	var env ocsStatusEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("разбор ответа %s %s: %w", method, endpoint, err)
	}
	return c.checkMeta(env.Meta)
}

// doList выполняет запрос и возвращает список элементов конверта.
func (c *Client) doList(ctx context.Context, endpoint string) ([]string, error) {
	data, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	var env ocsListEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("разбор ответа GET %s: %w", endpoint, err)
	}
	if err := c.checkMeta(env.Meta); err != nil {
		return nil, err
	}
	return env.elements(), nil
}

// --- Операции с пользователями ---

// ListUserIDs возвращает идентификаторы всех пользователей сервера.
// Листинг содержит только ID; детали запрашиваются отдельно.
func (c *Client) ListUserIDs(ctx context.Context) ([]string, error) {
	ids, err := c.doList(ctx, "ocs/v1.php/cloud/users")
	if err != nil {
		return nil, fmt.Errorf("ListUserIDs: %w", err)
	}
	return ids, nil
}

// GetUser возвращает детали пользователя (displayname, email).
func (c *Client) GetUser(ctx context.Context, id string) (*UserDetail, error) {
	data, err := c.do(ctx, http.MethodGet, "ocs/v1.php/cloud/users/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("GetUser %s: %w", id, err)
	}

	var env ocsUserEnvelope
	if err := xml.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("GetUser %s: разбор ответа: %w", id, err)
	}
	if err := c.checkMeta(env.Meta); err != nil {
		return nil, fmt.Errorf("GetUser %s: %w", id, err)
	}

	return &UserDetail{
		ID:          id,
		DisplayName: strings.TrimSpace(env.DisplayName),
		Email:       strings.TrimSpace(env.Email),
	}, nil
}

// UserExists проверяет существование пользователя.
// Доменная ошибка API трактуется как «не существует»;
// транспортная ошибка возвращается вызывающему.
func (c *Client) UserExists(ctx context.Context, id string) (bool, error) {
	_, err := c.GetUser(ctx, id)
	if err == nil {
		return true, nil
	}
	var ocsErr *OCSError
	if errors.As(err, &ocsErr) {
		return false, nil
	}
	return false, err
}

// CreateUser создаёт пользователя. Группы назначаются отдельными
// вызовами после создания.
func (c *Client) CreateUser(ctx context.Context, req CreateUserRequest) error {
	form := url.Values{
		"userid":      {req.UserID},
		"password":    {req.Password},
		"displayName": {req.DisplayName},
		"email":       {req.Email},
		"quota":       {req.Quota},
		"language":    {req.Language},
	}
	if err := c.doStatus(ctx, http.MethodPost, "ocs/v1.php/cloud/users", form); err != nil {
		return fmt.Errorf("CreateUser %s: %w", req.UserID, err)
	}
	return nil
}

// EditUser изменяет одно поле пользователя (email, displayname, quota...).
func (c *Client) EditUser(ctx context.Context, id, key, value string) error {
	form := url.Values{
		"key":   {key},
		"value": {value},
	}
	if err := c.doStatus(ctx, http.MethodPut, "ocs/v1.php/cloud/users/"+url.PathEscape(id), form); err != nil {
		return fmt.Errorf("EditUser %s (%s): %w", id, key, err)
	}
	return nil
}

// DisableUser отключает пользователя.
func (c *Client) DisableUser(ctx context.Context, id string) error {
	if err := c.doStatus(ctx, http.MethodPut, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/disable", nil); err != nil {
		return fmt.Errorf("DisableUser %s: %w", id, err)
	}
	return nil
}

// EnableUser включает пользователя.
func (c *Client) EnableUser(ctx context.Context, id string) error {
	if err := c.doStatus(ctx, http.MethodPut, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/enable", nil); err != nil {
		return fmt.Errorf("EnableUser %s: %w", id, err)
	}
	return nil
}

// DeleteUser удаляет пользователя.
func (c *Client) DeleteUser(ctx context.Context, id string) error {
	if err := c.doStatus(ctx, http.MethodDelete, "ocs/v1.php/cloud/users/"+url.PathEscape(id), nil); err != nil {
		return fmt.Errorf("DeleteUser %s: %w", id, err)
	}
	return nil
}

// ResendWelcomeMail повторно отправляет приветственное письмо.
func (c *Client) ResendWelcomeMail(ctx context.Context, id string) error {
	if err := c.doStatus(ctx, http.MethodPost, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/welcome", nil); err != nil {
		return fmt.Errorf("ResendWelcomeMail %s: %w", id, err)
	}
	return nil
}

// --- Circles ---

// ListCircles возвращает сырой ответ приложения Circles.
// Endpoint лежит вне OCS-конверта, поэтому ответ не разбирается.
func (c *Client) ListCircles(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "apps/circles/circles", nil)
	if err != nil {
		return "", fmt.Errorf("ListCircles: %w", err)
	}
	return string(data), nil
}
