// groups.go — операции с группами и subadmin-ролями.
// EnsureGroupsExist создаёт недостающие группы до любых изменений
// членства: API отклоняет добавление в несуществующую группу.
// SyncUserGroups/SyncSubadminGroups применяют симметрическую разность:
// сначала добавления, затем удаления; ошибка добавлений прерывает
// удаления, чтобы не оставить учётную запись хуже, чем была.
package nextcloud

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/t-markmann/nc-userimporter/internal/domain/model"
)

// ListGroups возвращает имена всех групп сервера.
func (c *Client) ListGroups(ctx context.Context) ([]string, error) {
	groups, err := c.doList(ctx, "ocs/v1.php/cloud/groups")
	if err != nil {
		return nil, fmt.Errorf("ListGroups: %w", err)
	}
	return groups, nil
}

// CreateGroup создаёт группу.
func (c *Client) CreateGroup(ctx context.Context, name string) error {
	form := url.Values{"groupid": {name}}
	if err := c.doStatus(ctx, http.MethodPost, "ocs/v1.php/cloud/groups", form); err != nil {
		return fmt.Errorf("CreateGroup %s: %w", name, err)
	}
	return nil
}

// UserGroups возвращает группы пользователя.
func (c *Client) UserGroups(ctx context.Context, id string) ([]string, error) {
	groups, err := c.doList(ctx, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/groups")
	if err != nil {
		return nil, fmt.Errorf("UserGroups %s: %w", id, err)
	}
	return groups, nil
}

// AddUserToGroup добавляет пользователя в группу.
func (c *Client) AddUserToGroup(ctx context.Context, id, group string) error {
	form := url.Values{"groupid": {group}}
	if err := c.doStatus(ctx, http.MethodPost, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/groups", form); err != nil {
		return fmt.Errorf("AddUserToGroup %s -> %s: %w", id, group, err)
	}
	return nil
}

// RemoveUserFromGroup удаляет пользователя из группы.
// Для DELETE groupid передаётся в строке запроса, не в теле.
func (c *Client) RemoveUserFromGroup(ctx context.Context, id, group string) error {
	endpoint := "ocs/v1.php/cloud/users/" + url.PathEscape(id) + "/groups?groupid=" + url.QueryEscape(group)
	if err := c.doStatus(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return fmt.Errorf("RemoveUserFromGroup %s -> %s: %w", id, group, err)
	}
	return nil
}

// UserSubadminGroups возвращает группы, в которых пользователь subadmin.
func (c *Client) UserSubadminGroups(ctx context.Context, id string) ([]string, error) {
	groups, err := c.doList(ctx, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/subadmins")
	if err != nil {
		return nil, fmt.Errorf("UserSubadminGroups %s: %w", id, err)
	}
	return groups, nil
}

// PromoteSubadmin назначает пользователя subadmin группы.
func (c *Client) PromoteSubadmin(ctx context.Context, id, group string) error {
	form := url.Values{"groupid": {group}}
	if err := c.doStatus(ctx, http.MethodPost, "ocs/v1.php/cloud/users/"+url.PathEscape(id)+"/subadmins", form); err != nil {
		return fmt.Errorf("PromoteSubadmin %s -> %s: %w", id, group, err)
	}
	return nil
}

// DemoteSubadmin снимает пользователя с роли subadmin группы.
func (c *Client) DemoteSubadmin(ctx context.Context, id, group string) error {
	endpoint := "ocs/v1.php/cloud/users/" + url.PathEscape(id) + "/subadmins?groupid=" + url.QueryEscape(group)
	if err := c.doStatus(ctx, http.MethodDelete, endpoint, nil); err != nil {
		return fmt.Errorf("DemoteSubadmin %s -> %s: %w", id, group, err)
	}
	return nil
}

// --- Составные операции ---

// EnsureGroupsExist проверяет существование групп и создаёт недостающие.
// Список существующих групп запрашивается один раз. При ошибке создания
// возвращается ошибка с именем группы — дальнейшие группы не создаются.
func (c *Client) EnsureGroupsExist(ctx context.Context, names model.Set[string]) error {
	if len(names) == 0 {
		return nil
	}

	existing, err := c.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("EnsureGroupsExist: получение существующих групп: %w", err)
	}
	existingSet := model.MakeSet(existing)

	for _, name := range model.SortedStrings(names) {
		if existingSet.Has(name) {
			continue
		}
		c.logger.Info("Группа отсутствует, создаём",
			slog.String("group", name),
		)
		if err := c.CreateGroup(ctx, name); err != nil {
			return fmt.Errorf("EnsureGroupsExist: группа %q: %w", name, err)
		}
	}
	return nil
}

// SyncUserGroups приводит членство пользователя к желаемому множеству.
// Добавления выполняются до удалений; ошибка на этапе добавлений
// прерывает операцию, и удаления не выполняются.
func (c *Client) SyncUserGroups(ctx context.Context, id string, current, desired model.Set[string]) error {
	toAdd := desired.Difference(current)
	toRemove := current.Difference(desired)

	if len(toAdd) > 0 {
		if err := c.EnsureGroupsExist(ctx, toAdd); err != nil {
			return fmt.Errorf("SyncUserGroups %s: %w", id, err)
		}
		for _, group := range model.SortedStrings(toAdd) {
			if err := c.AddUserToGroup(ctx, id, group); err != nil {
				return fmt.Errorf("SyncUserGroups %s: %w", id, err)
			}
		}
	}

	for _, group := range model.SortedStrings(toRemove) {
		if err := c.RemoveUserFromGroup(ctx, id, group); err != nil {
			return fmt.Errorf("SyncUserGroups %s: %w", id, err)
		}
	}

	return nil
}

// SyncSubadminGroups приводит subadmin-роли пользователя к желаемому
// множеству. Порядок тот же: ensure, продвижения, затем снятия.
func (c *Client) SyncSubadminGroups(ctx context.Context, id string, current, desired model.Set[string]) error {
	toAdd := desired.Difference(current)
	toRemove := current.Difference(desired)

	if len(toAdd) > 0 {
		if err := c.EnsureGroupsExist(ctx, toAdd); err != nil {
			return fmt.Errorf("SyncSubadminGroups %s: %w", id, err)
		}
		for _, group := range model.SortedStrings(toAdd) {
			if err := c.PromoteSubadmin(ctx, id, group); err != nil {
				return fmt.Errorf("SyncSubadminGroups %s: %w", id, err)
			}
		}
	}

	for _, group := range model.SortedStrings(toRemove) {
		if err := c.DemoteSubadmin(ctx, id, group); err != nil {
			return fmt.Errorf("SyncSubadminGroups %s: %w", id, err)
		}
	}

	return nil
}
