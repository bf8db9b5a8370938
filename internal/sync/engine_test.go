package sync

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"testing"

	"github.com/t-markmann/nc-userimporter/internal/csvsource"
	"github.com/t-markmann/nc-userimporter/internal/domain/model"
	"github.com/t-markmann/nc-userimporter/internal/nextcloud"
)

// testLogger создаёт logger для тестов.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// scriptedConfirmer — детерминированный источник подтверждений.
type scriptedConfirmer struct {
	answers []bool
	prompts []string
}

func (s *scriptedConfirmer) Confirm(prompt string) bool {
	s.prompts = append(s.prompts, prompt)
	if len(s.answers) == 0 {
		return false
	}
	answer := s.answers[0]
	s.answers = s.answers[1:]
	return answer
}

// fakeUser — состояние пользователя на фальшивом сервере.
type fakeUser struct {
	displayName string
	email       string
	groups      map[string]bool
	subadmins   map[string]bool
}

// fakeServer — скриптуемый Nextcloud для тестов движка.
type fakeServer struct {
	users  map[string]*fakeUser
	groups map[string]bool
	order  []string // порядок листинга пользователей

	// failSubadminsFor — пользователи, для которых запрос subadmins
	// возвращает доменную ошибку (симуляция частичной загрузки).
	failSubadminsFor map[string]bool
	// failEmailEdit — возвращать ошибку на изменение email.
	failEmailEdit bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		users:            make(map[string]*fakeUser),
		groups:           make(map[string]bool),
		failSubadminsFor: make(map[string]bool),
	}
}

func (f *fakeServer) addUser(id, displayName, email string, groups, subadmins []string) {
	u := &fakeUser{
		displayName: displayName,
		email:       email,
		groups:      make(map[string]bool),
		subadmins:   make(map[string]bool),
	}
	for _, g := range groups {
		u.groups[g] = true
		f.groups[g] = true
	}
	for _, g := range subadmins {
		u.subadmins[g] = true
		f.groups[g] = true
	}
	f.users[id] = u
	f.order = append(f.order, id)
}

func okXML(data string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><ocs><meta><status>ok</status><statuscode>100</statuscode><message>OK</message></meta><data>%s</data></ocs>`, data)
}

func failXML(code int, message string) string {
	return fmt.Sprintf(`<?xml version="1.0"?><ocs><meta><status>failure</status><statuscode>%d</statuscode><message>%s</message></meta><data/></ocs>`, code, message)
}

func listXML(wrapper string, items map[string]bool) string {
	names := make([]string, 0, len(items))
	for n := range items {
		names = append(names, n)
	}
	sort.Strings(names)
	var b strings.Builder
	if wrapper != "" {
		fmt.Fprintf(&b, "<%s>", wrapper)
	}
	for _, n := range names {
		fmt.Fprintf(&b, "<element>%s</element>", n)
	}
	if wrapper != "" {
		fmt.Fprintf(&b, "</%s>", wrapper)
	}
	return okXML(b.String())
}

// ServeHTTP реализует интересующее подмножество OCS Provisioning API.
func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/ocs/v1.php/cloud/")
	parts := strings.Split(strings.Trim(path, "/"), "/")

	switch {
	case parts[0] == "users" && len(parts) == 1:
		var b strings.Builder
		b.WriteString("<users>")
		for _, id := range f.order {
			if _, ok := f.users[id]; ok {
				fmt.Fprintf(&b, "<element>%s</element>", id)
			}
		}
		b.WriteString("</users>")
		fmt.Fprint(w, okXML(b.String()))

	case parts[0] == "users" && len(parts) == 2:
		id := parts[1]
		user, ok := f.users[id]
		if !ok {
			fmt.Fprint(w, failXML(404, "User does not exist"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, okXML(fmt.Sprintf("<id>%s</id><displayname>%s</displayname><email>%s</email>",
				id, user.displayName, user.email)))
		case http.MethodPut:
			r.ParseForm()
			key, value := r.PostForm.Get("key"), r.PostForm.Get("value")
			if key == "email" && f.failEmailEdit {
				fmt.Fprint(w, failXML(101, "invalid email"))
				return
			}
			switch key {
			case "email":
				user.email = value
			case "displayname":
				user.displayName = value
			}
			fmt.Fprint(w, okXML(""))
		case http.MethodDelete:
			delete(f.users, id)
			fmt.Fprint(w, okXML(""))
		}

	case parts[0] == "users" && len(parts) == 3 && parts[2] == "groups":
		id := parts[1]
		user, ok := f.users[id]
		if !ok {
			fmt.Fprint(w, failXML(404, "User does not exist"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, listXML("groups", user.groups))
		case http.MethodPost:
			r.ParseForm()
			group := r.PostForm.Get("groupid")
			if !f.groups[group] {
				fmt.Fprint(w, failXML(102, "group does not exist"))
				return
			}
			user.groups[group] = true
			fmt.Fprint(w, okXML(""))
		case http.MethodDelete:
			delete(user.groups, r.URL.Query().Get("groupid"))
			fmt.Fprint(w, okXML(""))
		}

	case parts[0] == "users" && len(parts) == 3 && parts[2] == "subadmins":
		id := parts[1]
		user, ok := f.users[id]
		if !ok {
			fmt.Fprint(w, failXML(404, "User does not exist"))
			return
		}
		if f.failSubadminsFor[id] {
			fmt.Fprint(w, failXML(999, "internal error"))
			return
		}
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, listXML("", user.subadmins))
		case http.MethodPost:
			r.ParseForm()
			user.subadmins[r.PostForm.Get("groupid")] = true
			fmt.Fprint(w, okXML(""))
		case http.MethodDelete:
			delete(user.subadmins, r.URL.Query().Get("groupid"))
			fmt.Fprint(w, okXML(""))
		}

	case parts[0] == "groups":
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, listXML("groups", f.groups))
		case http.MethodPost:
			r.ParseForm()
			f.groups[r.PostForm.Get("groupid")] = true
			fmt.Fprint(w, okXML(""))
		}

	default:
		fmt.Fprint(w, failXML(998, "not found"))
	}
}

// setupEngine поднимает фальшивый сервер и движок над ним.
func setupEngine(t *testing.T, fake *fakeServer, confirm *scriptedConfirmer, protected []string) *Engine {
	t.Helper()

	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client := nextcloud.New(server.URL, "admin", "secret", true, testLogger())
	return NewEngine(client, confirm, io.Discard, protected, testLogger())
}

func desiredUser(id, displayName, email string, groups, subadmins []string) model.DesiredUser {
	return model.DesiredUser{
		Username:       id,
		UsernameMapped: id,
		DisplayName:    displayName,
		Email:          email,
		Groups:         model.MakeSet(groups),
		SubadminGroups: model.MakeSet(subadmins),
	}
}

// TestEngine_BuildDesired проверяет нормализацию CSV-строк:
// транслитерацию, подстановку displayname и разбор групп.
func TestEngine_BuildDesired(t *testing.T) {
	e := setupEngine(t, newFakeServer(), &scriptedConfirmer{}, nil)

	rows := []csvsource.Row{
		{Username: "alice", DisplayName: "Alice Ä.", Email: "alice@x.com", Groups: "teachers", Quota: "5GB", Line: 2},
		{Username: "Jörg", DisplayName: "", Groups: "teachers,staff", Subadmin: "staff", Line: 3},
		{Username: "", Line: 4},
	}

	desired := e.BuildDesired(rows, ",", "1GB")
	if len(desired) != 2 {
		t.Fatalf("получено %d записей, ожидалось 2 (пустой username пропущен)", len(desired))
	}

	alice := desired[0]
	if alice.UsernameMapped != "alice" {
		t.Errorf("UsernameMapped = %q", alice.UsernameMapped)
	}
	if alice.DisplayName != "Alice Ae." {
		t.Errorf("DisplayName = %q, ожидалось Alice Ae.", alice.DisplayName)
	}
	if alice.Quota != "5GB" {
		t.Errorf("Quota = %q", alice.Quota)
	}

	joerg := desired[1]
	if joerg.UsernameMapped != "Joerg" {
		t.Errorf("UsernameMapped = %q, ожидалось Joerg", joerg.UsernameMapped)
	}
	if joerg.DisplayName != "Joerg" {
		t.Errorf("DisplayName = %q: пустое значение должно заполняться именем", joerg.DisplayName)
	}
	if !joerg.Groups.Has("teachers") || !joerg.Groups.Has("staff") {
		t.Errorf("Groups = %v", joerg.Groups)
	}
	if !joerg.SubadminGroups.Has("staff") {
		t.Errorf("SubadminGroups = %v", joerg.SubadminGroups)
	}
	if joerg.Quota != "1GB" {
		t.Errorf("Quota = %q, ожидалась квота по умолчанию", joerg.Quota)
	}
}

// TestEngine_Run_NoDrift проверяет идемпотентность: при совпадающем
// состоянии не задаётся ни одного вопроса и не выполняется ни одной мутации.
func TestEngine_Run_NoDrift(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("alice", "Alice A.", "alice@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{}
	e := setupEngine(t, fake, confirm, nil)

	desired := []model.DesiredUser{
		desiredUser("alice", "Alice A.", "ALICE@x.com", []string{"teachers"}, nil),
	}

	result, err := e.Run(context.Background(), desired)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(confirm.prompts) != 0 {
		t.Errorf("заданы вопросы %v, ожидалось ни одного", confirm.prompts)
	}
	if result.Updated != 0 || result.Deleted != 0 || result.Declined != 0 || result.Failed != 0 {
		t.Errorf("неожиданные мутации: %+v", result)
	}
}

// TestEngine_Run_DeletionDeclined проверяет fail-safe удаление:
// ответ "n" оставляет пользователя на месте.
func TestEngine_Run_DeletionDeclined(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("bob", "Bob B.", "bob@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{false}}
	e := setupEngine(t, fake, confirm, []string{"admin"})

	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(confirm.prompts) != 1 {
		t.Fatalf("задано %d вопросов, ожидался 1", len(confirm.prompts))
	}
	if result.Declined != 1 || result.Deleted != 0 {
		t.Errorf("result = %+v, ожидался отказ без удаления", result)
	}
	if _, ok := fake.users["bob"]; !ok {
		t.Error("bob удалён несмотря на отказ")
	}
}

// TestEngine_Run_DeletionConfirmed проверяет удаление после согласия.
func TestEngine_Run_DeletionConfirmed(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("bob", "Bob B.", "bob@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, []string{"admin"})

	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Deleted != 1 {
		t.Errorf("result = %+v, ожидалось одно удаление", result)
	}
	if _, ok := fake.users["bob"]; ok {
		t.Error("bob всё ещё существует после подтверждённого удаления")
	}
}

// TestEngine_Run_ProtectedSkip проверяет безусловный пропуск участников
// защищённой группы: вопрос оператору даже не задаётся.
func TestEngine_Run_ProtectedSkip(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("root", "Root", "root@x.com", []string{"admin", "staff"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, []string{"admin"})

	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(confirm.prompts) != 0 {
		t.Error("для защищённого пользователя не должно быть вопроса")
	}
	if result.Protected != 1 {
		t.Errorf("Protected = %d, ожидалось 1", result.Protected)
	}
	if _, ok := fake.users["root"]; !ok {
		t.Error("защищённый пользователь удалён")
	}
}

// TestEngine_Run_GroupsAddition проверяет сценарий carol: недостающая
// группа создаётся, членство добавляется, существующее сохраняется.
func TestEngine_Run_GroupsAddition(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("carol", "Carol C.", "carol@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, nil)

	desired := []model.DesiredUser{
		desiredUser("carol", "Carol C.", "carol@x.com", []string{"teachers", "staff"}, nil),
	}

	result, err := e.Run(context.Background(), desired)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Updated != 1 {
		t.Errorf("Updated = %d, ожидалось 1: %+v", result.Updated, result)
	}
	if !fake.groups["staff"] {
		t.Error("группа staff не создана")
	}
	carol := fake.users["carol"]
	if !carol.groups["staff"] || !carol.groups["teachers"] {
		t.Errorf("группы carol = %v, ожидались teachers и staff", carol.groups)
	}
}

// TestEngine_Run_PartialPopulationExcluded проверяет исключение
// пользователя из сверки при неполной загрузке состояния.
func TestEngine_Run_PartialPopulationExcluded(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("dave", "Dave D.", "dave@x.com", []string{"teachers"}, nil)
	fake.failSubadminsFor["dave"] = true

	confirm := &scriptedConfirmer{answers: []bool{true, true}}
	e := setupEngine(t, fake, confirm, nil)

	// dave отсутствует в CSV, но из-за неполной загрузки не должен
	// стать кандидатом на удаление
	result, err := e.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Excluded != 1 {
		t.Errorf("Excluded = %d, ожидалось 1", result.Excluded)
	}
	if len(confirm.prompts) != 0 {
		t.Error("исключённый пользователь не должен участвовать в сверке")
	}
	if _, ok := fake.users["dave"]; !ok {
		t.Error("dave удалён несмотря на неполную загрузку")
	}
}

// TestEngine_Run_FieldFailureBestEffort проверяет best-effort применение:
// ошибка email не мешает применению groups.
func TestEngine_Run_FieldFailureBestEffort(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("erin", "Erin E.", "old@x.com", []string{"teachers"}, nil)
	fake.failEmailEdit = true

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, nil)

	desired := []model.DesiredUser{
		desiredUser("erin", "Erin E.", "new@x.com", []string{"teachers", "staff"}, nil),
	}

	result, err := e.Run(context.Background(), desired)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if result.Failed != 1 {
		t.Errorf("Failed = %d, ожидалось 1", result.Failed)
	}
	if !fake.users["erin"].groups["staff"] {
		t.Error("ошибка поля email заблокировала применение groups")
	}
}

// TestEngine_Run_SecondRunClean проверяет, что после применённых
// изменений повторный запуск не находит дрейфа.
func TestEngine_Run_SecondRunClean(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("carol", "Carol", "old@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, nil)

	desired := []model.DesiredUser{
		desiredUser("carol", "Carol C.", "new@x.com", []string{"teachers", "staff"}, []string{"staff"}),
	}

	if _, err := e.Run(context.Background(), desired); err != nil {
		t.Fatalf("первый Run: %v", err)
	}

	// Второй запуск: вопросов и мутаций быть не должно
	confirm2 := &scriptedConfirmer{}
	e2 := setupEngine(t, fake, confirm2, nil)
	// Поднимаем второй движок над тем же состоянием fake через новый сервер
	result, err := e2.Run(context.Background(), desired)
	if err != nil {
		t.Fatalf("второй Run: %v", err)
	}

	if len(confirm2.prompts) != 0 {
		t.Errorf("во втором запуске заданы вопросы: %v", confirm2.prompts)
	}
	if result.Updated != 0 || result.Deleted != 0 || result.Failed != 0 {
		t.Errorf("во втором запуске выполнены мутации: %+v", result)
	}
}

// TestEngine_Run_CancelledContext проверяет, что прерванный запуск
// не выполняет новых мутаций.
func TestEngine_Run_CancelledContext(t *testing.T) {
	fake := newFakeServer()
	fake.addUser("bob", "Bob B.", "bob@x.com", []string{"teachers"}, nil)

	confirm := &scriptedConfirmer{answers: []bool{true}}
	e := setupEngine(t, fake, confirm, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// Листинг уже не выполнится — Run вернёт ошибку транспорта
	if _, err := e.Run(ctx, nil); err == nil {
		t.Error("ожидалась ошибка при отменённом контексте")
	}
	if _, ok := fake.users["bob"]; !ok {
		t.Error("мутация выполнена после отмены")
	}
}
