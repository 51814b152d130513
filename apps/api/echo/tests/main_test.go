package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/akela-hq/akela/apps/api/echo"
	"github.com/akela-hq/akela/core"
	"github.com/akela-hq/akela/core/announce"
	"github.com/akela-hq/akela/core/badge"
	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/syncop"
	"github.com/akela-hq/akela/core/unit"
	"github.com/akela-hq/akela/core/user"
	emailsvc "github.com/akela-hq/akela/services/email"
	dummydb "github.com/akela-hq/akela/storage/database/dummy"
)

var (
	app echoapi.Server

	usrRepo    user.Repository
	usrSvc     user.Service
	unitSvc    unit.Service
	memberSvc  member.Service
	meetingSvc meeting.Service
	badgeSvc   badge.Service

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

func TestMain(m *testing.M) {
	if err := os.Setenv("ENV", "TEST"); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	conf := core.NewConfig()

	enLocale := en.New()
	translator, _ := ut.New(enLocale, enLocale).GetTranslator(enLocale.Locale())
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	unit.InitValidators(validate, translator)
	syncop.InitValidators(validate)
	core.ParseEmailTemplates(nopLogger{})

	db, err := dummydb.Open()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}

	memberRepo := dummydb.NewMemberRepository(db)
	meetingRepo := dummydb.NewMeetingRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock()
	usrRepo = dummydb.NewUserRepository(db)
	usrSvc = user.NewServiceMock(usrRepo, mailSvc, conf)
	unitSvc = unit.NewService(dummydb.NewUnitRepository(db))
	memberSvc = member.NewService(memberRepo)
	meetingSvc = meeting.NewService(meetingRepo)
	badgeSvc = badge.NewService(dummydb.NewBadgeRepository(db))
	announceSvc := announce.NewService(dummydb.NewAnnounceRepository(db))
	syncSvc := syncop.NewService(dummydb.NewSyncRepository(db, memberRepo, meetingRepo))

	app = echoapi.NewServer(&echoapi.Options{
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		UnitSvc:        unitSvc,
		MemberSvc:      memberSvc,
		MeetingSvc:     meetingSvc,
		BadgeSvc:       badgeSvc,
		AnnounceSvc:    announceSvc,
		SyncSvc:        syncSvc,
		Validate:       validate,
		Translator:     translator,
		Logger:         nopLogger{},
	})

	os.Exit(m.Run())
}

type nopLogger struct{}

func (nopLogger) Enable(bool)                  {}
func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Fatal(string, ...interface{}) {}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// createUser registers a user straight through the service.
func createUser(t *testing.T, name, uname, email, pwd string, active bool) user.User {
	t.Helper()
	usr, err := usrSvc.Create(context.Background(), user.NewUser{
		Name:            name,
		Username:        uname,
		Email:           email,
		Password:        pwd,
		PasswordConfirm: pwd,
	})
	if err != nil {
		t.Fatalf("createUser(): %v", err)
	}
	if !active {
		f := false
		usr, err = usrSvc.Update(context.Background(), usr.ID, user.UpdateUser{IsActive: &f})
		if err != nil {
			t.Fatalf("createUser(): %v", err)
		}
	}
	return usr
}

// createSuperuser goes through the repository; the API never mints superusers.
func createSuperuser(t *testing.T, name, uname, email, pwd string) user.User {
	t.Helper()
	usr := user.User{
		Name:        name,
		Username:    uname,
		Email:       email,
		IsSuperuser: true,
	}
	usr.SetActive(true)
	if err := usr.SetPassword(pwd); err != nil {
		t.Fatalf("createSuperuser(): %v", err)
	}
	usr, err := usrRepo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createSuperuser(): %v", err)
	}
	return usr
}

// createUnit creates a unit with usr as its head leader.
func createUnit(t *testing.T, usr user.User, name, slug string) unit.Unit {
	t.Helper()
	un, err := unitSvc.Create(context.Background(), unit.NewUnit{
		Name:     name,
		Slug:     slug,
		Section:  unit.SectionCubs,
		Timezone: "UTC",
	}, usr.ID)
	if err != nil {
		t.Fatalf("createUnit(): %v", err)
	}
	return un
}

func getToken(t *testing.T, usr user.User) string {
	t.Helper()
	mships, err := unitSvc.MembershipsForUser(context.Background(), usr.ID)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	claims := echoapi.GetUserClaims(usr, mships)
	token, err := echoapi.GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken(): %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj(): %v", err)
	}
	return data
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	return false, nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
