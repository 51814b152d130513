package tests

import (
	"net/http"
	"testing"

	"github.com/pkg/errors"

	"github.com/akela-hq/akela/core/user"
)

func Test_userApi_login(t *testing.T) {
	createUser(t, "Hairy Potter", "hairy01", "hairy@test.dev", "LeviOsa", true)
	createUser(t, "Inactive Ivan", "ivan01", "ivan@test.dev", "NotToday1", false)

	tests := []httpTest{
		{
			name:     "empty body",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "unknown user",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{"username": "nobody", "password": "whatever"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "wrong password",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{"username": "hairy01", "password": "levioSA"}`),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, httpErr{Error: "authentication failed"}),
		},
		{
			name:     "deactivated account",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{"username": "ivan01", "password": "NotToday1"}`),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "account deactivated"}),
		},
		{
			name:     "login by username",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{"username": "hairy01", "password": "LeviOsa"}`),
			wantCode: http.StatusOK,
		},
		{
			name:     "login by email",
			method:   http.MethodPost,
			path:     "/v1/users/login",
			body:     []byte(`{"username": "hairy@test.dev", "password": "LeviOsa"}`),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newRequest(tt.method, tt.path, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_me(t *testing.T) {
	usr := createUser(t, "Ron Weasley", "ronron", "ron@test.dev", "ChuddleyC1", true)
	token := getToken(t, usr)

	t.Run("auth required", func(t *testing.T) {
		tt := httpTest{
			method:   http.MethodGet,
			path:     "/v1/users/me",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		}
		req, rec := newRequest(tt.method, tt.path)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("self profile", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/users/me", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("self update cannot deactivate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me", token, []byte(`{"is_active": false}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("push subscription", func(t *testing.T) {
		body := []byte(`{"endpoint": "https://push.test.dev/sub/abc", "p256dh": "keymat", "auth": "authmat"}`)
		req, rec := newAuthRequest(http.MethodPut, "/v1/users/me/push-subscription", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})
}

func Test_userApi_adminOnly(t *testing.T) {
	usr := createUser(t, "Norbert Muggle", "norbert1", "norbert@test.dev", "Dragon5Egg", true)
	super := createSuperuser(t, "Head Office", "headoffice", "head@test.dev", "Sup3rS3cret")

	tests := []httpTest{
		{
			name:     "query forbidden for plain user",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    getToken(t, usr),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, httpErr{Error: "permission denied"}),
		},
		{
			name:     "query allowed for superuser",
			method:   http.MethodGet,
			path:     "/v1/users",
			token:    getToken(t, super),
			wantCode: http.StatusOK,
		},
		{
			name:     "detail of another user is hidden",
			method:   http.MethodGet,
			path:     "/v1/users/" + super.ID,
			token:    getToken(t, usr),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "superuser reads any detail",
			method:   http.MethodGet,
			path:     "/v1/users/" + usr.ID,
			token:    getToken(t, super),
			wantCode: http.StatusOK,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_userApi_destroy(t *testing.T) {
	super := createSuperuser(t, "Albus Actual", "albus001", "albus@test.dev", "Sh3rbetLemon")
	victim := createUser(t, "Tom Riddle", "riddle01", "riddle@test.dev", "Horcrux777", true)

	t.Run("cannot delete self", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+super.ID, getToken(t, super))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v", rec.Code, http.StatusForbidden)
		}
	})

	t.Run("superuser deletes another user", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/users/"+victim.ID, getToken(t, super))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		if _, err := usrSvc.GetByID(req.Context(), victim.ID); errors.Cause(err) != user.ErrNotFound {
			t.Errorf("GetByID() err = %v; want %v", err, user.ErrNotFound)
		}
	})
}
