package tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/akela-hq/akela/core/unit"
)

func Test_unitApi_create(t *testing.T) {
	usr := createUser(t, "Akela Prime", "akela001", "akela@test.dev", "GreyWolf99", true)
	token := getToken(t, usr)

	t.Run("invalid section rejected", func(t *testing.T) {
		body := []byte(`{"name": "1st Test Troop", "slug": "1st-test", "section": "wizards"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/units", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("creator becomes head leader", func(t *testing.T) {
		body := []byte(`{"name": "1st Test Troop", "slug": "firsttest", "section": "cubs"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/units", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}

		var un unit.Unit
		if err := json.Unmarshal(rec.Body.Bytes(), &un); err != nil {
			t.Fatal(err)
		}
		m, err := unitSvc.GetMembership(req.Context(), un.ID, usr.ID)
		if err != nil {
			t.Fatalf("GetMembership(): %v", err)
		}
		if !m.IsHead() {
			t.Errorf("creator role = %q; want %q", m.Role, unit.RoleLeaderHead)
		}
	})

	t.Run("duplicate slug rejected", func(t *testing.T) {
		body := []byte(`{"name": "Copycats", "slug": "firsttest", "section": "scouts"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/units", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}

func Test_unitApi_scope(t *testing.T) {
	head := createUser(t, "Head One", "headone1", "headone@test.dev", "BadenP0well", true)
	outsider := createUser(t, "Out Sider", "outsider", "outsider@test.dev", "N0tInvited", true)
	un := createUnit(t, head, "2nd Test Troop", "secondtest")

	tests := []httpTest{
		{
			name:     "member views unit",
			method:   http.MethodGet,
			path:     "/v1/units/" + un.ID,
			token:    getToken(t, head),
			wantCode: http.StatusOK,
		},
		{
			name:     "nonmember gets 404, not 403",
			method:   http.MethodGet,
			path:     "/v1/units/" + un.ID,
			token:    getToken(t, outsider),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: "not found"}),
		},
		{
			name:     "nonmember cannot update",
			method:   http.MethodPut,
			path:     "/v1/units/" + un.ID,
			body:     []byte(`{"name": "Hijacked"}`),
			token:    getToken(t, outsider),
			wantCode: http.StatusNotFound,
		},
		{
			name:     "head updates settings",
			method:   http.MethodPut,
			path:     "/v1/units/" + un.ID,
			body:     []byte(`{"settings": {"email_enabled": true, "push_enabled": true}}`),
			token:    getToken(t, head),
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

func Test_unitApi_memberships(t *testing.T) {
	head := createUser(t, "Head Two", "headtwo2", "headtwo@test.dev", "BrownS3a", true)
	helper := createUser(t, "Handy Helper", "handyhelper", "helper@test.dev", "CampF1re", true)
	un := createUnit(t, head, "3rd Test Troop", "thirdtest")
	headToken := getToken(t, head)

	t.Run("head adds a helper", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"user_id": %q, "role": %q}`, helper.ID, unit.RoleHelper))
		req, rec := newAuthRequest(http.MethodPut, "/v1/units/"+un.ID+"/memberships", headToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("helper cannot manage memberships", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"user_id": %q, "role": %q}`, helper.ID, unit.RoleLeader))
		req, rec := newAuthRequest(http.MethodPut, "/v1/units/"+un.ID+"/memberships", getToken(t, helper), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusForbidden, rec.Body.String())
		}
	})

	t.Run("last head cannot be demoted", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"user_id": %q, "role": %q}`, head.ID, unit.RoleHelper))
		req, rec := newAuthRequest(http.MethodPut, "/v1/units/"+un.ID+"/memberships", headToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusConflict, rec.Body.String())
		}
	})

	t.Run("last head cannot be removed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/units/"+un.ID+"/memberships/"+head.ID, headToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusConflict, rec.Body.String())
		}
	})

	t.Run("helper can be removed", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, "/v1/units/"+un.ID+"/memberships/"+helper.ID, headToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})
}
