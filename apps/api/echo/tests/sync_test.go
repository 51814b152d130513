package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/syncop"
)

func Test_syncApi_applyBatch(t *testing.T) {
	head := createUser(t, "Sync Head", "synchead", "synchead@test.dev", "Offl1neFirst", true)
	un := createUnit(t, head, "9th Test Troop", "ninthtest")
	token := getToken(t, head)
	path := "/v1/units/" + un.ID + "/sync"

	opID := uuid.NewString()
	batch := []byte(fmt.Sprintf(`{"ops": [{
		"op_id": %q,
		"entity": "members",
		"action": "create",
		"payload": {"name": "Offline Olive", "birth_date": "2016-08-20T00:00:00Z"}
	}]}`, opID))

	var memberID string

	t.Run("create applies", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token, batch)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res struct {
			Results []syncop.OpResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if len(res.Results) != 1 || res.Results[0].Status != syncop.OpApplied {
			t.Fatalf("results = %+v; want one applied op", res.Results)
		}
		memberID = res.Results[0].EntityID
	})

	t.Run("replay is a duplicate", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, path, token, batch)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res struct {
			Results []syncop.OpResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Results[0].Status != syncop.OpDuplicate {
			t.Errorf("status = %q; want %q", res.Results[0].Status, syncop.OpDuplicate)
		}
		if res.Results[0].EntityID != memberID {
			t.Errorf("entity_id = %q; want the original %q", res.Results[0].EntityID, memberID)
		}
	})

	t.Run("stale base conflicts", func(t *testing.T) {
		stale := time.Now().Add(-24 * time.Hour).UTC().Format(time.RFC3339)
		body := []byte(fmt.Sprintf(`{"ops": [{
			"op_id": %q,
			"entity": "members",
			"action": "update",
			"entity_id": %q,
			"base_updated_at": %q,
			"payload": {"group": "Blue Six"}
		}]}`, uuid.NewString(), memberID, stale))

		req, rec := newAuthRequest(http.MethodPost, path, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res struct {
			Results []syncop.OpResult `json:"results"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Results[0].Status != syncop.OpConflict {
			t.Errorf("status = %q; want %q: %+v", res.Results[0].Status, syncop.OpConflict, res.Results[0])
		}
	})

	t.Run("invalid entity rejected", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"ops": [{
			"op_id": %q,
			"entity": "wands",
			"action": "create",
			"payload": {}
		}]}`, uuid.NewString()))
		req, rec := newAuthRequest(http.MethodPost, path, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}

func Test_syncApi_changes(t *testing.T) {
	head := createUser(t, "Change Head", "changehead", "changehead@test.dev", "DeltaStr3am", true)
	un := createUnit(t, head, "10th Test Troop", "tenthtest")
	token := getToken(t, head)

	since := time.Now().Add(-time.Minute).UTC()
	mbr, err := memberSvc.Create(context.Background(), un.ID, member.NewMember{
		Name:      "Changed Charlie",
		BirthDate: time.Date(2016, 2, 2, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("creating member: %v", err)
	}
	if err := memberSvc.Delete(context.Background(), un.ID, mbr.ID); err != nil {
		t.Fatalf("deleting member: %v", err)
	}

	path := "/v1/units/" + un.ID + "/sync/changes?since=" + since.Format(time.RFC3339)
	req, rec := newAuthRequest(http.MethodGet, path, token)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var res struct {
		Changes    []syncop.Change `json:"changes"`
		ServerTime time.Time       `json:"server_time"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.ServerTime.IsZero() {
		t.Error("server_time missing")
	}

	var found bool
	for _, ch := range res.Changes {
		if ch.Entity == syncop.EntityMember && ch.EntityID == mbr.ID {
			found = true
			if !ch.Deleted {
				t.Error("deleted member should come back as a tombstone")
			}
		}
	}
	if !found {
		t.Errorf("member %s not in changes feed: %s", mbr.ID, rec.Body.String())
	}

	t.Run("bad since rejected", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/units/"+un.ID+"/sync/changes?since=yesterday", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}
