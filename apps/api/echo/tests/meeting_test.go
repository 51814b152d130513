package tests

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/akela-hq/akela/core/meeting"
	"github.com/akela-hq/akela/core/member"
	"github.com/akela-hq/akela/core/unit"
)

func Test_meetingApi(t *testing.T) {
	head := createUser(t, "Meet Head", "meethead", "meethead@test.dev", "Campf1reSong", true)
	guardianUsr := createUser(t, "Watching Parent", "watchingp", "parent@test.dev", "JustL00king", true)
	un := createUnit(t, head, "7th Test Troop", "seventhtest")
	token := getToken(t, head)

	if _, err := unitSvc.SetMembership(context.Background(), un.ID, unit.NewMembership{
		UserID: guardianUsr.ID,
		Role:   unit.RoleGuardian,
	}); err != nil {
		t.Fatalf("SetMembership(): %v", err)
	}

	mbr, err := memberSvc.Create(context.Background(), un.ID, member.NewMember{
		Name:      "Bagheera Junior",
		BirthDate: time.Date(2015, 3, 10, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("creating member: %v", err)
	}

	base := "/v1/units/" + un.ID + "/meetings"
	var mtg meeting.Meeting

	t.Run("guardian cannot create", func(t *testing.T) {
		body := []byte(`{"title": "Secret Plans", "starts_at": "2026-09-04T18:30:00Z"}`)
		req, rec := newAuthRequest(http.MethodPost, base, getToken(t, guardianUsr), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusForbidden, rec.Body.String())
		}
	})

	t.Run("create with checklist", func(t *testing.T) {
		body := []byte(`{"title": "Knots Night", "starts_at": "2026-09-04T18:30:00Z", "ends_at": "2026-09-04T20:00:00Z", "status": "planned", "checklist": ["Book the hall", "Bring ropes"]}`)
		req, rec := newAuthRequest(http.MethodPost, base, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &mtg); err != nil {
			t.Fatal(err)
		}
		if len(mtg.Checklist) != 2 {
			t.Errorf("got %d checklist items; want 2", len(mtg.Checklist))
		}
	})

	t.Run("guardian can view", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base+"/"+mtg.ID, getToken(t, guardianUsr))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
	})

	t.Run("tick checklist item", func(t *testing.T) {
		item := mtg.Checklist[0]
		req, rec := newAuthRequest(http.MethodPut, base+"/"+mtg.ID+"/checklist/"+item.ID, token, []byte(`{"done": true}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}
	})

	t.Run("mark attendance", func(t *testing.T) {
		body := []byte(fmt.Sprintf(`{"marks": [{"member_id": %q, "status": "present"}]}`, mbr.ID))
		req, rec := newAuthRequest(http.MethodPost, base+"/"+mtg.ID+"/attendance", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, base+"/"+mtg.ID+"/attendance", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var marks []meeting.Attendance
		if err := json.Unmarshal(rec.Body.Bytes(), &marks); err != nil {
			t.Fatal(err)
		}
		if len(marks) != 1 || marks[0].Status != meeting.AttendancePresent {
			t.Errorf("marks = %+v; want one present mark", marks)
		}
	})

	t.Run("attendance rejects member of another unit", func(t *testing.T) {
		stranger := createUser(t, "Stranger Head", "strangerh", "stranger@test.dev", "OtherTr00p", true)
		strangerUnit := createUnit(t, stranger, "8th Test Troop", "eighthtest")
		otherMbr, err := memberSvc.Create(context.Background(), strangerUnit.ID, member.NewMember{
			Name:      "Foreign Scout",
			BirthDate: time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC),
		})
		if err != nil {
			t.Fatalf("creating member: %v", err)
		}

		body := []byte(fmt.Sprintf(`{"marks": [{"member_id": %q, "status": "present"}]}`, otherMbr.ID))
		req, rec := newAuthRequest(http.MethodPost, base+"/"+mtg.ID+"/attendance", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusConflict {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusConflict, rec.Body.String())
		}
	})

	t.Run("member attendance summary", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/units/"+un.ID+"/members/"+mbr.ID+"/attendance", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var res struct {
			Summary meeting.AttendanceSummary `json:"summary"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
			t.Fatal(err)
		}
		if res.Summary.Present != 1 {
			t.Errorf("present = %d; want 1: %s", res.Summary.Present, rec.Body.String())
		}
	})

	t.Run("cancelled meeting refuses attendance", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPut, base+"/"+mtg.ID, token, []byte(`{"status": "cancelled"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}

		body := []byte(fmt.Sprintf(`{"marks": [{"member_id": %q, "status": "absent"}]}`, mbr.ID))
		req, rec = newAuthRequest(http.MethodPost, base+"/"+mtg.ID+"/attendance", token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})
}
