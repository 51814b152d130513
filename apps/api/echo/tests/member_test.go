package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/akela-hq/akela/core/member"
)

func Test_memberApi_crud(t *testing.T) {
	head := createUser(t, "Pack Head", "packhead", "packhead@test.dev", "DenM0ther", true)
	un := createUnit(t, head, "4th Test Troop", "fourthtest")
	token := getToken(t, head)
	base := "/v1/units/" + un.ID + "/members"

	var mbr member.Member

	t.Run("create", func(t *testing.T) {
		body := []byte(`{"name": "Mowgli Seeonee", "birth_date": "2016-04-02T00:00:00Z", "group": "Red Six", "census_id": "C-1001"}`)
		req, rec := newAuthRequest(http.MethodPost, base, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &mbr); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("census id taken by another unit", func(t *testing.T) {
		other := createUser(t, "Other Head", "otherhead", "otherhead@test.dev", "R1valPack", true)
		otherUnit := createUnit(t, other, "5th Test Troop", "fifthtest")

		body := []byte(`{"name": "Impostor Kid", "birth_date": "2015-01-01T00:00:00Z", "census_id": "C-1001"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/units/"+otherUnit.ID+"/members", getToken(t, other), body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusBadRequest, rec.Body.String())
		}
	})

	t.Run("query", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, base+"?search=mowgli", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var members []member.Member
		if err := json.Unmarshal(rec.Body.Bytes(), &members); err != nil {
			t.Fatal(err)
		}
		if len(members) != 1 {
			t.Errorf("got %d members; want 1", len(members))
		}
	})

	t.Run("update", func(t *testing.T) {
		body := []byte(`{"allergies": "peanuts"}`)
		req, rec := newAuthRequest(http.MethodPut, base+"/"+mbr.ID, token, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var updated member.Member
		if err := json.Unmarshal(rec.Body.Bytes(), &updated); err != nil {
			t.Fatal(err)
		}
		if updated.Allergies != "peanuts" {
			t.Errorf("allergies = %q; want %q", updated.Allergies, "peanuts")
		}
	})

	t.Run("guardian lifecycle", func(t *testing.T) {
		gBody := []byte(`{"name": "Raksha Wolf", "email": "raksha@test.dev", "phone": "+15550001111"}`)
		req, rec := newAuthRequest(http.MethodPost, "/v1/units/"+un.ID+"/guardians", token, gBody)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusCreated {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusCreated, rec.Body.String())
		}
		var grd member.Guardian
		if err := json.Unmarshal(rec.Body.Bytes(), &grd); err != nil {
			t.Fatal(err)
		}

		req, rec = newAuthRequest(http.MethodPut, base+"/"+mbr.ID+"/guardians/"+grd.ID, token, []byte(`{"relationship": "mother"}`))
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("link code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, base+"/"+mbr.ID+"/guardians", token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
		}
		var guardians []member.Guardian
		if err := json.Unmarshal(rec.Body.Bytes(), &guardians); err != nil {
			t.Fatal(err)
		}
		if len(guardians) != 1 {
			t.Fatalf("got %d guardians; want 1", len(guardians))
		}
	})

	t.Run("delete", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodDelete, base+"?id="+mbr.ID, token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNoContent {
			t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusNoContent, rec.Body.String())
		}

		req, rec = newAuthRequest(http.MethodGet, base+"/"+mbr.ID, token)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("code = %v; want %v after delete", rec.Code, http.StatusNotFound)
		}
	})
}

func Test_memberApi_importCensus(t *testing.T) {
	head := createUser(t, "Import Head", "importhead", "import@test.dev", "Sp1readsheet", true)
	un := createUnit(t, head, "6th Test Troop", "sixthtest")
	token := getToken(t, head)

	csv := "Census ID,Name,Birth Date,Group,Guardian Name,Guardian Email\n" +
		"C-2001,Kaa Restless,2015-06-01,Green Six,Chil Kite,chil@test.dev\n" +
		",Missing Birth,,Green Six,,\n" +
		",,,,,\n"

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("file", "census.csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := fw.Write([]byte(csv)); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	req := httptest.NewRequest(http.MethodPost, "/v1/units/"+un.ID+"/members/import", &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	app.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %v; want %v: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var res member.ImportResult
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	// row 2 has a name so it imports; the blank row errors out
	if res.Created != 2 {
		t.Errorf("created = %d; want 2: %s", res.Created, rec.Body.String())
	}
	if res.Skipped != 1 {
		t.Errorf("skipped = %d; want 1", res.Skipped)
	}

	guardians, err := memberSvc.QueryGuardians(req.Context(), un.ID, "chil")
	if err != nil {
		t.Fatalf("QueryGuardians(): %v", err)
	}
	if len(guardians) != 1 {
		t.Errorf("got %d imported guardians; want 1", len(guardians))
	}
}
