package listingtrack

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/viktsys/tt2ingest/source"
)

func TestFetchAssetsFollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("skip") {
		case "":
			fmt.Fprintf(w, `{"value":[
				{"symbol":"NEWC","name":"New Co","ipo":{"listingMethod":"IPO"}},
				{"symbol":"SPCX","name":"Space Acquisition","ipo":{"listingMethod":"SPAC"}},
				{"symbol":"NOIPO","name":"No Method","ipo":null}],
				"@odata.nextLink":"%s/odata/companies?skip=3"}`, srv.URL)
		case "3":
			w.Write([]byte(`{"value":[
				{"symbol":"DL","name":"Direct Listing Inc","ipo":{"listingMethod":"Direct Listing"}},
				{"symbol":null,"name":"Nameless","ipo":{"listingMethod":"IPO"}}]}`))
		default:
			t.Errorf("Unexpected page %s", r.URL)
		}
	}))
	defer srv.Close()

	c := New(source.NewClient(time.Second, ""), srv.URL+"/odata/companies")
	records, err := c.FetchAssets(context.Background())
	if err != nil {
		t.Fatalf("FetchAssets: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("Expected 3 complete records across two pages, got %+v", records)
	}
	if records[1].Symbol != "SPCX" || records[1].Category != "SPAC" {
		t.Errorf("Unexpected record %+v", records[1])
	}
	if records[2].Category != "Direct Listing" {
		t.Errorf("Unexpected record %+v", records[2])
	}
}

func TestFetchAssetsKeepsPagesBeforeFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("skip") == "1" {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		fmt.Fprintf(w, `{"value":[{"symbol":"NEWC","name":"New Co","ipo":{"listingMethod":"IPO"}}],
			"@odata.nextLink":"%s/?skip=1"}`, srv.URL)
	}))
	defer srv.Close()

	c := New(source.NewClient(time.Second, ""), srv.URL+"/")
	records, err := c.FetchAssets(context.Background())
	if err != nil {
		t.Fatalf("FetchAssets: %v", err)
	}
	if len(records) != 1 {
		t.Errorf("Expected the first page's record, got %+v", records)
	}
}

func TestFetchAssetsFirstPageFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"bad request"}`))
	}))
	defer srv.Close()

	c := New(source.NewClient(time.Second, ""), srv.URL)
	if _, err := c.FetchAssets(context.Background()); err == nil {
		t.Error("Expected an error for a document without value")
	}
}
