package correction

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCorrectTranscript_SendsAuthAndDecodesResponse(t *testing.T) {
	var gotAuth string
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		var req CorrectTranscriptRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		json.NewEncoder(w).Encode(correctionResponse{
			Segments:  []Segment{{Text: "fixed"}},
			Questions: []Question{{QuestionID: "q1"}},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "secret-key")
	segments, questions, err := c.CorrectTranscript(context.Background(), CorrectTranscriptRequest{
		ClientID: "c1", MeetingID: "m1",
	})

	require.NoError(t, err)
	assert.Equal(t, "Bearer secret-key", gotAuth)
	assert.Equal(t, "/v1/correct", gotPath)
	assert.Equal(t, "fixed", segments[0].Text)
	assert.Equal(t, "q1", questions[0].QuestionID)
}

func TestCorrectTranscript_OmitsAuthWhenNoAPIKey(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(correctionResponse{})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, _, err := c.CorrectTranscript(context.Background(), CorrectTranscriptRequest{})
	require.NoError(t, err)
	assert.Empty(t, gotAuth)
}

func TestPost_NonSuccessStatusIsAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	_, _, err := c.CorrectTranscript(context.Background(), CorrectTranscriptRequest{})
	assert.Error(t, err)
}

func TestListCorrections_EncodesQueryParams(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		json.NewEncoder(w).Encode(listCorrectionsResponse{Corrections: []CorrectionRecord{{Original: "teh", Corrected: "the"}}})
	}))
	defer srv.Close()

	c := New(srv.URL, "")
	projectID := "proj-1"
	records, err := c.ListCorrections(context.Background(), ListCorrectionsRequest{
		ClientID: "c1", ProjectID: &projectID, MaxResults: 5,
	})

	require.NoError(t, err)
	assert.Contains(t, gotQuery, "clientId=c1")
	assert.Contains(t, gotQuery, "projectId=proj-1")
	assert.Contains(t, gotQuery, "maxResults=5")
	assert.Equal(t, "the", records[0].Corrected)
}
