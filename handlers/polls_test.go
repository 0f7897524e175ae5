package handlers_test

import (
	"fmt"
	"html/template"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"polls-backend/middleware"
	"polls-backend/service"
	"polls-backend/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var escapedChoiceRequired = template.HTMLEscapeString(service.ChoiceRequiredMessage)

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func postVote(router *gin.Engine, questionID uint, form url.Values) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/%d/vote/", testMount, questionID), strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	router.ServeHTTP(w, req)
	return w
}

func TestIndex_NoQuestions(t *testing.T) {
	router, _ := SetupTestEnvironment(t)

	w := get(router, "/polls/")

	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "No polls are available.")
}

func TestIndex_PastQuestion(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	testutil.CreateQuestion(t, db, "Past question.", -30)

	w := get(router, "/polls/")

	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "Past question.")
	assert.NotContains(t, w.Body.String(), "No polls are available.")
}

func TestIndex_FutureQuestion(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	testutil.CreateQuestion(t, db, "Future question.", 30)

	w := get(router, "/polls/")

	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "No polls are available.")
	assert.NotContains(t, w.Body.String(), "Future question.")
}

func TestIndex_FutureAndPastQuestion(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	testutil.CreateQuestion(t, db, "Past question.", -30)
	testutil.CreateQuestion(t, db, "Future question.", 30)

	body := get(router, "/polls/").Body.String()

	assert.Contains(t, body, "Past question.")
	assert.NotContains(t, body, "Future question.")
}

func TestIndex_AtMostFiveNewestFirst(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	for i := 1; i <= 7; i++ {
		testutil.CreateQuestion(t, db, fmt.Sprintf("Question number %d.", i), -i)
	}

	body := get(router, "/polls/").Body.String()

	last := -1
	for i := 1; i <= 5; i++ {
		pos := strings.Index(body, fmt.Sprintf("Question number %d.", i))
		require.NotEqual(t, -1, pos, "question %d missing", i)
		assert.Greater(t, pos, last, "question %d out of order", i)
		last = pos
	}
	assert.NotContains(t, body, "Question number 6.")
	assert.NotContains(t, body, "Question number 7.")
}

func TestDetail(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	future := testutil.CreateQuestion(t, db, "Future question.", 5)
	past := testutil.CreateQuestion(t, db, "Past Question.", -5)
	testutil.AddChoice(t, db, past, "Yes")

	testutil.AssertStatus(t, get(router, fmt.Sprintf("/polls/%d/", future.ID)), http.StatusNotFound)

	w := get(router, fmt.Sprintf("/polls/%d/", past.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), "Past Question.")
	assert.Contains(t, w.Body.String(), "Yes")
	assert.NotContains(t, w.Body.String(), escapedChoiceRequired)
}

func TestDetail_BadIDs(t *testing.T) {
	router, _ := SetupTestEnvironment(t)

	for _, path := range []string{"/polls/999/", "/polls/abc/", "/polls/0/", "/polls/-1/"} {
		w := get(router, path)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := get(router, "/nowhere")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Not Found")
}

func TestResults(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	q := testutil.CreateQuestion(t, db, "Results?", -1)
	a := testutil.AddChoice(t, db, q, "Alpha")
	testutil.AddChoice(t, db, q, "Beta")
	require.NoError(t, db.Model(a).Update("votes", 1).Error)

	w := get(router, fmt.Sprintf("/polls/%d/results/", q.ID))
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `Alpha -- <span class="votes">1</span> vote `)
	assert.Contains(t, w.Body.String(), `Beta -- <span class="votes">0</span> votes`)

	future := testutil.CreateQuestion(t, db, "Later", 2)
	testutil.AssertStatus(t, get(router, fmt.Sprintf("/polls/%d/results/", future.ID)), http.StatusNotFound)
}

func TestVote_ValidChoice(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	q := testutil.CreateQuestion(t, db, "Vote?", -1)
	first := testutil.AddChoice(t, db, q, "First")
	second := testutil.AddChoice(t, db, q, "Second")

	w := postVote(router, q.ID, url.Values{"choice": {fmt.Sprint(first.ID)}})

	testutil.AssertStatus(t, w, http.StatusFound)
	assert.Equal(t, fmt.Sprintf("/polls/%d/results/", q.ID), w.Header().Get("Location"))
	assert.Equal(t, int64(1), testutil.Votes(t, db, first.ID))
	assert.Equal(t, int64(0), testutil.Votes(t, db, second.ID))
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestVote_InvalidChoice(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	q := testutil.CreateQuestion(t, db, "Vote?", -1)
	c := testutil.AddChoice(t, db, q, "Only")
	other := testutil.CreateQuestion(t, db, "Other", -1)
	foreign := testutil.AddChoice(t, db, other, "Foreign")

	forms := map[string]url.Values{
		"missing":        {},
		"empty":          {"choice": {""}},
		"not a number":   {"choice": {"abc"}},
		"unknown":        {"choice": {"999"}},
		"other question": {"choice": {fmt.Sprint(foreign.ID)}},
	}
	for name, form := range forms {
		t.Run(name, func(t *testing.T) {
			w := postVote(router, q.ID, form)

			testutil.AssertStatus(t, w, http.StatusOK)
			assert.Contains(t, w.Body.String(), escapedChoiceRequired)
			assert.Contains(t, w.Body.String(), "Vote?")
			assert.Contains(t, w.Body.String(), "Only")
		})
	}

	assert.Equal(t, int64(0), testutil.Votes(t, db, c.ID))
	assert.Equal(t, int64(0), testutil.Votes(t, db, foreign.ID))
}

func TestVote_UnknownOrFutureQuestion(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	future := testutil.CreateQuestion(t, db, "Future", 3)
	c := testutil.AddChoice(t, db, future, "A")

	testutil.AssertStatus(t, postVote(router, future.ID, url.Values{"choice": {fmt.Sprint(c.ID)}}), http.StatusNotFound)
	testutil.AssertStatus(t, postVote(router, 4242, url.Values{"choice": {fmt.Sprint(c.ID)}}), http.StatusNotFound)
	assert.Equal(t, int64(0), testutil.Votes(t, db, c.ID))
}

func TestVote_ConcurrentVotesAreNotLost(t *testing.T) {
	router, db := SetupTestEnvironment(t)
	q := testutil.CreateQuestion(t, db, "Race?", -1)
	c := testutil.AddChoice(t, db, q, "A")

	const voters = 40
	var wg sync.WaitGroup
	codes := make(chan int, voters)
	for i := 0; i < voters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			codes <- postVote(router, q.ID, url.Values{"choice": {fmt.Sprint(c.ID)}}).Code
		}()
	}
	wg.Wait()
	close(codes)

	for code := range codes {
		assert.Equal(t, http.StatusFound, code)
	}
	assert.Equal(t, int64(voters), testutil.Votes(t, db, c.ID))
}
