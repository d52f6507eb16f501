package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	appkafka "example.com/engagefeed/internal/broker"
	"example.com/engagefeed/internal/engagement"
	"example.com/engagefeed/internal/middleware"
	"example.com/engagefeed/internal/models"
	"example.com/engagefeed/internal/store"
)

//
// --- Helpers ---
//

type testEnv struct {
	ts    *httptest.Server
	store *store.MemoryStore
	auth  *middleware.Authenticator
}

// create HTTP request with optional JWT token and check the status
func sendJSONRequest(t *testing.T, method, url string, body any, token string, expectedStatus int) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("json.Marshal failed: %v", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("NewRequest failed: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}

	if resp.StatusCode != expectedStatus {
		b, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("%s %s: expected %d, got %d: %s", method, url, expectedStatus, resp.StatusCode, string(b))
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	return v
}

//
// --- Setup test server ---
//

func setupTestServer(t *testing.T, notifier engagement.Notifier) *testEnv {
	t.Helper()
	st := store.NewMemory()
	auth := middleware.NewAuthenticator("test-secret", time.Hour)
	s := New(engagement.New(st, notifier), auth)

	ts := httptest.NewServer(s.Routes(nil))
	t.Cleanup(ts.Close)
	return &testEnv{ts: ts, store: st, auth: auth}
}

// register creates an account over HTTP and returns its id and token.
func (e *testEnv) register(t *testing.T, name string) (string, string) {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/users",
		map[string]string{"username": name, "password": "password-" + name}, "", http.StatusCreated)
	res := decodeBody[map[string]string](t, resp)
	if res["user_id"] == "" || res["token"] == "" {
		t.Fatalf("expected user_id and token, got %+v", res)
	}
	return res["user_id"], res["token"]
}

func (e *testEnv) createPost(t *testing.T, token, title string) models.Post {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodPost, e.ts.URL+"/posts",
		map[string]string{"title": title, "body": "body of " + title}, token, http.StatusCreated)
	return decodeBody[models.Post](t, resp)
}

func (e *testEnv) feed(t *testing.T, token, query string) engagement.FeedResult {
	t.Helper()
	resp := sendJSONRequest(t, http.MethodGet, e.ts.URL+"/feed"+query, nil, token, http.StatusOK)
	return decodeBody[engagement.FeedResult](t, resp)
}

func expectOutcome(t *testing.T, resp *http.Response, want engagement.Outcome) {
	t.Helper()
	res := decodeBody[map[string]string](t, resp)
	if res["outcome"] != string(want) {
		t.Fatalf("expected outcome %q, got %+v", want, res)
	}
	if res["detail"] == "" {
		t.Fatalf("expected a detail message, got %+v", res)
	}
}

//
// --- Tests ---
//

func TestHealth(t *testing.T) {
	env := setupTestServer(t, nil)
	resp := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/health", nil, "", http.StatusOK)
	if res := decodeBody[map[string]string](t, resp); res["status"] != "healthy" {
		t.Fatalf("unexpected health body: %+v", res)
	}
}

func TestRegisterAndLogin(t *testing.T) {
	env := setupTestServer(t, nil)
	id, _ := env.register(t, "almaz")

	resp := sendJSONRequest(t, http.MethodPost, env.ts.URL+"/login",
		map[string]string{"username": "almaz", "password": "password-almaz"}, "", http.StatusOK)
	res := decodeBody[map[string]string](t, resp)
	if res["user_id"] != id {
		t.Fatalf("login returned user_id %q, want %q", res["user_id"], id)
	}
	got, err := env.auth.ParseToken(res["token"])
	if err != nil || got != id {
		t.Fatalf("login token invalid: %v (%q)", err, got)
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/login",
		map[string]string{"username": "almaz", "password": "wrong-password"}, "", http.StatusUnauthorized).Body.Close()
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/users",
		map[string]string{"username": "almaz", "password": "another-one"}, "", http.StatusConflict).Body.Close()
}

// invalid JSON for creating user
func TestCreateUser_InvalidJSON(t *testing.T) {
	env := setupTestServer(t, nil)

	resp, err := http.Post(env.ts.URL+"/users", "application/json", bytes.NewBufferString(`{"username":123}`))
	if err != nil {
		t.Fatalf("http.Post failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// full flow: follow -> post -> feed
func TestFollowAndFeedFlow(t *testing.T) {
	env := setupTestServer(t, nil)
	almazID, almazToken := env.register(t, "almaz")
	nurID, nurToken := env.register(t, "nur")

	resp := sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/"+nurID, nil, almazToken, http.StatusOK)
	expectOutcome(t, resp, engagement.OutcomeFollowed)
	resp = sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/"+nurID, nil, almazToken, http.StatusConflict)
	expectOutcome(t, resp, engagement.OutcomeAlreadyFollowing)

	post := env.createPost(t, nurToken, "Hello from Nur!")

	feed := env.feed(t, almazToken, "")
	if len(feed.Posts) != 1 || feed.Posts[0].ID != post.ID {
		t.Fatalf("expected post in feed, got %+v", feed.Posts)
	}
	if len(env.feed(t, nurToken, "").Posts) != 0 {
		t.Fatalf("follows must not be symmetric")
	}

	resp = sendJSONRequest(t, http.MethodPost, env.ts.URL+"/unfollow/"+nurID, nil, almazToken, http.StatusOK)
	expectOutcome(t, resp, engagement.OutcomeUnfollowed)
	if len(env.feed(t, almazToken, "").Posts) != 0 {
		t.Fatalf("unfollow must take effect on the next read")
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/"+almazID, nil, almazToken, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/missing", nil, almazToken, http.StatusNotFound).Body.Close()
}

func TestUserProfileAndGraph(t *testing.T) {
	env := setupTestServer(t, nil)
	almazID, almazToken := env.register(t, "almaz")
	nurID, _ := env.register(t, "nur")

	resp := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/"+nurID, nil, "", http.StatusOK)
	profile := decodeBody[map[string]any](t, resp)
	if profile["id"] != nurID || profile["username"] != "nur" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
	if _, leaked := profile["password_hash"]; leaked {
		t.Fatalf("profile must not expose the password hash: %+v", profile)
	}

	resp = sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/"+nurID+"/followers", nil, "", http.StatusOK)
	if res := decodeBody[map[string][]string](t, resp); res["results"] == nil || len(res["results"]) != 0 {
		t.Fatalf("expected an empty follower list, got %+v", res)
	}

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/"+nurID, nil, almazToken, http.StatusOK).Body.Close()

	resp = sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/"+nurID+"/followers", nil, "", http.StatusOK)
	if res := decodeBody[map[string][]string](t, resp); len(res["results"]) != 1 || res["results"][0] != almazID {
		t.Fatalf("expected almaz as follower, got %+v", res)
	}
	resp = sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/"+almazID+"/following", nil, almazToken, http.StatusOK)
	if res := decodeBody[map[string][]string](t, resp); len(res["results"]) != 1 || res["results"][0] != nurID {
		t.Fatalf("expected almaz to follow nur, got %+v", res)
	}

	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/missing", nil, "", http.StatusNotFound).Body.Close()
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/users/missing/following", nil, "", http.StatusNotFound).Body.Close()
}

func TestFeed_Pagination(t *testing.T) {
	env := setupTestServer(t, nil)
	_, readerToken := env.register(t, "reader")
	authorID, authorToken := env.register(t, "author")
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/follow/"+authorID, nil, readerToken, http.StatusOK).Body.Close()

	for _, title := range []string{"one", "two", "three"} {
		env.createPost(t, authorToken, title)
	}

	first := env.feed(t, readerToken, "?limit=2")
	if len(first.Posts) != 2 || first.Next == "" {
		t.Fatalf("expected a full first page with a cursor, got %+v", first)
	}
	second := env.feed(t, readerToken, "?limit=2&before="+url.QueryEscape(first.Next))
	if len(second.Posts) != 1 || second.Next != "" {
		t.Fatalf("expected a final page of one, got %+v", second)
	}
	for _, p := range first.Posts {
		if p.ID == second.Posts[0].ID {
			t.Fatalf("post %s repeated across pages", p.ID)
		}
	}

	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed?limit=abc", nil, readerToken, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed?before=%21%21", nil, readerToken, http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/feed", nil, "", http.StatusUnauthorized).Body.Close()
}

func TestLikeOutcomes(t *testing.T) {
	env := setupTestServer(t, nil)
	bobID, bobToken := env.register(t, "bob")
	_, aliceToken := env.register(t, "alice")
	post := env.createPost(t, bobToken, "P1")
	likeURL := env.ts.URL + "/posts/" + post.ID + "/like"
	unlikeURL := env.ts.URL + "/posts/" + post.ID + "/unlike"

	expectOutcome(t, sendJSONRequest(t, http.MethodPost, likeURL, nil, aliceToken, http.StatusOK), engagement.OutcomeLiked)
	expectOutcome(t, sendJSONRequest(t, http.MethodPost, likeURL, nil, aliceToken, http.StatusConflict), engagement.OutcomeAlreadyLiked)

	resp := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts/"+post.ID, nil, "", http.StatusOK)
	if view := decodeBody[postView](t, resp); view.Likes != 1 {
		t.Fatalf("expected 1 like, got %d", view.Likes)
	}

	expectOutcome(t, sendJSONRequest(t, http.MethodPost, unlikeURL, nil, aliceToken, http.StatusOK), engagement.OutcomeUnliked)
	expectOutcome(t, sendJSONRequest(t, http.MethodPost, unlikeURL, nil, aliceToken, http.StatusConflict), engagement.OutcomeNotLiked)

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/missing/like", nil, aliceToken, http.StatusNotFound).Body.Close()
	sendJSONRequest(t, http.MethodPost, likeURL, nil, "", http.StatusUnauthorized).Body.Close()

	// exactly one "liked your post" notification despite the duplicate like
	list, err := env.store.NotificationsFor(context.Background(), bobID, false)
	if err != nil {
		t.Fatalf("NotificationsFor failed: %v", err)
	}
	if len(list) != 1 || list[0].Verb != models.VerbLikedPost {
		t.Fatalf("expected one like notification, got %+v", list)
	}
}

func TestLike_StoreFailure(t *testing.T) {
	env := setupTestServer(t, nil)
	_, bobToken := env.register(t, "bob")
	post := env.createPost(t, bobToken, "P1")

	env.store.SetFail(true)
	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/"+post.ID+"/like", nil, bobToken, http.StatusInternalServerError).Body.Close()
}

func TestPostAuthorization(t *testing.T) {
	env := setupTestServer(t, nil)
	_, bobToken := env.register(t, "bob")
	_, daveToken := env.register(t, "dave")
	post := env.createPost(t, bobToken, "original")
	postURL := env.ts.URL + "/posts/" + post.ID

	edit := map[string]string{"title": "hijacked", "body": "x"}
	sendJSONRequest(t, http.MethodPut, postURL, edit, daveToken, http.StatusForbidden).Body.Close()
	sendJSONRequest(t, http.MethodDelete, postURL, nil, daveToken, http.StatusForbidden).Body.Close()
	sendJSONRequest(t, http.MethodPut, postURL, edit, "", http.StatusUnauthorized).Body.Close()

	resp := sendJSONRequest(t, http.MethodGet, postURL, nil, daveToken, http.StatusOK)
	if got := decodeBody[postView](t, resp); got.Title != "original" {
		t.Fatalf("post changed after refused write: %+v", got)
	}

	edit["title"] = "edited"
	resp = sendJSONRequest(t, http.MethodPut, postURL, edit, bobToken, http.StatusOK)
	if got := decodeBody[models.Post](t, resp); got.Title != "edited" {
		t.Fatalf("expected edited title, got %+v", got)
	}
	sendJSONRequest(t, http.MethodDelete, postURL, nil, bobToken, http.StatusNoContent).Body.Close()
	sendJSONRequest(t, http.MethodGet, postURL, nil, "", http.StatusNotFound).Body.Close()
}

func TestCommentsFlow(t *testing.T) {
	env := setupTestServer(t, nil)
	_, bobToken := env.register(t, "bob")
	_, daveToken := env.register(t, "dave")
	post := env.createPost(t, bobToken, "post")
	commentsURL := env.ts.URL + "/posts/" + post.ID + "/comments"

	resp := sendJSONRequest(t, http.MethodPost, commentsURL, map[string]string{"body": "first!"}, daveToken, http.StatusCreated)
	c := decodeBody[models.Comment](t, resp)

	resp = sendJSONRequest(t, http.MethodGet, commentsURL, nil, "", http.StatusOK)
	if list := decodeBody[map[string][]models.Comment](t, resp)["results"]; len(list) != 1 || list[0].ID != c.ID {
		t.Fatalf("unexpected comments: %+v", list)
	}

	commentURL := env.ts.URL + "/comments/" + c.ID
	sendJSONRequest(t, http.MethodPut, commentURL, map[string]string{"body": "nope"}, bobToken, http.StatusForbidden).Body.Close()
	sendJSONRequest(t, http.MethodPut, commentURL, map[string]string{"body": "edited"}, daveToken, http.StatusOK).Body.Close()

	// deleting the post cascades to its comments
	sendJSONRequest(t, http.MethodDelete, env.ts.URL+"/posts/"+post.ID, nil, bobToken, http.StatusNoContent).Body.Close()
	sendJSONRequest(t, http.MethodGet, commentURL, nil, "", http.StatusNotFound).Body.Close()
}

func TestListPosts_Query(t *testing.T) {
	env := setupTestServer(t, nil)
	bobID, bobToken := env.register(t, "bob")
	_, daveToken := env.register(t, "dave")
	env.createPost(t, bobToken, "golang tips")
	env.createPost(t, daveToken, "cooking")

	resp := sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts?author="+bobID, nil, "", http.StatusOK)
	if list := decodeBody[map[string][]models.Post](t, resp)["results"]; len(list) != 1 || list[0].AuthorID != bobID {
		t.Fatalf("author filter returned %+v", list)
	}

	resp = sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts?search=cook", nil, "", http.StatusOK)
	if list := decodeBody[map[string][]models.Post](t, resp)["results"]; len(list) != 1 || list[0].Title != "cooking" {
		t.Fatalf("search returned %+v", list)
	}

	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts?password=x", nil, "", http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts?ordering=body", nil, "", http.StatusBadRequest).Body.Close()
	sendJSONRequest(t, http.MethodGet, env.ts.URL+"/posts", nil, "garbage", http.StatusUnauthorized).Body.Close()
}

func TestNotificationsViaKafka(t *testing.T) {
	st := store.NewMemory()
	mockKafka := &appkafka.MockKafka{Store: st}
	auth := middleware.NewAuthenticator("test-secret", time.Hour)
	s := New(engagement.New(st, appkafka.NewKafkaNotifier(mockKafka)), auth)
	ts := httptest.NewServer(s.Routes([]string{"*"}))
	defer ts.Close()
	env := &testEnv{ts: ts, store: st, auth: auth}

	bobID, bobToken := env.register(t, "bob")
	_, aliceToken := env.register(t, "alice")
	post := env.createPost(t, bobToken, "P1")
	sendJSONRequest(t, http.MethodPost, ts.URL+"/posts/"+post.ID+"/like", nil, aliceToken, http.StatusOK).Body.Close()

	if len(mockKafka.Written()) != 1 {
		t.Fatalf("expected one notification event, got %d", len(mockKafka.Written()))
	}

	resp := sendJSONRequest(t, http.MethodGet, ts.URL+"/notifications?unread=true", nil, bobToken, http.StatusOK)
	list := decodeBody[map[string][]models.Notification](t, resp)["results"]
	if len(list) != 1 || list[0].RecipientID != bobID {
		t.Fatalf("expected one notification for bob, got %+v", list)
	}

	readURL := ts.URL + "/notifications/" + list[0].ID + "/read"
	sendJSONRequest(t, http.MethodPost, readURL, nil, aliceToken, http.StatusForbidden).Body.Close()
	resp = sendJSONRequest(t, http.MethodPost, readURL, nil, bobToken, http.StatusOK)
	if n := decodeBody[models.Notification](t, resp); !n.Read {
		t.Fatalf("expected notification marked read")
	}

	resp = sendJSONRequest(t, http.MethodGet, ts.URL+"/notifications?unread=true", nil, bobToken, http.StatusOK)
	if list := decodeBody[map[string][]models.Notification](t, resp)["results"]; len(list) != 0 {
		t.Fatalf("expected no unread notifications, got %+v", list)
	}
}

// a broker outage must not undo the like
func TestKafkaWriteError(t *testing.T) {
	env := setupTestServer(t, appkafka.NewKafkaNotifier(&appkafka.MockKafkaFail{}))
	_, bobToken := env.register(t, "bob")
	aliceID, aliceToken := env.register(t, "alice")
	post := env.createPost(t, bobToken, "P1")

	sendJSONRequest(t, http.MethodPost, env.ts.URL+"/posts/"+post.ID+"/like", nil, aliceToken, http.StatusOK).Body.Close()

	liked, err := env.store.HasLiked(context.Background(), aliceID, post.ID)
	if err != nil || !liked {
		t.Fatalf("expected like to persist, got liked=%v err=%v", liked, err)
	}
	if env.store.NotificationCount() != 0 {
		t.Fatalf("expected no stored notification")
	}
}
