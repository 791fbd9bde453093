package gateway

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

type recordingDoer struct {
	calls atomic.Int32
	last  *http.Request
	body  string
	resp  func(*http.Request) (*http.Response, error)
}

func (d *recordingDoer) Do(req *http.Request) (*http.Response, error) {
	d.calls.Add(1)
	d.last = req
	if req.Body != nil {
		b, _ := io.ReadAll(req.Body)
		d.body = string(b)
	}
	if d.resp != nil {
		return d.resp(req)
	}
	return jsonResponse(http.StatusOK, `{}`), nil
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var getPetByID = Operation{
	ID:     "getPetById",
	Method: http.MethodGet,
	Path:   "/pet/{petId}",
	Params: []Param{{Name: "petId", In: InPath, Required: true}},
}

func TestCall_SubstitutesPathPlaceholder(t *testing.T) {
	t.Parallel()
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"id":42,"name":"Rex"}`)
	}))
	defer srv.Close()

	gw := New(Config{URL: srv.URL})
	var pet struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	}
	err := gw.Call(context.Background(), getPetByID, Params{"petId": 42}, &pet)
	require.NoError(t, err)
	assert.Equal(t, "/pet/42", gotPath)
	assert.Equal(t, int64(42), pet.ID)
	assert.Equal(t, "Rex", pet.Name)
}

func TestCall_PercentEncodesTextualPathValues(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test/v1/", Transport: doer})
	err := gw.Call(context.Background(), getPetByID, Params{"petId": "a b/c"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "/v1/pet/a%20b%2Fc", doer.last.URL.EscapedPath())
}

func TestCall_AuthorizationFailureSkipsTransport(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	boom := errors.New("token store unavailable")
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			return nil, boom
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{{{Scheme: BearerScheme{ID: "oauth"}, Scopes: []string{"read"}}}}

	err := gw.Call(context.Background(), op, Params{"petId": 1}, nil)
	require.Error(t, err)
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "oauth", authErr.SchemeID)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, ErrAuthorization)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestCall_NoResolverConfigured(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	op := getPetByID
	op.Security = []SecurityAlternative{{{Scheme: APIKeyScheme{ID: "api_key", In: APIKeyInHeader, Name: "X-API-Key"}}}}

	err := gw.Call(context.Background(), op, Params{"petId": 1}, nil)
	require.ErrorIs(t, err, ErrNoAuthorizer)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestCall_AppliesCredentialsPerScheme(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		scheme SecurityScheme
		cred   Credential
		check  func(t *testing.T, req *http.Request)
	}{
		{
			name:   "bearer",
			scheme: BearerScheme{ID: "jwt"},
			cred:   Token("abc"),
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "Bearer abc", req.Header.Get("Authorization"))
			},
		},
		{
			name:   "api key header",
			scheme: APIKeyScheme{ID: "key", In: APIKeyInHeader, Name: "X-API-Key"},
			cred:   Token("k1"),
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "k1", req.Header.Get("X-API-Key"))
			},
		},
		{
			name:   "api key query",
			scheme: APIKeyScheme{ID: "key", In: APIKeyInQuery, Name: "api_key"},
			cred:   Token("k2"),
			check: func(t *testing.T, req *http.Request) {
				assert.Equal(t, "k2", req.URL.Query().Get("api_key"))
			},
		},
		{
			name:   "basic",
			scheme: BasicScheme{ID: "basic"},
			cred:   BasicCredential{Username: "user", Password: "pass"},
			check: func(t *testing.T, req *http.Request) {
				u, p, ok := req.BasicAuth()
				require.True(t, ok)
				assert.Equal(t, "user", u)
				assert.Equal(t, "pass", p)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &recordingDoer{}
			var seen Security
			gw := New(Config{
				URL:       "http://api.test",
				Transport: doer,
				GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
					seen = sec
					return tt.cred, nil
				},
			})
			op := getPetByID
			op.Security = []SecurityAlternative{{{Scheme: tt.scheme, Scopes: []string{"a"}}}}
			require.NoError(t, gw.Call(context.Background(), op, Params{"petId": 7}, nil))
			assert.Equal(t, tt.scheme.SchemeID(), seen.ID)
			assert.Equal(t, []string{"a"}, seen.Scopes)
			tt.check(t, doer.last)
		})
	}
}

func TestCall_FallsBackToNextAlternative(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	var asked []string
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			asked = append(asked, sec.ID)
			if sec.ID == "oauth" {
				return nil, errors.New("no token")
			}
			return Token("k1"), nil
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{
		{{Scheme: BearerScheme{ID: "oauth"}}},
		{{Scheme: APIKeyScheme{ID: "api_key", In: APIKeyInHeader, Name: "X-API-Key"}}},
	}
	require.NoError(t, gw.Call(context.Background(), op, Params{"petId": 1}, nil))
	assert.Equal(t, []string{"oauth", "api_key"}, asked)
	assert.Equal(t, "k1", doer.last.Header.Get("X-API-Key"))
	assert.Empty(t, doer.last.Header.Get("Authorization"))
}

func TestCall_AlternativeAppliesEveryRequirement(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			return Token(sec.ID + "-cred"), nil
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{{
		{Scheme: BearerScheme{ID: "jwt"}},
		{Scheme: APIKeyScheme{ID: "tenant", In: APIKeyInQuery, Name: "tenant"}},
	}}
	require.NoError(t, gw.Call(context.Background(), op, Params{"petId": 1}, nil))
	assert.Equal(t, "Bearer jwt-cred", doer.last.Header.Get("Authorization"))
	assert.Equal(t, "tenant-cred", doer.last.URL.Query().Get("tenant"))
}

func TestCall_AnonymousAlternative(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		resolve AuthorizationFunc
	}{
		{name: "no resolver"},
		{name: "resolver fails", resolve: func(ctx context.Context, sec Security) (Credential, error) {
			return nil, errors.New("signed out")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &recordingDoer{}
			gw := New(Config{URL: "http://api.test", Transport: doer, GetAuthorization: tt.resolve})
			op := getPetByID
			op.Security = []SecurityAlternative{
				{{Scheme: BearerScheme{ID: "jwt"}}},
				{},
			}
			require.NoError(t, gw.Call(context.Background(), op, Params{"petId": 1}, nil))
			assert.Equal(t, int32(1), doer.calls.Load())
			assert.Empty(t, doer.last.Header.Get("Authorization"))
		})
	}
}

func TestCall_AllAlternativesFailReportsFirst(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			return nil, errors.New(sec.ID + " unavailable")
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{
		{{Scheme: BearerScheme{ID: "oauth"}}},
		{{Scheme: BasicScheme{ID: "basic"}}},
	}
	err := gw.Call(context.Background(), op, Params{"petId": 1}, nil)
	var authErr *AuthorizationError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, "oauth", authErr.SchemeID)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestCall_HeaderParamDoesNotReplaceCredential(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			return Token("secret"), nil
		},
	})
	op := Operation{
		ID:     "whoami",
		Method: http.MethodGet,
		Path:   "/me",
		Params: []Param{
			{Name: "authorization", In: InHeader},
			{Name: "api_key", In: InQuery},
		},
		Security: []SecurityAlternative{{
			{Scheme: BearerScheme{ID: "jwt"}},
			{Scheme: APIKeyScheme{ID: "key", In: APIKeyInQuery, Name: "api_key"}},
		}},
	}
	params := Params{"authorization": "Bearer forged", "api_key": "forged"}
	require.NoError(t, gw.Call(context.Background(), op, params, nil))
	assert.Equal(t, []string{"Bearer secret"}, doer.last.Header.Values("Authorization"))
	assert.Equal(t, []string{"secret"}, doer.last.URL.Query()["api_key"])
}

func TestCall_EmptyHeaderValueIsOmitted(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	op := Operation{
		ID:     "listPets",
		Method: http.MethodGet,
		Path:   "/pets",
		Params: []Param{{Name: "X-Trace", In: InHeader}, {Name: "X-Tags", In: InHeader}},
	}
	var none []string
	require.NoError(t, gw.Call(context.Background(), op, Params{"X-Trace": none, "X-Tags": []string{}}, nil))
	_, traced := doer.last.Header["X-Trace"]
	assert.False(t, traced)
	_, tagged := doer.last.Header["X-Tags"]
	assert.False(t, tagged)
}

func TestCall_CredentialShapeMismatch(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			return Token("not-a-pair"), nil
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{{{Scheme: BasicScheme{ID: "basic"}}}}
	err := gw.Call(context.Background(), op, Params{"petId": 7}, nil)
	require.ErrorIs(t, err, ErrAuthorization)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestCall_NonSuccessStatus(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{resp: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusNotFound, `{"message":"pet not found"}`), nil
	}}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	err := gw.Call(context.Background(), getPetByID, Params{"petId": 9}, nil)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, http.StatusNotFound, reqErr.Status)
	assert.Equal(t, map[string]any{"message": "pet not found"}, reqErr.Body)
	assert.ErrorIs(t, err, ErrRequest)
}

func TestCall_TextErrorBody(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{resp: func(*http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: http.StatusBadGateway,
			Header:     http.Header{"Content-Type": []string{"text/plain"}},
			Body:       io.NopCloser(strings.NewReader("upstream down")),
		}, nil
	}}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	err := gw.Call(context.Background(), getPetByID, Params{"petId": 9}, nil)
	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, "upstream down", reqErr.Body)
}

func TestCall_TransportFault(t *testing.T) {
	t.Parallel()
	refused := errors.New("connection refused")
	doer := &recordingDoer{resp: func(*http.Request) (*http.Response, error) {
		return nil, refused
	}}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	err := gw.Call(context.Background(), getPetByID, Params{"petId": 9}, nil)

	var trErr *TransportError
	require.ErrorAs(t, err, &trErr)
	assert.ErrorIs(t, err, refused)
	assert.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(1), doer.calls.Load())
}

func TestCall_MissingRequiredParameter(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	op := Operation{
		ID:     "findPets",
		Method: http.MethodGet,
		Path:   "/pets",
		Params: []Param{{Name: "status", In: InQuery, Required: true}},
	}
	var nilStatus *string
	err := gw.Call(context.Background(), op, Params{"status": nilStatus}, nil)

	var reqErr *RequestError
	require.ErrorAs(t, err, &reqErr)
	assert.Equal(t, 0, reqErr.Status)
	assert.ErrorIs(t, err, ErrMissingParameter)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestCall_QueryHeaderAndJSONBody(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test", Transport: doer, UserAgent: "petstore-client"})
	op := Operation{
		ID:     "addPet",
		Method: "post",
		Path:   "/pets",
		Params: []Param{
			{Name: "tags", In: InQuery},
			{Name: "limit", In: InQuery},
			{Name: "X-Request-ID", In: InHeader},
		},
		Body: &Body{Name: "body", ContentType: "application/json", Required: true},
	}
	limit := int32(5)
	params := Params{
		"tags":         []string{"a", "b"},
		"limit":        &limit,
		"X-Request-ID": "req-1",
		"body":         map[string]any{"name": "Rex"},
	}
	require.NoError(t, gw.Call(context.Background(), op, params, nil))

	req := doer.last
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, []string{"a", "b"}, req.URL.Query()["tags"])
	assert.Equal(t, "5", req.URL.Query().Get("limit"))
	assert.Equal(t, "req-1", req.Header.Get("X-Request-ID"))
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.Equal(t, "petstore-client", req.Header.Get("User-Agent"))
	assert.JSONEq(t, `{"name":"Rex"}`, doer.body)
}

func TestCall_FormBody(t *testing.T) {
	t.Parallel()
	doer := &recordingDoer{}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	op := Operation{
		ID:     "updatePetWithForm",
		Method: http.MethodPost,
		Path:   "/pet/{petId}",
		Params: []Param{{Name: "petId", In: InPath, Required: true}},
		Body:   &Body{Name: "body", ContentType: "application/x-www-form-urlencoded"},
	}
	body := struct {
		Name   string  `json:"name"`
		Status *string `json:"status,omitempty"`
	}{Name: "Rex"}
	require.NoError(t, gw.Call(context.Background(), op, Params{"petId": int64(3), "body": body}, nil))
	assert.Equal(t, "name=Rex", doer.body)
	assert.Equal(t, "application/x-www-form-urlencoded", doer.last.Header.Get("Content-Type"))
}

func TestCallWithDispatch_EmitsStartThenOneTerminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		status    int
		wantPhase Phase
	}{
		{name: "success", status: http.StatusOK, wantPhase: PhaseSuccess},
		{name: "error", status: http.StatusInternalServerError, wantPhase: PhaseError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doer := &recordingDoer{resp: func(*http.Request) (*http.Response, error) {
				return jsonResponse(tt.status, `{"id":1}`), nil
			}}
			gw := New(Config{URL: "http://api.test", Transport: doer})

			var actions []Action
			thunk := Invoke[map[string]any](gw, getPetByID, Params{"petId": 1})
			_, _ = thunk(context.Background(), func(a Action) { actions = append(actions, a) })

			require.Len(t, actions, 2)
			assert.Equal(t, PhaseStart, actions[0].Phase)
			assert.Equal(t, "GET_PET_BY_ID_START", actions[0].Type)
			assert.Equal(t, tt.wantPhase, actions[1].Phase)
			assert.Equal(t, ActionType("getPetById", tt.wantPhase), actions[1].Type)
			assert.Equal(t, "getPetById", actions[1].OperationID)
			if tt.wantPhase == PhaseSuccess {
				assert.Equal(t, map[string]any{"id": float64(1)}, actions[1].Payload)
				assert.NoError(t, actions[1].Err)
			} else {
				assert.Error(t, actions[1].Err)
			}
		})
	}
}

func TestCall_ConfiguredDispatchOnAuthorizationFailure(t *testing.T) {
	t.Parallel()
	var actions []Action
	doer := &recordingDoer{}
	gw := New(Config{
		URL:       "http://api.test",
		Transport: doer,
		Dispatch:  func(a Action) { actions = append(actions, a) },
	})
	op := getPetByID
	op.Security = []SecurityAlternative{{{Scheme: BearerScheme{ID: "jwt"}}}}

	err := gw.Call(context.Background(), op, Params{"petId": 1}, nil)
	require.ErrorIs(t, err, ErrAuthorization)
	require.Len(t, actions, 2)
	assert.Equal(t, PhaseStart, actions[0].Phase)
	assert.Equal(t, PhaseError, actions[1].Phase)
	assert.Equal(t, int32(0), doer.calls.Load())
}

func TestInit_InFlightCallKeepsSnapshot(t *testing.T) {
	t.Parallel()
	first := &recordingDoer{}
	second := &recordingDoer{}
	gw := New(Config{})
	gw.Init(Config{
		URL:       "http://first.test",
		Transport: first,
		GetAuthorization: func(ctx context.Context, sec Security) (Credential, error) {
			// replace the configuration while this call is authorizing
			gw.Init(Config{URL: "http://second.test", Transport: second})
			return Token("t"), nil
		},
	})
	op := getPetByID
	op.Security = []SecurityAlternative{{{Scheme: BearerScheme{ID: "jwt"}}}}

	require.NoError(t, gw.Call(context.Background(), op, Params{"petId": 1}, nil))
	assert.Equal(t, int32(1), first.calls.Load())
	assert.Equal(t, int32(0), second.calls.Load())
	assert.Equal(t, "first.test", first.last.URL.Host)

	// the replacement fully determines later calls, nothing is merged
	cfg := gw.Config()
	assert.Equal(t, "http://second.test", cfg.URL)
	assert.Nil(t, cfg.GetAuthorization)
	err := gw.Call(context.Background(), op, Params{"petId": 1}, nil)
	assert.ErrorIs(t, err, ErrNoAuthorizer)
}

func TestDo_DecodesTypedResult(t *testing.T) {
	t.Parallel()
	type pet struct {
		ID int64 `json:"id"`
	}
	doer := &recordingDoer{resp: func(*http.Request) (*http.Response, error) {
		return jsonResponse(http.StatusOK, `{"id":5}`), nil
	}}
	gw := New(Config{URL: "http://api.test", Transport: doer})
	got, err := Do[*pet](context.Background(), gw, getPetByID, Params{"petId": 5})
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(5), got.ID)

	_, err = Do[NoContent](context.Background(), gw, getPetByID, Params{"petId": 5})
	assert.NoError(t, err)
}

func TestRateLimited_WaitFailureIsTransportError(t *testing.T) {
	t.Parallel()
	next := &recordingDoer{}
	limiter := rate.NewLimiter(rate.Limit(1), 1)
	gw := New(Config{URL: "http://api.test", Transport: RateLimited(next, limiter)})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := gw.Call(ctx, getPetByID, Params{"petId": 1}, nil)
	require.ErrorIs(t, err, ErrTransport)
	assert.Equal(t, int32(0), next.calls.Load())

	require.NoError(t, gw.Call(context.Background(), getPetByID, Params{"petId": 1}, nil))
	assert.Equal(t, int32(1), next.calls.Load())
}

func TestActionType(t *testing.T) {
	t.Parallel()
	tests := map[string]string{
		"getPetById":      "GET_PET_BY_ID",
		"find-pets":       "FIND_PETS",
		"HTTPStatusCheck": "HTTP_STATUS_CHECK",
		"v2Users":         "V2_USERS",
		"list_orders":     "LIST_ORDERS",
	}
	for in, want := range tests {
		assert.Equal(t, want, ActionPrefix(in), in)
	}
	assert.Equal(t, "FIND_PETS_ERROR", ActionType("findPets", PhaseError))
}

func TestParsePath(t *testing.T) {
	t.Parallel()
	segs := ParsePath("/store/{storeId}/order/{orderId}.json")
	require.Len(t, segs, 5)
	assert.Equal(t, "/store/", segs[0].Literal)
	assert.Equal(t, "storeId", segs[1].Param)
	assert.Equal(t, "/order/", segs[2].Literal)
	assert.Equal(t, "orderId", segs[3].Param)
	assert.Equal(t, ".json", segs[4].Literal)
}
