package membership

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lendnexus/internal/domain"
	"lendnexus/internal/httpx"
	"lendnexus/internal/store"
	"lendnexus/internal/store/memory"
)

func fixedNow() time.Time {
	return time.Date(2024, 2, 14, 16, 30, 0, 0, time.UTC)
}

func newService(opts ...Option) (Service, *memory.Store) {
	st := memory.New()
	return NewService(st, append([]Option{WithNow(fixedNow)}, opts...)...), st
}

func TestRegisterCustomer(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	c, err := svc.RegisterCustomer(ctx, RegisterRequest{
		Firstname: " Ada ", Lastname: "Lovelace", Email: "ada@example.org", City: "London",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ada", c.Firstname)
	assert.Equal(t, int64(1), c.DisplayID)
	assert.Equal(t, time.Date(2024, 2, 14, 0, 0, 0, 0, time.UTC), c.RegisteredOn)

	only, err := svc.RegisterCustomer(ctx, RegisterRequest{Lastname: "Turing"})
	require.NoError(t, err)
	assert.Equal(t, "Turing", only.Name())
}

func TestRegisterCustomer_Validation(t *testing.T) {
	svc, st := newService()
	ctx := context.Background()

	_, err := svc.RegisterCustomer(ctx, RegisterRequest{Firstname: "  "})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	_, err = svc.RegisterCustomer(ctx, RegisterRequest{Firstname: "Bob", Email: "not-an-email"})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	page, err := st.ListCustomers(ctx, store.All())
	require.NoError(t, err)
	assert.Zero(t, page.Total)
}

func TestRegisterCustomer_RateLimited(t *testing.T) {
	svc, _ := newService(WithRegistrationLimit(2))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.RegisterCustomer(ctx, RegisterRequest{Firstname: "Guest"})
		require.NoError(t, err)
	}
	_, err := svc.RegisterCustomer(ctx, RegisterRequest{Firstname: "Guest"})
	assert.ErrorIs(t, err, httpx.ErrRateLimited)
}

func TestEditAndRenew(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	c, err := svc.RegisterCustomer(ctx, RegisterRequest{Firstname: "Ada", Lastname: "Lovelace"})
	require.NoError(t, err)

	color := "purple"
	empty := ""
	edited, err := svc.EditCustomer(ctx, c.ID, EditRequest{HighlightColor: &color, Lastname: &empty})
	require.NoError(t, err)
	assert.Equal(t, "Ada", edited.Name())
	assert.Equal(t, 2, edited.Version)

	_, err = svc.EditCustomer(ctx, c.ID, EditRequest{Firstname: &empty})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "a customer keeps at least one name")

	renewed, err := svc.RenewMembership(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, renewed.RenewedOn)
	assert.Equal(t, "2024-02-14", renewed.RenewedOn.Format(time.DateOnly))

	v, err := svc.GetCustomer(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada", v.Name)
	assert.Equal(t, "purple", v.Highlight.Color)

	_, err = svc.RenewMembership(ctx, uuid.New())
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListCustomers(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()
	for _, name := range []string{"Hopper", "Hamilton", "Liskov"} {
		_, err := svc.RegisterCustomer(ctx, RegisterRequest{Lastname: name})
		require.NoError(t, err)
	}

	page, err := svc.ListCustomers(ctx, store.Query{Search: "h", Sort: store.SortDisplayID, Desc: true})
	require.NoError(t, err)
	require.Equal(t, 2, page.Total)
	assert.Equal(t, "Hamilton", page.Records[0].Name)
	assert.Equal(t, "Hopper", page.Records[1].Name)
}

func TestHandler(t *testing.T) {
	svc, _ := newService(WithRegistrationLimit(1))
	r := chi.NewRouter()
	NewHandler(svc).Register(r)

	do := func(method, path string, body any) *httptest.ResponseRecorder {
		var buf bytes.Buffer
		if body != nil {
			require.NoError(t, json.NewEncoder(&buf).Encode(body))
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(method, path, &buf))
		return rec
	}

	rec := do(http.MethodPost, "/customers", map[string]any{"firstname": "Ada", "email": "ada@example.org"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created CustomerView
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, "Ada", created.Name)

	rec = do(http.MethodPost, "/customers", map[string]any{"firstname": "Eve"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = do(http.MethodPatch, "/customers/"+created.ID.String(), map[string]any{"remark": "prefers email"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "prefers email")

	rec = do(http.MethodPost, "/customers/"+created.ID.String()+"/renew", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = do(http.MethodGet, "/customers?q=ada", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page store.Page[*CustomerView]
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Equal(t, 1, page.Total)

	rec = do(http.MethodGet, "/customers/"+uuid.NewString(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
