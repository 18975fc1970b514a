package validation

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Banner struct {
	Color string `json:"banner_color" form:"banner_color" binding:"omitempty,hexcolor"`
}

type signup struct {
	Name  string `json:"name" form:"name" binding:"required,min=2"`
	Email string `form:"email_address" binding:"required,email"`
	Kind  string `json:"kind" form:"kind" binding:"omitempty,oneof=public raven"`
	Banner
}

func (signup) Messages() Messages {
	return Messages{"name.min": "That name is too short.", "email_address": "Enter a valid email address."}
}

func TestStruct_NamesFieldsByTag(t *testing.T) {
	errs := Struct(&signup{Name: "A", Email: "nope", Kind: "carrier", Banner: Banner{Color: "blue"}})
	assert.Equal(t, map[string]string{
		"name":          "That name is too short.",
		"email_address": "Enter a valid email address.",
		"kind":          "Choose one of the options.",
		"banner_color":  "Choose a colour such as #0c5ead.",
	}, errs.FieldErrors)

	errs = Struct(signup{Name: "Ada", Email: "ada@example.org"})
	assert.False(t, errs.HasErrors())
	assert.NoError(t, errs.Err())
}

func TestTranslate_IgnoresOtherErrors(t *testing.T) {
	assert.Nil(t, Translate(&signup{}, errors.New("unexpected EOF")))
	assert.False(t, Translate(&signup{}, nil).HasErrors())
}

func TestVar(t *testing.T) {
	assert.True(t, Var("abc12@cam.ac.uk", "email"))
	assert.False(t, Var("not-an-email", "email"))
}

func TestBind(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/", func(c *gin.Context) {
		var form signup
		if !Bind(c, &form) {
			return
		}
		c.String(http.StatusOK, form.Name)
	})
	post := func(body, contentType string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		req.Header.Set("Content-Type", contentType)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	w := post(url.Values{"name": {"Ada"}, "email_address": {"ada@example.org"}}.Encode(), "application/x-www-form-urlencoded")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Ada", w.Body.String())

	w = post(url.Values{"name": {"A"}}.Encode(), "application/x-www-form-urlencoded")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "That name is too short.")
	assert.Contains(t, w.Body.String(), "email_address")

	w = post(`{"name":`, "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
