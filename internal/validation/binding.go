package validation

import (
	"errors"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/srcf/lightbluetent/pkg/response"
)

// Bind decodes the request into obj. Tag failures are answered with 422 and the field
// errors; any other decoding problem with 400. It reports whether the handler may go on.
func Bind(c *gin.Context, obj any) bool {
	err := c.ShouldBind(obj)
	if err == nil {
		return true
	}
	if errs := Translate(obj, err); errs.HasErrors() {
		response.Unprocessable(c, "There were problems with the information you provided.", errs.FieldErrors)
		return false
	}
	response.BadRequest(c, "invalid request")
	return false
}

// Messages maps "field.tag" or "field" to the text shown when that rule fails.
type Messages map[string]string

// Messager is implemented by forms that word their own failures.
type Messager interface {
	Messages() Messages
}

var defaultMessages = map[string]string{
	"required":   "This field is required.",
	"min":        "This is too short.",
	"max":        "This is too long.",
	"oneof":      "Choose one of the options.",
	"hexcolor":   "Choose a colour such as #0c5ead.",
	"url":        "Enter a full web address starting with https://.",
	"startswith": "Enter a full web address starting with https://.",
	"email":      "Enter a valid email address.",
}

// Struct runs the binding tags of v, the same rules gin applies when binding a request,
// and returns the failures as field errors. The result is never nil.
func Struct(v any) *Error {
	errs := &Error{}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		errs.Merge(Translate(v, err))
	}
	return errs
}

// Var checks a single value against a tag expression such as "email".
func Var(value any, tag string) bool {
	engine, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return true
	}
	return engine.Var(value, tag) == nil
}

// Translate converts tag failures reported while validating obj into field errors named
// by their json tags. Other errors, such as malformed bodies, yield nil.
func Translate(obj any, err error) *Error {
	var failures validator.ValidationErrors
	if !errors.As(err, &failures) {
		return nil
	}
	var msgs Messages
	if m, ok := obj.(Messager); ok {
		msgs = m.Messages()
	}
	out := &Error{}
	for _, fe := range failures {
		field := fieldName(obj, fe.StructNamespace())
		if out.Has(field) {
			continue
		}
		out.Add(field, message(msgs, field, fe.Tag()))
	}
	return out
}

func message(msgs Messages, field, tag string) string {
	if m, ok := msgs[field+"."+tag]; ok {
		return m
	}
	if m, ok := msgs[field]; ok {
		return m
	}
	if m, ok := defaultMessages[tag]; ok {
		return m
	}
	return "This value is not valid."
}

// fieldName follows a namespace such as "UpdateForm.FeaturesForm.BannerColor" through
// obj's type and returns the json (or form) name of the last field.
func fieldName(obj any, namespace string) string {
	parts := strings.Split(namespace, ".")
	t := reflect.TypeOf(obj)
	name := parts[len(parts)-1]
	for _, part := range parts[1:] {
		for t != nil && t.Kind() == reflect.Ptr {
			t = t.Elem()
		}
		if t == nil || t.Kind() != reflect.Struct {
			break
		}
		if i := strings.IndexByte(part, '['); i >= 0 {
			part = part[:i]
		}
		sf, ok := t.FieldByName(part)
		if !ok {
			break
		}
		name = tagName(sf)
		t = sf.Type
	}
	return name
}

func tagName(sf reflect.StructField) string {
	for _, key := range []string{"json", "form"} {
		if n := strings.Split(sf.Tag.Get(key), ",")[0]; n != "" && n != "-" {
			return n
		}
	}
	return strings.ToLower(sf.Name)
}
