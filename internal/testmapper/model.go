package testmapper

import (
	"fmt"
	"reflect"
	"strings"
)

// User is a row of the users table.
type User struct {
	ID    int64  `db:"id"`
	Name  string `db:"name"`
	Email Email  `db:"email"`
}

// Email is stored lower-cased.
type Email string

func (e Email) String() string { return string(e) }

// EmailHandler normalises Email values on both sides of the driver.
type EmailHandler struct{}

func (EmailHandler) Type() reflect.Type { return reflect.TypeOf(Email("")) }

func (EmailHandler) ToDriver(v any) (any, error) {
	e, ok := v.(Email)
	if !ok {
		return nil, fmt.Errorf("testmapper: expected Email, got %T", v)
	}
	return strings.ToLower(string(e)), nil
}

func (EmailHandler) FromDriver(src any) (any, error) {
	switch v := src.(type) {
	case string:
		return Email(strings.ToLower(v)), nil
	case []byte:
		return Email(strings.ToLower(string(v))), nil
	case nil:
		return Email(""), nil
	}
	return nil, fmt.Errorf("testmapper: cannot read Email from %T", src)
}
