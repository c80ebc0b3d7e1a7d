package runner

import (
	"errors"
	"fmt"
	"os"
	"reflect"
)

// ExpandTemplates walks the struct pointed to by in and expands ${VAR}
// references in place. String and []string fields are expanded only
// when tagged `template` (or `template:""`); `template:"-"` skips a
// field. Nested structs, *struct and []struct are traversed without
// requiring the tag. Unexported fields are skipped.
func ExpandTemplates[T any](in *T, variables map[string]string) error {
	if in == nil {
		return nil
	}
	v := reflect.ValueOf(in).Elem()
	if v.Kind() != reflect.Struct {
		return fmt.Errorf("ExpandTemplates expects *struct; got *%s", v.Type())
	}
	return expandStructInPlace(v, variables)
}

func expandStructInPlace(v reflect.Value, variables map[string]string) error {
	typ := v.Type()
	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		if !sf.IsExported() {
			continue
		}
		field := v.Field(i)
		tag, hasTemplate := sf.Tag.Lookup("template")
		tagged := hasTemplate && tag != "-"

		switch field.Kind() {
		case reflect.String:
			if !tagged {
				continue
			}
			expanded, err := Expand(field.String(), variables)
			if err != nil {
				return err
			}
			field.SetString(expanded)

		case reflect.Ptr:
			if field.IsNil() || field.Elem().Kind() != reflect.Struct {
				continue
			}
			if err := expandStructInPlace(field.Elem(), variables); err != nil {
				return err
			}

		case reflect.Struct:
			if err := expandStructInPlace(field, variables); err != nil {
				return err
			}

		case reflect.Slice:
			switch field.Type().Elem().Kind() {
			case reflect.String:
				if !tagged {
					continue
				}
				for j := 0; j < field.Len(); j++ {
					el := field.Index(j)
					expanded, err := Expand(el.String(), variables)
					if err != nil {
						return err
					}
					el.SetString(expanded)
				}
			case reflect.Struct:
				for j := 0; j < field.Len(); j++ {
					if err := expandStructInPlace(field.Index(j), variables); err != nil {
						return err
					}
				}
			}

		default:
			continue
		}
	}
	return nil
}

// Expand replaces ${VAR} references in the input string using the
// provided variables map. Referencing a variable outside the map is an
// error, so job files cannot read arbitrary environment state.
func Expand(value string, variables map[string]string) (string, error) {
	var errs error

	result := os.Expand(value, func(key string) string {
		if val, ok := variables[key]; ok {
			return val
		}
		errs = errors.Join(errs, fmt.Errorf("variable %q is not in the allowed list", key))
		return ""
	})

	if errs != nil {
		return "", errs
	}

	return result, nil
}
