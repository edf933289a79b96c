package config

import (
	"bytes"
	"fmt"
	"os"
	"reflect"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Najia-afk/aria-core/pkg/errs"
)

// Load reads path as YAML into a Config seeded with Default(), then applies
// any ARIA_*-tagged environment overrides (§6 "every tunable is
// env-settable"). A missing path is not an error: Default() plus
// environment overrides is a valid way to run.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				return cfg, applyEnvOverrides(&cfg)
			}
			return cfg, errs.Configuration("read config file %q: %v", path, err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil {
			return cfg, errs.Configuration("parse config file %q: %v", path, err)
		}
	}
	if err := applyEnvOverrides(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnvOverrides walks cfg's fields by reflection, applying an
// os.Getenv override for every field tagged `env:"ARIA_..."` whose
// variable is actually set, matching the teacher's layered
// YAML-then-environment precedence (config struct first, env wins).
func applyEnvOverrides(cfg *Config) error {
	return walkEnvTags(reflect.ValueOf(cfg).Elem())
}

func walkEnvTags(v reflect.Value) error {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct {
			if err := walkEnvTags(fv); err != nil {
				return err
			}
			continue
		}
		tag := field.Tag.Get("env")
		if tag == "" {
			continue
		}
		raw, ok := os.LookupEnv(tag)
		if !ok {
			continue
		}
		if err := setFromString(fv, raw); err != nil {
			return errs.Configuration("env override %s=%q: %v", tag, raw, err)
		}
	}
	return nil
}

func setFromString(fv reflect.Value, raw string) error {
	switch fv.Interface().(type) {
	case time.Duration:
		d, err := time.ParseDuration(raw)
		if err != nil {
			return err
		}
		fv.Set(reflect.ValueOf(d))
		return nil
	}
	switch fv.Kind() {
	case reflect.String:
		fv.SetString(raw)
	case reflect.Int, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return err
		}
		fv.SetInt(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return err
		}
		fv.SetFloat(f)
	case reflect.Bool:
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return err
		}
		fv.SetBool(b)
	default:
		return fmt.Errorf("unsupported field kind %s", fv.Kind())
	}
	return nil
}
