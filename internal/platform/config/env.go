package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Env reads typed values from an environment lookup. Unparseable values fall
// back to the default and are remembered as warnings instead of failing.
type Env struct {
	lookup   func(string) (string, bool)
	warnings []string
}

func NewEnv(lookup func(string) (string, bool)) *Env {
	return &Env{lookup: lookup}
}

func (e *Env) raw(key string) (string, bool) {
	v, ok := e.lookup(key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func (e *Env) String(key, def string) string {
	if v, ok := e.raw(key); ok {
		return v
	}
	return def
}

func (e *Env) Int(key string, def int) int {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.warnf("%s=%q is not an integer, using %d", key, v, def)
		return def
	}
	return n
}

func (e *Env) Duration(key string, def time.Duration) time.Duration {
	v, ok := e.raw(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.warnf("%s=%q is not a duration, using %s", key, v, def)
		return def
	}
	return d
}

// List splits a comma separated value, dropping empty entries.
func (e *Env) List(key string) []string {
	v, ok := e.raw(key)
	if !ok {
		return nil
	}
	var out []string
	for part := range strings.SplitSeq(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (e *Env) Warnings() []string {
	return e.warnings
}

func (e *Env) warnf(format string, args ...any) {
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}
