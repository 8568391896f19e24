package scylla

import (
	"reflect"
	"strings"
	"testing"
)

func TestStatementsAreComplete(t *testing.T) {
	stmts := newStatements()

	v := reflect.ValueOf(*stmts)
	for i := 0; i < v.NumField(); i++ {
		name := v.Type().Field(i).Name
		cql := v.Field(i).String()
		if strings.TrimSpace(cql) == "" {
			t.Fatalf("statement %s is empty", name)
		}
		if !strings.Contains(cql, "?") {
			t.Fatalf("statement %s has no bind markers: %s", name, cql)
		}
	}
}
