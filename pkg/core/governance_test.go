//go:build governance

package core_test

import (
	"go/types"
	"sort"
	"strings"
	"testing"

	"golang.org/x/tools/go/packages"
)

const corePath = modulePath + "/pkg/core"

func loadModule(t *testing.T, mode packages.LoadMode) []*packages.Package {
	t.Helper()
	pkgs, err := packages.Load(&packages.Config{Mode: mode}, modulePath+"/...")
	if err != nil {
		t.Fatalf("failed to load packages: %v", err)
	}
	return pkgs
}

func rel(pkgPath string) string {
	return strings.TrimPrefix(pkgPath, modulePath+"/")
}

// singleUseAllowed lists core types that may have one consumer.
var singleUseAllowed = map[string]bool{
	"FetcherFunc": true, // adapter for Fetcher
	"Navigator":   true, // implemented by table.Lifecycle only
	"FormStates":  true, // stored shape of form values
}

// TestGovernance_CoreCohesion fails when a core type is used by a single
// package. Such a type belongs in that package.
func TestGovernance_CoreCohesion(t *testing.T) {
	pkgs := loadModule(t, packages.NeedName|packages.NeedImports|packages.NeedTypes|
		packages.NeedTypesInfo|packages.NeedDeps)

	users := make(map[types.Object]map[string]bool)
	for _, p := range pkgs {
		if p.PkgPath != corePath {
			continue
		}
		scope := p.Types.Scope()
		for _, name := range scope.Names() {
			if obj := scope.Lookup(name); obj.Exported() {
				users[obj] = make(map[string]bool)
			}
		}
	}
	if len(users) == 0 {
		t.Fatal("pkg/core has no exported objects")
	}

	for _, p := range pkgs {
		if p.PkgPath == corePath || p.TypesInfo == nil || strings.HasSuffix(p.PkgPath, "_test") {
			continue
		}
		for _, obj := range p.TypesInfo.Uses {
			if set, ok := users[obj]; ok {
				set[rel(p.PkgPath)] = true
			}
		}
	}

	for obj, set := range users {
		name := obj.Name()
		switch {
		case singleUseAllowed[name]:
		case len(set) == 0:
			t.Logf("unused core object: %s", name)
		case len(set) == 1:
			for user := range set {
				t.Errorf("core.%s is used only by %s; move it there", name, user)
			}
		}
	}
}

// TestGovernance_NoTypeAliasReexports fails when a package re-exports a
// core type under an alias.
func TestGovernance_NoTypeAliasReexports(t *testing.T) {
	for _, pkg := range loadModule(t, packages.NeedName|packages.NeedImports|packages.NeedTypes) {
		if len(pkg.Errors) > 0 || pkg.PkgPath == corePath {
			continue
		}
		scope := pkg.Types.Scope()
		for _, name := range scope.Names() {
			tn, ok := scope.Lookup(name).(*types.TypeName)
			if !ok || !tn.Exported() || !tn.IsAlias() {
				continue
			}
			named, ok := types.Unalias(tn.Type()).(*types.Named)
			if !ok || named.Obj().Pkg() == nil || named.Obj().Pkg().Path() != corePath {
				continue
			}
			t.Errorf("%s re-exports core.%s as %s; use core.%s directly",
				rel(pkg.PkgPath), named.Obj().Name(), name, named.Obj().Name())
		}
	}
}

// TestGovernance_DependencyConfinement keeps storage and transport
// libraries inside the packages that own those concerns.
func TestGovernance_DependencyConfinement(t *testing.T) {
	owners := []struct {
		dep     string
		allowed []string
	}{
		{dep: "modernc.org/sqlite", allowed: []string{"internal/catalog", "internal/persist"}},
		{dep: "github.com/pressly/goose/v3", allowed: []string{"internal/catalog", "internal/persist"}},
		{dep: "github.com/starfederation/datastar-go/datastar", allowed: []string{"internal/ui"}},
		{dep: "github.com/gorilla/sessions", allowed: []string{"internal/ui"}},
		{dep: "github.com/hashicorp/go-retryablehttp", allowed: []string{"internal/gather"}},
		{dep: "go.starlark.net/starlark", allowed: []string{"internal/starlark", "internal/catalog"}},
	}

	pkgs := loadModule(t, packages.NeedName|packages.NeedImports)
	for _, o := range owners {
		var offenders []string
		for _, p := range pkgs {
			if _, ok := p.Imports[o.dep]; !ok || owned(rel(p.PkgPath), o.allowed) {
				continue
			}
			offenders = append(offenders, rel(p.PkgPath))
		}
		sort.Strings(offenders)
		for _, off := range offenders {
			t.Errorf("%s imports %s; only %v may", off, o.dep, o.allowed)
		}
	}
}

func owned(pkg string, allowed []string) bool {
	for _, a := range allowed {
		if pkg == a || strings.HasPrefix(pkg, a+"/") {
			return true
		}
	}
	return false
}
