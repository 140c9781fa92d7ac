package server

import (
	"go/ast"
	"go/parser"
	"go/token"
	"path/filepath"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"testing"
)

type registeredRoute struct {
	method  string
	path    string
	handler string
}

type boundaryCalls struct {
	newsletter []string
	hours      []string
	store      []string
}

func TestMutationRoutesUseServiceBoundary(t *testing.T) {
	consts := parsePackageStringConsts(t)
	routes := parseRegisteredRoutes(t, consts)
	handlers := parseServerHandlers(t)

	checked := 0
	for _, route := range routes {
		if !isMutationMethod(route.method) || isSessionPath(route.path) {
			continue
		}
		checked++

		fn, ok := handlers[route.handler]
		if !ok {
			t.Fatalf("handler %q for %s %s not found", route.handler, route.method, route.path)
		}
		calls := inspectBoundaryCalls(fn)
		if len(calls.store) > 0 {
			t.Fatalf("handler %q (%s %s) calls s.store directly: %v", route.handler, route.method, route.path, calls.store)
		}
		if len(calls.newsletter) == 0 && len(calls.hours) == 0 {
			t.Fatalf("handler %q (%s %s) does not call a service", route.handler, route.method, route.path)
		}
	}
	if checked < 3 {
		t.Fatalf("expected createPost, editUserHours and manage_hours mutations, found %d", checked)
	}
}

func TestCreatePostRouteAcceptsAnyMethod(t *testing.T) {
	routes := parseRegisteredRoutes(t, parsePackageStringConsts(t))
	for _, route := range routes {
		if route.path == createPostPath {
			if route.method != "" {
				t.Fatalf("createPost must be registered without a method so handler can answer 405, got %q", route.method)
			}
			return
		}
	}
	t.Fatal("createPost route not registered")
}

// parsePackageStringConsts collects top-level string constants so routes
// registered through a named pattern can be resolved.
func parsePackageStringConsts(t *testing.T) map[string]string {
	t.Helper()

	files, err := filepath.Glob(filepath.Join(serverPackageDir(t), "*.go"))
	if err != nil {
		t.Fatalf("glob sources: %v", err)
	}

	out := make(map[string]string)
	fset := token.NewFileSet()
	for _, path := range files {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", path, err)
		}
		for _, decl := range file.Decls {
			gen, ok := decl.(*ast.GenDecl)
			if !ok || gen.Tok != token.CONST {
				continue
			}
			for _, spec := range gen.Specs {
				vs := spec.(*ast.ValueSpec)
				for i, name := range vs.Names {
					if i >= len(vs.Values) {
						continue
					}
					lit, ok := vs.Values[i].(*ast.BasicLit)
					if !ok || lit.Kind != token.STRING {
						continue
					}
					if value, err := strconv.Unquote(lit.Value); err == nil {
						out[name.Name] = value
					}
				}
			}
		}
	}
	return out
}

func parseRegisteredRoutes(t *testing.T, consts map[string]string) []registeredRoute {
	t.Helper()

	routesPath := filepath.Join(serverPackageDir(t), "routes.go")
	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, routesPath, nil, 0)
	if err != nil {
		t.Fatalf("parse routes.go: %v", err)
	}

	var routes []registeredRoute
	ast.Inspect(file, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		sel, ok := call.Fun.(*ast.SelectorExpr)
		if !ok || sel.Sel.Name != "HandleFunc" || len(call.Args) != 2 {
			return true
		}

		var pattern string
		switch arg := call.Args[0].(type) {
		case *ast.BasicLit:
			pattern, _ = strconv.Unquote(arg.Value)
		case *ast.Ident:
			pattern = consts[arg.Name]
		}
		if pattern == "" {
			return true
		}

		handler := handlerName(call.Args[1])
		if handler == "" {
			return true
		}

		route := registeredRoute{path: pattern, handler: handler}
		if method, path, found := strings.Cut(pattern, " "); found {
			route.method, route.path = method, strings.TrimSpace(path)
		}
		routes = append(routes, route)
		return true
	})
	return routes
}

// handlerName unwraps middleware such as s.withRateLimit(s.handleX).
func handlerName(expr ast.Expr) string {
	switch e := expr.(type) {
	case *ast.SelectorExpr:
		if recv, ok := e.X.(*ast.Ident); ok && recv.Name == "s" {
			return e.Sel.Name
		}
	case *ast.CallExpr:
		if len(e.Args) == 1 {
			return handlerName(e.Args[0])
		}
	}
	return ""
}

func parseServerHandlers(t *testing.T) map[string]*ast.FuncDecl {
	t.Helper()

	dir := serverPackageDir(t)
	files, err := filepath.Glob(filepath.Join(dir, "handlers*.go"))
	if err != nil {
		t.Fatalf("glob handler files: %v", err)
	}
	files = append(files, filepath.Join(dir, "pages.go"))

	out := make(map[string]*ast.FuncDecl)
	fset := token.NewFileSet()
	for _, path := range files {
		if strings.HasSuffix(path, "_test.go") {
			continue
		}
		file, err := parser.ParseFile(fset, path, nil, 0)
		if err != nil {
			t.Fatalf("parse %s: %v", path, err)
		}
		for _, decl := range file.Decls {
			fn, ok := decl.(*ast.FuncDecl)
			if !ok || fn.Recv == nil || !strings.HasPrefix(fn.Name.Name, "handle") || !isServerReceiver(fn.Recv) {
				continue
			}
			out[fn.Name.Name] = fn
		}
	}
	return out
}

func inspectBoundaryCalls(fn *ast.FuncDecl) boundaryCalls {
	calls := boundaryCalls{}
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		selector, ok := call.Fun.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		chain, ok := selector.X.(*ast.SelectorExpr)
		if !ok {
			return true
		}
		recv, ok := chain.X.(*ast.Ident)
		if !ok || recv.Name != "s" {
			return true
		}

		switch chain.Sel.Name {
		case "newsletter":
			calls.newsletter = append(calls.newsletter, selector.Sel.Name)
		case "hours":
			calls.hours = append(calls.hours, selector.Sel.Name)
		case "store":
			calls.store = append(calls.store, selector.Sel.Name)
		}
		return true
	})
	calls.newsletter = uniqueSorted(calls.newsletter)
	calls.hours = uniqueSorted(calls.hours)
	calls.store = uniqueSorted(calls.store)
	return calls
}

// An empty method means the handler accepts every method and checks itself.
func isMutationMethod(method string) bool {
	switch method {
	case "", "POST", "PATCH", "PUT", "DELETE":
		return true
	default:
		return false
	}
}

func isSessionPath(path string) bool {
	return path == "/sign-in" || path == "/sign-out"
}

func isServerReceiver(recv *ast.FieldList) bool {
	if recv == nil || len(recv.List) != 1 {
		return false
	}
	star, ok := recv.List[0].Type.(*ast.StarExpr)
	if !ok {
		return false
	}
	ident, ok := star.X.(*ast.Ident)
	return ok && ident.Name == "Server"
}

func serverPackageDir(t *testing.T) string {
	t.Helper()

	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("runtime.Caller failed")
	}
	return filepath.Dir(file)
}

func uniqueSorted(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	slices.Sort(out)
	return slices.Compact(out)
}
