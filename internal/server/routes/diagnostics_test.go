package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cli/internal/cache"
	"github.com/any-hub/any-cli/internal/logging"
	"github.com/any-hub/any-cli/internal/server"
)

func TestDiagnosticsRoutes(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, cache.Key("demo-cmd", "1.2.0"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"demo-cmd","main":"lib/index.js"}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}

	idx := server.NewIndex(root, logging.Discard())
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, idx)

	resp, err := app.Test(httptest.NewRequest("GET", "/-/ping", nil))
	if err != nil || resp.StatusCode != fiber.StatusOK {
		t.Fatalf("ping failed: %v %v", resp, err)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/-/packages", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	var payload struct {
		Root     string           `json:"root"`
		Packages []packagePayload `json:"packages"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		t.Fatalf("decode payload: %v (%s)", err, body)
	}
	if payload.Root != root || len(payload.Packages) != 1 {
		t.Fatalf("unexpected payload %s", body)
	}
	pkg := payload.Packages[0]
	if pkg.Name != "demo-cmd" || pkg.Latest != "1.2.0" || len(pkg.Versions) != 1 || pkg.Versions[0].Key != "_demo-cmd@1.2.0@demo-cmd" {
		t.Fatalf("unexpected package %+v", pkg)
	}
}

func TestRegisterDiagnosticsIgnoresNil(t *testing.T) {
	RegisterDiagnosticsRoutes(nil, nil)
	app := fiber.New()
	RegisterDiagnosticsRoutes(app, nil)
	resp, err := app.Test(httptest.NewRequest("GET", "/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("nil index should register nothing, got %d", resp.StatusCode)
	}
}
