package routes

import (
	"sort"
	"time"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-cli/internal/server"
)

// RegisterDiagnosticsRoutes 暴露 /-/ping 与 /-/packages，需在包路由之前注册。
func RegisterDiagnosticsRoutes(app *fiber.App, index *server.Index) {
	if app == nil || index == nil {
		return
	}

	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{})
	})

	app.Get("/-/packages", func(c fiber.Ctx) error {
		pkgs, err := index.Packages(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "index_failed"})
		}
		return c.JSON(fiber.Map{
			"root":     index.Root(),
			"packages": encodePackages(pkgs),
		})
	})
}

type packagePayload struct {
	Name     string           `json:"name"`
	Latest   string           `json:"latest"`
	Versions []versionPayload `json:"versions"`
}

type versionPayload struct {
	Version   string    `json:"version"`
	Key       string    `json:"key"`
	Main      string    `json:"main,omitempty"`
	Installed time.Time `json:"installed_at"`
}

func encodePackages(pkgs map[string]*server.IndexedPackage) []packagePayload {
	if len(pkgs) == 0 {
		return []packagePayload{}
	}
	names := make([]string, 0, len(pkgs))
	for name := range pkgs {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]packagePayload, 0, len(names))
	for _, name := range names {
		pkg := pkgs[name]
		item := packagePayload{Name: name, Latest: pkg.Latest}
		for _, v := range pkg.VersionList() {
			iv := pkg.Versions[v]
			item.Versions = append(item.Versions, versionPayload{
				Version:   v,
				Key:       iv.Entry.Key,
				Main:      iv.Main,
				Installed: iv.Entry.ModTime,
			})
		}
		result = append(result, item)
	}
	return result
}
