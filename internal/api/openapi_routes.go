package api

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
)

// registerOpenAPIRoutes 提供 /openapi 与 /docs/redoc、/docs/ui
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
	engine.GET("/docs/ui", serveSwaggerUI)
}

func serveOpenAPI(c *gin.Context) {
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File("docs/api/openapi.yaml")
}

func serveRedoc(c *gin.Context) {
	// 优先使用本地 redoc 资源，机台离线可用；否则回退到 CDN
	scriptSrc := "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"
	if _, err := os.Stat("static/vendors/redoc/redoc.standalone.js"); err == nil {
		scriptSrc = "/static/vendors/redoc/redoc.standalone.js"
	}

	html := `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>BeautiBox Kiosk API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc spec-url="/openapi" expand-responses="200,201"></redoc>
    <script src="` + scriptSrc + `"></script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func serveSwaggerUI(c *gin.Context) {
	// 使用本地 swagger-ui-dist（若存在），否则回退 CDN
	cssHref := "https://unpkg.com/swagger-ui-dist@5/swagger-ui.css"
	jsBundle := "https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"
	if _, err := os.Stat("static/vendors/swagger-ui/swagger-ui-bundle.js"); err == nil {
		cssHref = "/static/vendors/swagger-ui/swagger-ui.css"
		jsBundle = "/static/vendors/swagger-ui/swagger-ui-bundle.js"
	}

	html := `<!doctype html>
<html>
  <head>
    <meta charset="utf-8">
    <title>BeautiBox Kiosk API - Swagger UI</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <link rel="stylesheet" href="` + cssHref + `">
    <style>body{margin:0;background:#ffffff}</style>
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="` + jsBundle + `" crossorigin></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi',
        dom_id: '#swagger-ui',
        deepLinking: true,
        presets: [SwaggerUIBundle.presets.apis],
        layout: 'BaseLayout'
      })
    </script>
  </body>
</html>`
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}
