package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorLogger_RedactsCredentials(t *testing.T) {
	logger, hook := test.NewNullLogger()

	app := fiber.New()
	app.Use(NewErrorLoggerMiddleware(logger).Handle())
	app.Post("/login", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "nope"})
	})
	app.Post("/ok", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("POST", "/login", strings.NewReader(`{"username":"alice123","password":"hunter2"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()

	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	httpFields, ok := entry.Data["http"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, fiber.StatusUnauthorized, httpFields["status"])
	assert.Equal(t, "/login", httpFields["route"])

	body, _ := entry.Data["request_body"].(string)
	assert.Contains(t, body, "alice123")
	assert.NotContains(t, body, "hunter2")

	hook.Reset()
	resp, err = app.Test(httptest.NewRequest("POST", "/ok", strings.NewReader(`{"password":"x"}`)))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, hook.AllEntries(), "successful responses are not logged")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short"))
	long := strings.Repeat("a", maxLoggedBody+10)
	assert.True(t, strings.HasSuffix(truncate(long), "...(truncated)"))
	assert.Len(t, truncate(long), maxLoggedBody+len("...(truncated)"))
}
